package ledger

import (
	"errors"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
)

var (
	ErrDuplicateHold       = errors.New("reserve already active for order")
	ErrAlreadyReleased     = errors.New("reserve already released")
	ErrAlreadyRefunded     = errors.New("reserve already refunded")
	ErrInvalidState        = errors.New("reserve not in a settleable state")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrDuplicateReference  = errors.New("transaction reference already recorded")
)

func duplicateHold() error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrDuplicateHold, "reserve already held")
}

func invalidState(status enums.ReserveStatus, op string) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrInvalidState, "reserve cannot be "+op).
		WithDetails(map[string]any{"reserve_status": status})
}

func undelivered(status enums.OrderStatus) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrInvalidState, "order must be delivered before release").
		WithDetails(map[string]any{"order_status": status})
}

// settleable checks that an entry can move to a terminal status.
func settleable(status enums.ReserveStatus, op string) error {
	switch status {
	case enums.ReserveStatusHeld:
		return nil
	case enums.ReserveStatusReleased:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrAlreadyReleased, "reserve already released")
	case enums.ReserveStatusRefunded:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrAlreadyRefunded, "reserve already refunded")
	default:
		return invalidState(status, op)
	}
}
