package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/mobilemoney"
)

type pushGateway interface {
	InitiatePush(ctx context.Context, req mobilemoney.PushRequest) (string, error)
	PushStatus(ctx context.Context, checkoutID string) (mobilemoney.PushState, error)
}

// MobileMoney prompts the payer's handset and polls the push result.
type MobileMoney struct {
	gateway pushGateway
}

func NewMobileMoney(gateway pushGateway) (*MobileMoney, error) {
	if gateway == nil {
		return nil, fmt.Errorf("mobile money gateway required")
	}
	return &MobileMoney{gateway: gateway}, nil
}

func (m *MobileMoney) Method() enums.PaymentMethod { return enums.PaymentMethodMobileMoney }

func (m *MobileMoney) Initiate(ctx context.Context, req InitiateRequest) (string, error) {
	return m.gateway.InitiatePush(ctx, mobilemoney.PushRequest{
		Phone:     req.Phone,
		Amount:    req.Amount.Amount,
		Currency:  req.Amount.Currency,
		Reference: req.IntentID.String(),
	})
}

func (m *MobileMoney) Status(ctx context.Context, reference string) (Status, error) {
	state, err := m.gateway.PushStatus(ctx, reference)
	if err != nil {
		var throttled *mobilemoney.ThrottledError
		if errors.As(err, &throttled) {
			return StatusPending, fmt.Errorf("%w: %v", ErrThrottled, err)
		}
		return StatusPending, err
	}
	switch state.Status {
	case mobilemoney.PushSuccess:
		return StatusSucceeded, nil
	case mobilemoney.PushFailed:
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}
