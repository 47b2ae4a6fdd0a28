package enums

import "fmt"

// ReserveStatus is the escrow state of a master order.
type ReserveStatus string

const (
	ReserveStatusNone     ReserveStatus = "none"
	ReserveStatusHeld     ReserveStatus = "held"
	ReserveStatusReleased ReserveStatus = "released"
	ReserveStatusRefunded ReserveStatus = "refunded"
	ReserveStatusFrozen   ReserveStatus = "frozen"
)

var validReserveStatuses = []ReserveStatus{
	ReserveStatusNone,
	ReserveStatusHeld,
	ReserveStatusReleased,
	ReserveStatusRefunded,
	ReserveStatusFrozen,
}

// String implements fmt.Stringer.
func (r ReserveStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReserveStatus.
func (r ReserveStatus) IsValid() bool {
	for _, candidate := range validReserveStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsActive reports whether money is still sitting in escrow.
func (r ReserveStatus) IsActive() bool {
	return r == ReserveStatusHeld || r == ReserveStatusFrozen
}

// ParseReserveStatus converts raw input into a ReserveStatus.
func ParseReserveStatus(value string) (ReserveStatus, error) {
	for _, candidate := range validReserveStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reserve status %q", value)
}
