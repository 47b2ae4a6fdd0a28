package enums

import "fmt"

// PaymentStatus tracks the lifecycle of a payment intent.
type PaymentStatus string

const (
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusFailed     PaymentStatus = "failed"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusProcessing,
	PaymentStatusSuccess,
	PaymentStatusFailed,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the intent has been resolved.
func (p PaymentStatus) IsTerminal() bool {
	return p == PaymentStatusSuccess || p == PaymentStatusFailed
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// PaymentFailureReason explains why an intent ended failed.
type PaymentFailureReason string

const (
	FailureProviderDeclined PaymentFailureReason = "provider_declined"
	FailureProviderTimeout  PaymentFailureReason = "provider_timeout"
	FailureUserCancelled    PaymentFailureReason = "user_cancelled"
	FailureProviderError    PaymentFailureReason = "provider_error"
	FailureStale            PaymentFailureReason = "stale_intent"
)

func (r PaymentFailureReason) String() string {
	return string(r)
}

// CountsAsRetry reports whether the failure uses up one of the order's
// payment attempts. A buyer backing out does not.
func (r PaymentFailureReason) CountsAsRetry() bool {
	return r != FailureUserCancelled
}
