package enums

import "fmt"

// PaymentMethod describes how a buyer settles a master order.
type PaymentMethod string

const (
	PaymentMethodWallet         PaymentMethod = "wallet"
	PaymentMethodMobileMoney    PaymentMethod = "mobile_money"
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodWallet,
	PaymentMethodMobileMoney,
	PaymentMethodCard,
	PaymentMethodCashOnDelivery,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// UsesProvider reports whether the outcome comes from an external provider
// that has to be polled.
func (p PaymentMethod) UsesProvider() bool {
	return p == PaymentMethodMobileMoney || p == PaymentMethodCard
}

// HoldsFunds reports whether a successful payment places money in escrow.
// Cash on delivery never does.
func (p PaymentMethod) HoldsFunds() bool {
	return p.IsValid() && p != PaymentMethodCashOnDelivery
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
