package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams encapsulates the inputs for a Square card payment.
type PaymentCreateParams struct {
	AmountMinor    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	ReferenceID    string
	Note           string
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		LocationID:     ptrString(p.LocationID),
		SourceID:       p.SourceID,
		Autocomplete: boolPtr(true),
	}
	if p.AmountMinor > 0 {
		req.AmountMoney = &sq.Money{
			Amount:   &p.AmountMinor,
			Currency: currencyPtr(p.Currency),
		}
	}
	if trimmed := strings.TrimSpace(p.Note); trimmed != "" {
		req.Note = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		req.ReferenceID = ptrString(trimmed)
	}
	return req
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func boolPtr(v bool) *bool {
	return &v
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "KES"
	}
	c := sq.Currency(trimmed)
	return &c
}
