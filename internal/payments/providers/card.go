package providers

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/square"
)

type squarePayments interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CancelPayment(ctx context.Context, paymentID string) error
}

// Card charges tokenized cards through Square.
type Card struct {
	client squarePayments
}

func NewCard(client squarePayments) (*Card, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &Card{client: client}, nil
}

func (c *Card) Method() enums.PaymentMethod { return enums.PaymentMethodCard }

func (c *Card) Initiate(ctx context.Context, req InitiateRequest) (string, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "card source id is required")
	}
	payment, err := c.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountMinor:    req.Amount.Amount,
		Currency:       req.Amount.Currency,
		SourceID:       req.SourceID,
		IdempotencyKey: req.IntentID.String(),
		ReferenceID:    req.OrderID.String(),
		Note:           "order " + req.OrderID.String(),
	})
	if err != nil {
		return "", err
	}
	id := ""
	if payment != nil && payment.GetID() != nil {
		id = *payment.GetID()
	}
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment id")
	}
	return id, nil
}

func (c *Card) Status(ctx context.Context, reference string) (Status, error) {
	payment, err := c.client.GetPayment(ctx, reference)
	if err != nil {
		return StatusPending, err
	}
	switch square.StateOf(payment) {
	case square.PaymentSucceeded:
		return StatusSucceeded, nil
	case square.PaymentFailed:
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}

func (c *Card) Cancel(ctx context.Context, reference string) error {
	return c.client.CancelPayment(ctx, reference)
}
