// Package providers adapts external payment gateways to the polling
// contract used by the payment dispatcher.
package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/money"
)

// Status is a provider's reading of one payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether polling can stop.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ErrThrottled marks a status check the gateway refused for now. Pollers
// keep going on the next tick.
var ErrThrottled = errors.New("provider throttled")

// InitiateRequest carries what any gateway needs to start a charge.
type InitiateRequest struct {
	IntentID uuid.UUID
	OrderID  uuid.UUID
	BuyerID  uuid.UUID
	Amount   money.Money
	// Phone is the payer handset for mobile money pushes.
	Phone string
	// SourceID is the tokenized card for card payments.
	SourceID string
}

// Provider starts a payment and reports on it by reference.
type Provider interface {
	Method() enums.PaymentMethod
	Initiate(ctx context.Context, req InitiateRequest) (string, error)
	Status(ctx context.Context, reference string) (Status, error)
}

// Canceller is implemented by providers that can void a payment in flight.
type Canceller interface {
	Cancel(ctx context.Context, reference string) error
}

// Registry maps payment methods to their provider.
type Registry struct {
	providers map[enums.PaymentMethod]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: map[enums.PaymentMethod]Provider{}}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds p. Only methods that go through an external provider are
// accepted and each method may be registered once.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider required")
	}
	method := p.Method()
	if !method.UsesProvider() {
		return fmt.Errorf("payment method %q does not use a provider", method)
	}
	if _, exists := r.providers[method]; exists {
		return fmt.Errorf("provider for %q already registered", method)
	}
	r.providers[method] = p
	return nil
}

func (r *Registry) Get(method enums.PaymentMethod) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[method]
	return p, ok
}
