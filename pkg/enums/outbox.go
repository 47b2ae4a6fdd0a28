package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateMasterOrder   OutboxAggregateType = "master_order"
	AggregatePaymentIntent OutboxAggregateType = "payment_intent"
	AggregateReserve       OutboxAggregateType = "reserve_entry"
	AggregateWallet        OutboxAggregateType = "wallet"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMasterOrder,
	AggregatePaymentIntent,
	AggregateReserve,
	AggregateWallet,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order_created"
	EventOrderStateChanged OutboxEventType = "order_state_changed"
	EventPaymentSucceeded  OutboxEventType = "payment_succeeded"
	EventPaymentFailed     OutboxEventType = "payment_failed"
	EventReserveHeld       OutboxEventType = "reserve_held"
	EventReserveReleased   OutboxEventType = "reserve_released"
	EventReserveRefunded   OutboxEventType = "reserve_refunded"
	EventReserveFrozen     OutboxEventType = "reserve_frozen"
	EventReserveUnfrozen   OutboxEventType = "reserve_unfrozen"
	EventWalletCredited    OutboxEventType = "wallet_credited"
)

var validEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStateChanged,
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventReserveHeld,
	EventReserveReleased,
	EventReserveRefunded,
	EventReserveFrozen,
	EventReserveUnfrozen,
	EventWalletCredited,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
