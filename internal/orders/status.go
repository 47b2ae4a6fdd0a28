package orders

import "github.com/angelmondragon/farmlink-backend/pkg/enums"

var masterTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusPacked, enums.OrderStatusCancelled},
	enums.OrderStatusPacked:    {enums.OrderStatusShipped},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered},
}

// Sub-orders only move forward once paid; cancellation is always master-wide.
var subTransitions = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusConfirmed: enums.OrderStatusPacked,
	enums.OrderStatusPacked:    enums.OrderStatusShipped,
	enums.OrderStatusShipped:   enums.OrderStatusDelivered,
}

// CanTransition reports whether a master order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range masterTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanAdvanceSubOrder reports whether progress from -> to is a single step forward.
func CanAdvanceSubOrder(from, to enums.OrderStatus) bool {
	next, ok := subTransitions[from]
	return ok && next == to
}

// AggregateStatus derives a master status from its sub-orders: the least
// advanced non-cancelled sub-order wins, and an order whose sub-orders are
// all cancelled is cancelled.
func AggregateStatus(subs []enums.OrderStatus) enums.OrderStatus {
	if len(subs) == 0 {
		return enums.OrderStatusPending
	}
	var (
		result enums.OrderStatus
		lowest = -1
	)
	for _, status := range subs {
		if status == enums.OrderStatusCancelled {
			continue
		}
		if rank := status.Rank(); lowest == -1 || rank < lowest {
			lowest = rank
			result = status
		}
	}
	if lowest == -1 {
		return enums.OrderStatusCancelled
	}
	return result
}
