package entity

import (
	"fmt"
	"strings"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "NEW"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusArchived   OrderStatus = "ARCHIVED"
)

// orderStatuses lists every status in lifecycle order.
var orderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusProcessing,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusArchived,
}

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:        {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {OrderStatusArchived},
	OrderStatusCancelled:  {OrderStatusArchived},
	OrderStatusArchived:   nil,
}

// OrderStatuses returns all valid statuses.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(orderStatuses))
	copy(out, orderStatuses)
	return out
}

// OrderStatusNames returns the valid statuses as plain strings.
func OrderStatusNames() []string {
	out := make([]string, 0, len(orderStatuses))
	for _, s := range orderStatuses {
		out = append(out, string(s))
	}
	return out
}

// ParseOrderStatus resolves a raw value into a known status. Matching is exact.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", &InvalidStatusError{Value: raw}
	}
	return status, nil
}

// Valid reports whether s is a member of the enumeration.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled, OrderStatusArchived:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return len(orderStatusTransitions[s]) == 0
}

// NextStatuses returns the statuses reachable from s in one step.
func (s OrderStatus) NextStatuses() []OrderStatus {
	next := orderStatusTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether the edge s -> to is in the transition table.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, candidate := range orderStatusTransitions[s] {
		if candidate == to {
			return true
		}
	}
	return false
}

// InvalidStatusError reports a value outside the status enumeration.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q: valid values are %s", e.Value, strings.Join(OrderStatusNames(), ", "))
}

// TransitionError reports an edge missing from the transition table.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
