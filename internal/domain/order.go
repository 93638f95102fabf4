package domain

import "time"

// OrderStatus enumerates lifecycle states for exchange orders.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRejected   OrderStatus = "rejected"
)

// ValidOrderStatus reports whether s is a known status.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status ends the order workflow.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusRejected
}

// Order is the exchange order a chat room mediates. Pricing and exchange
// method internals live with the order provider; this core only reads the
// fields it needs at room creation time and drives status transitions.
type Order struct {
	ID             string
	UserID         string
	ExchangeMethod string
	Amount         float64
	ExchangeRate   float64
	Status         OrderStatus
	ModeratorNotes string
	HandledBy      *string
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
