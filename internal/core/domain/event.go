package domain

const EventOrderStatusUpdated = "order-status-updated"

type StatusChangedEvent struct {
	OrderID   string      `json:"orderId"`
	OldStatus OrderStatus `json:"oldStatus"`
	NewStatus OrderStatus `json:"newStatus"`
}

// Envelope is the wire shape pushed to realtime listeners.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
