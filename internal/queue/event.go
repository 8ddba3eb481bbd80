// Package queue defines message payloads exchanged over the message broker.
package queue

// AuditQueueName is the durable queue approval decisions are published to.
const AuditQueueName = "orders.audit"

// OrderAuditEvent is published whenever maintenance orders are approved
// or rejected.  It carries enough information for downstream consumers
// to build an audit trail without calling back into the API.
type OrderAuditEvent struct {
	Action       string   `json:"action"` // "approve" or "reject"
	OrderNumbers []string `json:"orders"`
	Reason       string   `json:"reason,omitempty"`
	UserID       string   `json:"user_id"`
	Plant        string   `json:"plant"`
	OccurredAt   string   `json:"occurred_at"`
}
