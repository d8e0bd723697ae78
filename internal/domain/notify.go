package domain

import "time"

// NotificationType tags what a notification is about.
type NotificationType string

const (
	NotifyLoadUpdate       NotificationType = "load_update"
	NotifyBidUpdate        NotificationType = "bid_update"
	NotifyDocumentRequired NotificationType = "document_required"
	NotifyPaymentReceived  NotificationType = "payment_received"
	NotifyComplianceAlert  NotificationType = "compliance_alert"
	NotifyAchievement      NotificationType = "achievement"
)

// Notification is an in-app message for one user, read via polling.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body,omitempty"`
	LoadID    string           `json:"load_id,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
