package domain

import "time"

// IntegrationProvider identifies a third-party system a user connects.
type IntegrationProvider string

const (
	ProviderTelematics IntegrationProvider = "telematics"
	ProviderFuelCard   IntegrationProvider = "fuel_card"
	ProviderLoadBoard  IntegrationProvider = "load_board"
	ProviderAccounting IntegrationProvider = "accounting"
)

// ValidProvider reports whether p is a known integration provider.
func ValidProvider(p IntegrationProvider) bool {
	switch p {
	case ProviderTelematics, ProviderFuelCard, ProviderLoadBoard, ProviderAccounting:
		return true
	}
	return false
}

// Credential is a stored third-party integration credential. Key and
// secret are encrypted at rest; KeyLast4 is kept for display.
type Credential struct {
	ID         string              `json:"id"`
	OwnerID    string              `json:"owner_id"`
	Provider   IntegrationProvider `json:"provider"`
	KeyLast4   string              `json:"key_last4"`
	KeyEnc     string              `json:"-"`
	SecretEnc  string              `json:"-"`
	VerifiedAt time.Time           `json:"verified_at,omitzero"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}
