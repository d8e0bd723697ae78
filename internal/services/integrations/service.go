// Package integrations stores third-party credentials (telematics, fuel
// cards, load boards, accounting) encrypted at rest and reports
// per-provider connection status. Plaintext key material never leaves
// the package.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

// ErrNotConfigured is returned from Save when no secret key is set, so
// there is nothing to encrypt credentials with.
var ErrNotConfigured = errors.New("integrations: secret key not configured")

type Service struct {
	store  storage.Store
	cipher *Cipher
	log    logx.Logger
	now    func() time.Time
}

// New builds the service. A nil cipher disables Save and Verify but
// leaves List, Remove and Status working.
func New(store storage.Store, cipher *Cipher, log logx.Logger) *Service {
	return &Service{
		store:  store,
		cipher: cipher,
		log:    log.With(logx.String("component", "integrations")),
		now:    time.Now,
	}
}

// Configured reports whether credentials can be saved.
func (s *Service) Configured() bool { return s.cipher != nil }

type SaveInput struct {
	OwnerID  string                     `json:"owner_id"`
	Provider domain.IntegrationProvider `json:"provider"`
	Key      string                     `json:"key"`
	Secret   string                     `json:"secret"`
}

func (in SaveInput) validate() error {
	if strings.TrimSpace(in.OwnerID) == "" {
		return domain.Invalid("owner_id", "required")
	}
	if !domain.ValidProvider(in.Provider) {
		return domain.Invalid("provider", fmt.Sprintf("unknown provider %q", in.Provider))
	}
	if strings.TrimSpace(in.Key) == "" {
		return domain.Invalid("key", "required")
	}
	if strings.TrimSpace(in.Secret) == "" {
		return domain.Invalid("secret", "required")
	}
	return nil
}

// Save encrypts and stores one credential per (owner, provider). Saving
// again replaces the key material but keeps the credential identity.
// The returned credential is already masked.
func (s *Service) Save(ctx context.Context, in SaveInput, actor string) (domain.Credential, error) {
	start := time.Now()
	if err := in.validate(); err != nil {
		return domain.Credential{}, err
	}
	if s.cipher == nil {
		return domain.Credential{}, ErrNotConfigured
	}

	keyEnc, err := s.cipher.Seal(in.Key)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("seal key: %w", err)
	}
	secretEnc, err := s.cipher.Seal(in.Secret)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("seal secret: %w", err)
	}

	cred := domain.Credential{
		ID:        domain.NewID(),
		OwnerID:   in.OwnerID,
		Provider:  in.Provider,
		KeyLast4:  last4(in.Key),
		KeyEnc:    keyEnc,
		SecretEnc: secretEnc,
		CreatedAt: s.now().UTC(),
		UpdatedAt: s.now().UTC(),
	}
	if prev, ok, err := s.store.Credentials().Get(ctx, in.OwnerID, in.Provider); err != nil {
		return domain.Credential{}, fmt.Errorf("credential lookup: %w", err)
	} else if ok {
		cred.ID = prev.ID
		cred.CreatedAt = prev.CreatedAt
	}

	err = s.store.Credentials().Upsert(ctx, cred)
	s.audit(ctx, actor, "integrations.save", string(in.Provider), start, err)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("store credential: %w", err)
	}

	s.log.Info("credential saved",
		logx.String("owner", in.OwnerID),
		logx.String("provider", string(in.Provider)))
	return masked(cred), nil
}

// List returns the owner's credentials, masked, ordered by provider.
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.Credential, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.Invalid("owner_id", "required")
	}
	creds, err := s.store.Credentials().List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	out := make([]domain.Credential, len(creds))
	for i, c := range creds {
		out[i] = masked(c)
	}
	return out, nil
}

// Remove deletes the owner's credential for a provider. Removing a
// credential that does not exist is not an error.
func (s *Service) Remove(ctx context.Context, ownerID string, provider domain.IntegrationProvider, actor string) error {
	start := time.Now()
	if strings.TrimSpace(ownerID) == "" {
		return domain.Invalid("owner_id", "required")
	}
	if !domain.ValidProvider(provider) {
		return domain.Invalid("provider", fmt.Sprintf("unknown provider %q", provider))
	}
	err := s.store.Credentials().Delete(ctx, ownerID, provider)
	s.audit(ctx, actor, "integrations.remove", string(provider), start, err)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// Status is the connection summary for one provider.
type Status struct {
	Provider   domain.IntegrationProvider `json:"provider"`
	Connected  bool                       `json:"connected"`
	KeyLast4   string                     `json:"key_last4,omitempty"`
	VerifiedAt time.Time                  `json:"verified_at,omitzero"`
	UpdatedAt  time.Time                  `json:"updated_at,omitzero"`
}

// Status reports whether the owner has a credential on file for the
// provider. Absent credentials are not an error; they read disconnected.
func (s *Service) Status(ctx context.Context, ownerID string, provider domain.IntegrationProvider) (Status, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Status{}, domain.Invalid("owner_id", "required")
	}
	if !domain.ValidProvider(provider) {
		return Status{}, domain.Invalid("provider", fmt.Sprintf("unknown provider %q", provider))
	}
	cred, ok, err := s.store.Credentials().Get(ctx, ownerID, provider)
	if err != nil {
		return Status{}, fmt.Errorf("credential lookup: %w", err)
	}
	if !ok {
		return Status{Provider: provider}, nil
	}
	return Status{
		Provider:   provider,
		Connected:  true,
		KeyLast4:   cred.KeyLast4,
		VerifiedAt: cred.VerifiedAt,
		UpdatedAt:  cred.UpdatedAt,
	}, nil
}

// Verify proves the stored key material still decrypts under the current
// secret key and stamps the verification time. It catches credentials
// sealed under a rotated-away key.
func (s *Service) Verify(ctx context.Context, ownerID string, provider domain.IntegrationProvider, actor string) (Status, error) {
	start := time.Now()
	if s.cipher == nil {
		return Status{}, ErrNotConfigured
	}
	cred, ok, err := s.store.Credentials().Get(ctx, ownerID, provider)
	if err != nil {
		return Status{}, fmt.Errorf("credential lookup: %w", err)
	}
	if !ok {
		return Status{}, fmt.Errorf("credential %s/%s: %w", ownerID, provider, domain.ErrNotFound)
	}

	_, err = s.cipher.Open(cred.KeyEnc)
	if err == nil {
		_, err = s.cipher.Open(cred.SecretEnc)
	}
	if err != nil {
		s.audit(ctx, actor, "integrations.verify", string(provider), start, err)
		return Status{}, fmt.Errorf("credential does not decrypt: %w", err)
	}

	cred.VerifiedAt = s.now().UTC()
	cred.UpdatedAt = cred.VerifiedAt
	err = s.store.Credentials().Upsert(ctx, cred)
	s.audit(ctx, actor, "integrations.verify", string(provider), start, err)
	if err != nil {
		return Status{}, fmt.Errorf("store credential: %w", err)
	}
	return Status{
		Provider:   provider,
		Connected:  true,
		KeyLast4:   cred.KeyLast4,
		VerifiedAt: cred.VerifiedAt,
		UpdatedAt:  cred.UpdatedAt,
	}, nil
}

// masked strips encrypted material before a credential leaves the
// service.
func masked(c domain.Credential) domain.Credential {
	c.KeyEnc = ""
	c.SecretEnc = ""
	return c
}

func last4(key string) string {
	r := []rune(key)
	if len(r) <= 4 {
		return key
	}
	return string(r[len(r)-4:])
}

func (s *Service) audit(ctx context.Context, actor, action, entityID string, start time.Time, err error) {
	entry := storage.AuditEntry{
		At:       s.now().UTC(),
		Actor:    actor,
		Action:   action,
		Entity:   "integration",
		EntityID: entityID,
		OK:       err == nil,
		TookMS:   time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if aerr := s.store.AppendAudit(ctx, entry); aerr != nil {
		s.log.Warn("audit append failed", logx.Err(aerr), logx.String("action", action))
	}
}
