// Package notify fans bus events out to the people they affect: in-app
// notifications read over the API, and critical conditions relayed to the
// Telegram ops channel.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	"eusotrip/internal/storage"
	logx "eusotrip/pkg/logx"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type Service struct {
	store storage.Store
	bus   eventbus.Bus
	ops   *OpsAlerter
	log   logx.Logger

	now func() time.Time

	mu       sync.Mutex
	stopCh   chan struct{}
	stopDone chan struct{}
	unsub    func()
}

func New(store storage.Store, bus eventbus.Bus, ops *OpsAlerter, log logx.Logger) *Service {
	if ops == nil {
		ops = NewOpsAlerter(OpsConfig{}, nil, log)
	}
	return &Service{
		store: store,
		bus:   bus,
		ops:   ops,
		log:   log.With(logx.String("component", "notify")),
		now:   time.Now,
	}
}

// Ops exposes the alerter so the app can register it as the log sink.
func (s *Service) Ops() *OpsAlerter { return s.ops }

// Start subscribes to the bus and begins translating events.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.stopDone = make(chan struct{})

	s.ops.Start(ctx)
	ch, unsub := s.bus.Subscribe(128)
	s.unsub = unsub
	go s.run(ctx, ch, s.stopCh, s.stopDone)
	s.log.Info("notify started", logx.Bool("ops_alerts", s.ops.Enabled()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.unsub()
	select {
	case <-s.stopDone:
	case <-ctx.Done():
	}
	s.ops.Stop(ctx)
	s.stopCh = nil
	s.log.Info("notify stopped")
}

func (s *Service) run(ctx context.Context, ch <-chan eventbus.Event, stopCh, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(ctx, e)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, e eventbus.Event) {
	for _, n := range fanout(e) {
		n.ID = domain.NewID()
		n.CreatedAt = s.now().UTC()
		if err := s.store.Notifications().Create(ctx, n); err != nil {
			s.log.Warn("notification write failed",
				logx.Err(err),
				logx.String("user", n.UserID),
				logx.String("type", string(n.Type)))
		}
	}
	if msg, ok := opsMessage(e); ok {
		if err := s.ops.Alert(ctx, msg); err != nil && err != ErrAlertsDisabled {
			s.log.Warn("ops alert failed", logx.Err(err))
		}
	}
}

// List returns a user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.Invalid("user_id", "required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.store.Notifications().ListByUser(ctx, userID, unreadOnly, limit)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, domain.Invalid("user_id", "required")
	}
	return s.store.Notifications().UnreadCount(ctx, userID)
}

// MarkRead marks one notification read. The userID guard stops users
// acknowledging each other's messages.
func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	if strings.TrimSpace(id) == "" {
		return domain.Invalid("id", "required")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Invalid("user_id", "required")
	}
	if err := s.store.Notifications().MarkRead(ctx, id, userID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification for the user and reports
// how many were touched.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, domain.Invalid("user_id", "required")
	}
	n, err := s.store.Notifications().MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}
