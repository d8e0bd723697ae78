package storage

import (
	"context"
	"errors"
	"time"

	"eusotrip/internal/domain"
)

var ErrNotOpen = errors.New("storage not open")

// Config configures storage.
//
// Driver values:
//   - "sqlite": local database file (default deployment)
//   - "postgres": shared deployments (pgx pool)
//   - "memory": non-durable, for development and tests
type Config struct {
	Driver      string
	Path        string        // sqlite file path
	DSN         string        // postgres connection string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an API or scheduler action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time
	Actor    string
	Action   string
	Entity   string
	EntityID string
	OK       bool
	Error    string
	TookMS   int64
	MetaJSON string
}

// LoadFilter narrows List. Zero fields are ignored.
type LoadFilter struct {
	Statuses      []domain.LoadStatus
	ShipperID     string
	CarrierID     string
	DriverID      string
	ScheduleID    string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

// BoardFilter narrows the open-load board.
type BoardFilter struct {
	OriginState  string
	Equipment    domain.Equipment
	HazmatOnly   bool
	MinRateCents int64
	Limit        int
}

type ScheduleFilter struct {
	ShipperID  string
	ActiveOnly bool
}

type DriverFilter struct {
	CarrierID     string
	AvailableOnly bool
}

type VehicleFilter struct {
	CarrierID string
}

type InvoiceFilter struct {
	Status    domain.InvoiceStatus
	ShipperID string
	Limit     int
}

type LoadRepo interface {
	Create(ctx context.Context, l domain.Load) error
	Get(ctx context.Context, id string) (domain.Load, error)
	Update(ctx context.Context, l domain.Load) error
	List(ctx context.Context, f LoadFilter) ([]domain.Load, error)
	Board(ctx context.Context, f BoardFilter) ([]domain.Load, error)
	NextRef(ctx context.Context) (int64, error)
	AppendTimeline(ctx context.Context, e domain.TimelineEntry) error
	Timeline(ctx context.Context, loadID string) ([]domain.TimelineEntry, error)
}

type BidRepo interface {
	Create(ctx context.Context, b domain.Bid) error
	Get(ctx context.Context, id string) (domain.Bid, error)
	Update(ctx context.Context, b domain.Bid) error
	ListByLoad(ctx context.Context, loadID string) ([]domain.Bid, error)
	OpenByLoadAndCarrier(ctx context.Context, loadID, carrierID string) (domain.Bid, bool, error)
}

type ScheduleRepo interface {
	Create(ctx context.Context, s domain.Schedule) error
	Get(ctx context.Context, id string) (domain.Schedule, error)
	Update(ctx context.Context, s domain.Schedule) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ScheduleFilter) ([]domain.Schedule, error)
	HasOccurrence(ctx context.Context, scheduleID, date string) (bool, error)
	PutOccurrence(ctx context.Context, o domain.Occurrence) error
	ListOccurrences(ctx context.Context, scheduleID string) ([]domain.Occurrence, error)
}

type DriverRepo interface {
	Create(ctx context.Context, d domain.Driver) error
	Get(ctx context.Context, id string) (domain.Driver, error)
	Update(ctx context.Context, d domain.Driver) error
	List(ctx context.Context, f DriverFilter) ([]domain.Driver, error)
}

type VehicleRepo interface {
	Create(ctx context.Context, v domain.Vehicle) error
	Get(ctx context.Context, id string) (domain.Vehicle, error)
	Update(ctx context.Context, v domain.Vehicle) error
	List(ctx context.Context, f VehicleFilter) ([]domain.Vehicle, error)
}

type TelemetryRepo interface {
	UpsertLast(ctx context.Context, p domain.Position) error
	Last(ctx context.Context, vehicleID string) (domain.Position, bool, error)
	LastForVehicles(ctx context.Context, vehicleIDs []string) (map[string]domain.Position, error)
	AppendHistory(ctx context.Context, ps []domain.Position) error
	History(ctx context.Context, vehicleID string, since time.Time, limit int) ([]domain.Position, error)
	PruneHistory(ctx context.Context, vehicleID string, keep int) error
}

type GeofenceRepo interface {
	Put(ctx context.Context, g domain.Geofence) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.Geofence, error)
}

type BillingRepo interface {
	CreateInvoice(ctx context.Context, inv domain.Invoice) error
	GetInvoice(ctx context.Context, id string) (domain.Invoice, error)
	InvoiceByLoad(ctx context.Context, loadID string) (domain.Invoice, bool, error)
	UpdateInvoice(ctx context.Context, inv domain.Invoice) error
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]domain.Invoice, error)
	NextInvoiceSeq(ctx context.Context, year int) (int64, error)
	// ApplyPayment records the payment and the updated invoice atomically.
	ApplyPayment(ctx context.Context, p domain.Payment, inv domain.Invoice) error
	ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error)
}

type CredentialRepo interface {
	Upsert(ctx context.Context, c domain.Credential) error
	Get(ctx context.Context, ownerID string, provider domain.IntegrationProvider) (domain.Credential, bool, error)
	Delete(ctx context.Context, ownerID string, provider domain.IntegrationProvider) error
	List(ctx context.Context, ownerID string) ([]domain.Credential, error)
}

type NotificationRepo interface {
	Create(ctx context.Context, n domain.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type ProfileRepo interface {
	Get(ctx context.Context, driverID string) (domain.DriverProfile, bool, error)
	Upsert(ctx context.Context, p domain.DriverProfile) error
	Leaderboard(ctx context.Context, limit int) ([]domain.DriverProfile, error)
}

type ComplianceRepo interface {
	UpsertDoc(ctx context.Context, d domain.ComplianceDoc) error
	ListExpiring(ctx context.Context, before time.Time) ([]domain.ComplianceDoc, error)
	ListDocsBySubject(ctx context.Context, subjectID string) ([]domain.ComplianceDoc, error)
	CreateInspection(ctx context.Context, ins domain.Inspection) error
	ListInspections(ctx context.Context, vehicleID string, limit int) ([]domain.Inspection, error)
}

type HazmatRepo interface {
	CreateIncident(ctx context.Context, in domain.HazmatIncident) error
	ListIncidents(ctx context.Context, loadID string, limit int) ([]domain.HazmatIncident, error)
}

// Store is the persistence API used by the services.
//
// AcceptBid applies a bid acceptance atomically: the accepted bid, its
// rejected siblings and the updated load commit together or not at all.
type Store interface {
	Loads() LoadRepo
	Bids() BidRepo
	Schedules() ScheduleRepo
	Drivers() DriverRepo
	Vehicles() VehicleRepo
	Telemetry() TelemetryRepo
	Geofences() GeofenceRepo
	Billing() BillingRepo
	Credentials() CredentialRepo
	Notifications() NotificationRepo
	Profiles() ProfileRepo
	Compliance() ComplianceRepo
	Hazmat() HazmatRepo

	AcceptBid(ctx context.Context, accepted domain.Bid, rejected []domain.Bid, load domain.Load) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}
