package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"eusotrip/internal/domain"
	logx "eusotrip/pkg/logx"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlStore backs both the sqlite and postgres drivers. Queries are written
// once with ? placeholders; q() rebinds them to $N for postgres.
type sqlStore struct {
	db  *sql.DB
	log logx.Logger
	dia dialect

	// set by the postgres opener; sqlite appends row by row
	batchAppend func(ctx context.Context, ps []domain.Position) error

	closeExtra func() // closes the underlying pool, if any
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.closeExtra != nil {
		s.closeExtra()
	}
	return err
}

func (s *sqlStore) Loads() LoadRepo                 { return sqlLoads{s} }
func (s *sqlStore) Bids() BidRepo                   { return sqlBids{s} }
func (s *sqlStore) Schedules() ScheduleRepo         { return sqlSchedules{s} }
func (s *sqlStore) Drivers() DriverRepo             { return sqlDrivers{s} }
func (s *sqlStore) Vehicles() VehicleRepo           { return sqlVehicles{s} }
func (s *sqlStore) Telemetry() TelemetryRepo        { return sqlTelemetry{s} }
func (s *sqlStore) Geofences() GeofenceRepo         { return sqlGeofences{s} }
func (s *sqlStore) Billing() BillingRepo            { return sqlBilling{s} }
func (s *sqlStore) Credentials() CredentialRepo     { return sqlCredentials{s} }
func (s *sqlStore) Notifications() NotificationRepo { return sqlNotifications{s} }
func (s *sqlStore) Profiles() ProfileRepo           { return sqlProfiles{s} }
func (s *sqlStore) Compliance() ComplianceRepo      { return sqlCompliance{s} }
func (s *sqlStore) Hazmat() HazmatRepo              { return sqlHazmat{s} }

// q rebinds ? placeholders to $N for postgres. Queries never put ? inside
// string literals, so a straight scan is safe.
func (s *sqlStore) q(query string) string {
	if s.dia != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO audit(at, actor, action, entity, entity_id, ok, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?)`),
		t2s(e.At), nullStr(e.Actor), e.Action, nullStr(e.Entity), nullStr(e.EntityID),
		b2i(e.OK), nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

// AcceptBid commits the accepted bid, its rejected siblings and the updated
// load in one transaction.
func (s *sqlStore) AcceptBid(ctx context.Context, accepted domain.Bid, rejected []domain.Bid, load domain.Load) error {
	if s == nil || s.db == nil {
		return ErrNotOpen
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	upBid := s.q(`UPDATE bids SET status = ?, updated_at = ? WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, upBid, string(accepted.Status), t2s(accepted.UpdatedAt), accepted.ID); err != nil {
		return err
	}
	for _, b := range rejected {
		if _, err := tx.ExecContext(ctx, upBid, string(b.Status), t2s(b.UpdatedAt), b.ID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, s.q(
		`UPDATE loads SET status = ?, carrier_id = ?, rate_cents = ?, updated_at = ? WHERE id = ?`),
		string(load.Status), nullStr(load.CarrierID), load.RateCents, t2s(load.UpdatedAt), load.ID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// nextCounter increments and returns the named sequence.
func (s *sqlStore) nextCounter(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, s.q(
		`INSERT INTO counters(name, value) VALUES(?, 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1
		 RETURNING value`), name).Scan(&v)
	return v, err
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// nullTime stores zero times as NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t2s(t)
}

func t2s(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// s2t parses a stored timestamp; empty or malformed values become zero.
func s2t(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// b2i stores booleans as 0/1 so both backends agree on the column type.
func b2i(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func strOf(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func timeOf(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return s2t(v.String)
}
