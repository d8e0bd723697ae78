package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"eusotrip/internal/domain"
)

type sqlBilling struct{ st *sqlStore }

const invoiceCols = `id, number, load_id, shipper_id, amount_cents, fee_cents, paid_cents,
	status, issued_at, due_at, paid_at`

func (r sqlBilling) CreateInvoice(ctx context.Context, inv domain.Invoice) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO invoices(`+invoiceCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?)`),
		inv.ID, inv.Number, inv.LoadID, inv.ShipperID, inv.AmountCents, inv.FeeCents, inv.PaidCents,
		string(inv.Status), t2s(inv.IssuedAt), t2s(inv.DueAt), nullTime(inv.PaidAt),
	)
	return err
}

func (r sqlBilling) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+invoiceCols+` FROM invoices WHERE id = ?`), id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return inv, err
}

func (r sqlBilling) InvoiceByLoad(ctx context.Context, loadID string) (domain.Invoice, bool, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+invoiceCols+` FROM invoices WHERE load_id = ? LIMIT 1`), loadID)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Invoice{}, false, nil
	}
	if err != nil {
		return domain.Invoice{}, false, err
	}
	return inv, true, nil
}

func (r sqlBilling) UpdateInvoice(ctx context.Context, inv domain.Invoice) error {
	res, err := r.st.db.ExecContext(ctx, r.st.q(
		`UPDATE invoices SET paid_cents = ?, status = ?, paid_at = ? WHERE id = ?`),
		inv.PaidCents, string(inv.Status), nullTime(inv.PaidAt), inv.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r sqlBilling) ListInvoices(ctx context.Context, f InvoiceFilter) ([]domain.Invoice, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ShipperID != "" {
		where = append(where, "shipper_id = ?")
		args = append(args, f.ShipperID)
	}
	query := `SELECT ` + invoiceCols + ` FROM invoices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY issued_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.st.db.QueryContext(ctx, r.st.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r sqlBilling) NextInvoiceSeq(ctx context.Context, year int) (int64, error) {
	return r.st.nextCounter(ctx, "invoice_"+strconv.Itoa(year))
}

func (r sqlBilling) ApplyPayment(ctx context.Context, p domain.Payment, inv domain.Invoice) error {
	tx, err := r.st.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, r.st.q(
		`INSERT INTO payments(id, invoice_id, amount_cents, method, reference, at)
		 VALUES(?,?,?,?,?,?)`),
		p.ID, p.InvoiceID, p.AmountCents, nullStr(p.Method), nullStr(p.Reference), t2s(p.At),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.st.q(
		`UPDATE invoices SET paid_cents = ?, status = ?, paid_at = ? WHERE id = ?`),
		inv.PaidCents, string(inv.Status), nullTime(inv.PaidAt), inv.ID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (r sqlBilling) ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	rows, err := r.st.db.QueryContext(ctx, r.st.q(
		`SELECT id, invoice_id, amount_cents, method, reference, at
		 FROM payments WHERE invoice_id = ? ORDER BY at ASC`), invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		var p domain.Payment
		var method, reference sql.NullString
		var at string
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.AmountCents, &method, &reference, &at); err != nil {
			return nil, err
		}
		p.Method = strOf(method)
		p.Reference = strOf(reference)
		p.At = s2t(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanInvoice(rs rowScanner) (domain.Invoice, error) {
	var inv domain.Invoice
	var status, issued, due string
	var paidAt sql.NullString
	err := rs.Scan(&inv.ID, &inv.Number, &inv.LoadID, &inv.ShipperID,
		&inv.AmountCents, &inv.FeeCents, &inv.PaidCents,
		&status, &issued, &due, &paidAt)
	if err != nil {
		return domain.Invoice{}, err
	}
	inv.Status = domain.InvoiceStatus(status)
	inv.IssuedAt = s2t(issued)
	inv.DueAt = s2t(due)
	inv.PaidAt = timeOf(paidAt)
	return inv, nil
}

type sqlCredentials struct{ st *sqlStore }

const credentialCols = `owner_id, provider, id, key_last4, key_enc, secret_enc,
	verified_at, created_at, updated_at`

func (r sqlCredentials) Upsert(ctx context.Context, c domain.Credential) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO credentials(`+credentialCols+`) VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(owner_id, provider) DO UPDATE SET
			key_last4 = excluded.key_last4, key_enc = excluded.key_enc,
			secret_enc = excluded.secret_enc, verified_at = excluded.verified_at,
			updated_at = excluded.updated_at`),
		c.OwnerID, string(c.Provider), c.ID, nullStr(c.KeyLast4), c.KeyEnc, c.SecretEnc,
		nullTime(c.VerifiedAt), t2s(c.CreatedAt), t2s(c.UpdatedAt),
	)
	return err
}

func (r sqlCredentials) Get(ctx context.Context, ownerID string, provider domain.IntegrationProvider) (domain.Credential, bool, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+credentialCols+` FROM credentials WHERE owner_id = ? AND provider = ?`),
		ownerID, string(provider))
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credential{}, false, nil
	}
	if err != nil {
		return domain.Credential{}, false, err
	}
	return c, true, nil
}

func (r sqlCredentials) Delete(ctx context.Context, ownerID string, provider domain.IntegrationProvider) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`DELETE FROM credentials WHERE owner_id = ? AND provider = ?`), ownerID, string(provider))
	return err
}

func (r sqlCredentials) List(ctx context.Context, ownerID string) ([]domain.Credential, error) {
	rows, err := r.st.db.QueryContext(ctx, r.st.q(
		`SELECT `+credentialCols+` FROM credentials WHERE owner_id = ? ORDER BY provider ASC`), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCredential(rs rowScanner) (domain.Credential, error) {
	var c domain.Credential
	var provider, created, updated string
	var last4, verified sql.NullString
	err := rs.Scan(&c.OwnerID, &provider, &c.ID, &last4, &c.KeyEnc, &c.SecretEnc,
		&verified, &created, &updated)
	if err != nil {
		return domain.Credential{}, err
	}
	c.Provider = domain.IntegrationProvider(provider)
	c.KeyLast4 = strOf(last4)
	c.VerifiedAt = timeOf(verified)
	c.CreatedAt = s2t(created)
	c.UpdatedAt = s2t(updated)
	return c, nil
}

type sqlNotifications struct{ st *sqlStore }

func (r sqlNotifications) Create(ctx context.Context, n domain.Notification) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO notifications(id, user_id, type, title, body, load_id, is_read, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`),
		n.ID, n.UserID, string(n.Type), n.Title, nullStr(n.Body), nullStr(n.LoadID),
		b2i(n.Read), t2s(n.CreatedAt),
	)
	return err
}

func (r sqlNotifications) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id, user_id, type, title, body, load_id, is_read, created_at
		 FROM notifications WHERE user_id = ?`
	args := []any{userID}
	if unreadOnly {
		query += " AND is_read = 0"
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.st.db.QueryContext(ctx, r.st.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var typ, created string
		var body, loadID sql.NullString
		var isRead int64
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &body, &loadID, &isRead, &created); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(typ)
		n.Body = strOf(body)
		n.LoadID = strOf(loadID)
		n.Read = isRead != 0
		n.CreatedAt = s2t(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r sqlNotifications) MarkRead(ctx context.Context, id, userID string) error {
	res, err := r.st.db.ExecContext(ctx, r.st.q(
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r sqlNotifications) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.st.db.ExecContext(ctx, r.st.q(
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`), userID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r sqlNotifications) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`), userID).Scan(&n)
	return n, err
}

type sqlProfiles struct{ st *sqlStore }

const profileCols = `driver_id, xp, level, loads_completed, hazmat_loads, clean_streak,
	safety_score, fuel_efficiency, on_time_rate, achievements, updated_at`

func (r sqlProfiles) Get(ctx context.Context, driverID string) (domain.DriverProfile, bool, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+profileCols+` FROM driver_profiles WHERE driver_id = ?`), driverID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DriverProfile{}, false, nil
	}
	if err != nil {
		return domain.DriverProfile{}, false, err
	}
	return p, true, nil
}

func (r sqlProfiles) Upsert(ctx context.Context, p domain.DriverProfile) error {
	ach, err := json.Marshal(p.Achievements)
	if err != nil {
		return err
	}
	_, err = r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO driver_profiles(`+profileCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(driver_id) DO UPDATE SET
			xp = excluded.xp, level = excluded.level,
			loads_completed = excluded.loads_completed, hazmat_loads = excluded.hazmat_loads,
			clean_streak = excluded.clean_streak, safety_score = excluded.safety_score,
			fuel_efficiency = excluded.fuel_efficiency, on_time_rate = excluded.on_time_rate,
			achievements = excluded.achievements, updated_at = excluded.updated_at`),
		p.DriverID, p.XP, p.Level, p.LoadsCompleted, p.HazmatLoads, p.CleanLoadStreak,
		p.SafetyScore, p.FuelEfficiency, p.OnTimeRate, string(ach), t2s(p.UpdatedAt),
	)
	return err
}

func (r sqlProfiles) Leaderboard(ctx context.Context, limit int) ([]domain.DriverProfile, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.st.db.QueryContext(ctx, r.st.q(
		`SELECT `+profileCols+` FROM driver_profiles ORDER BY xp DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DriverProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(rs rowScanner) (domain.DriverProfile, error) {
	var p domain.DriverProfile
	var ach, updated string
	err := rs.Scan(&p.DriverID, &p.XP, &p.Level, &p.LoadsCompleted, &p.HazmatLoads, &p.CleanLoadStreak,
		&p.SafetyScore, &p.FuelEfficiency, &p.OnTimeRate, &ach, &updated)
	if err != nil {
		return domain.DriverProfile{}, err
	}
	if err := json.Unmarshal([]byte(ach), &p.Achievements); err != nil {
		return domain.DriverProfile{}, err
	}
	p.UpdatedAt = s2t(updated)
	return p, nil
}

type sqlCompliance struct{ st *sqlStore }

func (r sqlCompliance) UpsertDoc(ctx context.Context, d domain.ComplianceDoc) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO compliance_docs(id, subject_id, kind, number, expires_at, created_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(subject_id, kind) DO UPDATE SET
			number = excluded.number, expires_at = excluded.expires_at`),
		d.ID, d.SubjectID, d.Kind, nullStr(d.Number), t2s(d.ExpiresAt), t2s(d.CreatedAt),
	)
	return err
}

func (r sqlCompliance) ListExpiring(ctx context.Context, before time.Time) ([]domain.ComplianceDoc, error) {
	rows, err := r.st.db.QueryContext(ctx, r.st.q(
		`SELECT id, subject_id, kind, number, expires_at, created_at
		 FROM compliance_docs WHERE expires_at < ? ORDER BY expires_at ASC`), t2s(before))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocs(rows)
}

func (r sqlCompliance) ListDocsBySubject(ctx context.Context, subjectID string) ([]domain.ComplianceDoc, error) {
	rows, err := r.st.db.QueryContext(ctx, r.st.q(
		`SELECT id, subject_id, kind, number, expires_at, created_at
		 FROM compliance_docs WHERE subject_id = ? ORDER BY expires_at ASC`), subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocs(rows)
}

func collectDocs(rows *sql.Rows) ([]domain.ComplianceDoc, error) {
	var out []domain.ComplianceDoc
	for rows.Next() {
		var d domain.ComplianceDoc
		var number sql.NullString
		var expires, created string
		if err := rows.Scan(&d.ID, &d.SubjectID, &d.Kind, &number, &expires, &created); err != nil {
			return nil, err
		}
		d.Number = strOf(number)
		d.ExpiresAt = s2t(expires)
		d.CreatedAt = s2t(created)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r sqlCompliance) CreateInspection(ctx context.Context, ins domain.Inspection) error {
	defects, err := json.Marshal(ins.Defects)
	if err != nil {
		return err
	}
	_, err = r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO inspections(id, vehicle_id, driver_id, at, defects, out_of_service)
		 VALUES(?,?,?,?,?,?)`),
		ins.ID, ins.VehicleID, nullStr(ins.DriverID), t2s(ins.At), string(defects), b2i(ins.OutOfService),
	)
	return err
}

func (r sqlCompliance) ListInspections(ctx context.Context, vehicleID string, limit int) ([]domain.Inspection, error) {
	query := `SELECT id, vehicle_id, driver_id, at, defects, out_of_service
		 FROM inspections WHERE vehicle_id = ? ORDER BY at DESC`
	args := []any{vehicleID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.st.db.QueryContext(ctx, r.st.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Inspection
	for rows.Next() {
		var ins domain.Inspection
		var driver sql.NullString
		var at, defects string
		var oos int64
		if err := rows.Scan(&ins.ID, &ins.VehicleID, &driver, &at, &defects, &oos); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(defects), &ins.Defects); err != nil {
			return nil, err
		}
		ins.DriverID = strOf(driver)
		ins.At = s2t(at)
		ins.OutOfService = oos != 0
		out = append(out, ins)
	}
	return out, rows.Err()
}

type sqlHazmat struct{ st *sqlStore }

func (r sqlHazmat) CreateIncident(ctx context.Context, in domain.HazmatIncident) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO hazmat_incidents(id, load_id, un_number, guide_no, location, note, created_at)
		 VALUES(?,?,?,?,?,?,?)`),
		in.ID, nullStr(in.LoadID), in.UNNumber, in.GuideNo, nullStr(in.Location), nullStr(in.Note), t2s(in.CreatedAt),
	)
	return err
}

func (r sqlHazmat) ListIncidents(ctx context.Context, loadID string, limit int) ([]domain.HazmatIncident, error) {
	query := `SELECT id, load_id, un_number, guide_no, location, note, created_at FROM hazmat_incidents`
	var args []any
	if loadID != "" {
		query += " WHERE load_id = ?"
		args = append(args, loadID)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.st.db.QueryContext(ctx, r.st.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HazmatIncident
	for rows.Next() {
		var in domain.HazmatIncident
		var load, location, note sql.NullString
		var created string
		if err := rows.Scan(&in.ID, &load, &in.UNNumber, &in.GuideNo, &location, &note, &created); err != nil {
			return nil, err
		}
		in.LoadID = strOf(load)
		in.Location = strOf(location)
		in.Note = strOf(note)
		in.CreatedAt = s2t(created)
		out = append(out, in)
	}
	return out, rows.Err()
}
