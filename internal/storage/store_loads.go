package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"eusotrip/internal/domain"
)

const loadCols = `id, ref, shipper_id, carrier_id, driver_id, vehicle_id, schedule_id,
	origin_facility, origin_city, origin_state, origin_lat, origin_lon,
	dest_facility, dest_city, dest_state, dest_lat, dest_lon,
	equipment, commodity, hazmat_class, un_number, weight_lbs, rate_cents,
	distance_miles, pickup_at, deliver_by, status, created_at, updated_at`

type sqlLoads struct{ st *sqlStore }

func (r sqlLoads) Create(ctx context.Context, l domain.Load) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO loads(`+loadCols+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		l.ID, l.Ref, l.ShipperID, nullStr(l.CarrierID), nullStr(l.DriverID), nullStr(l.VehicleID), nullStr(l.ScheduleID),
		nullStr(l.Origin.Facility), nullStr(l.Origin.City), nullStr(l.Origin.State), l.Origin.Lat, l.Origin.Lon,
		nullStr(l.Dest.Facility), nullStr(l.Dest.City), nullStr(l.Dest.State), l.Dest.Lat, l.Dest.Lon,
		string(l.Equipment), nullStr(l.Commodity), nullStr(l.HazmatClass), nullStr(l.UNNumber), l.WeightLbs, l.RateCents,
		l.DistanceMiles, t2s(l.PickupAt), nullTime(l.DeliverBy), string(l.Status), t2s(l.CreatedAt), t2s(l.UpdatedAt),
	)
	return err
}

func (r sqlLoads) Get(ctx context.Context, id string) (domain.Load, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+loadCols+` FROM loads WHERE id = ?`), id)
	l, err := scanLoad(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Load{}, domain.ErrNotFound
	}
	return l, err
}

func (r sqlLoads) Update(ctx context.Context, l domain.Load) error {
	res, err := r.st.db.ExecContext(ctx, r.st.q(
		`UPDATE loads SET
			carrier_id = ?, driver_id = ?, vehicle_id = ?,
			equipment = ?, commodity = ?, hazmat_class = ?, un_number = ?,
			weight_lbs = ?, rate_cents = ?, distance_miles = ?,
			pickup_at = ?, deliver_by = ?, status = ?, updated_at = ?
		 WHERE id = ?`),
		nullStr(l.CarrierID), nullStr(l.DriverID), nullStr(l.VehicleID),
		string(l.Equipment), nullStr(l.Commodity), nullStr(l.HazmatClass), nullStr(l.UNNumber),
		l.WeightLbs, l.RateCents, l.DistanceMiles,
		t2s(l.PickupAt), nullTime(l.DeliverBy), string(l.Status), t2s(l.UpdatedAt),
		l.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r sqlLoads) List(ctx context.Context, f LoadFilter) ([]domain.Load, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(ph, ",")+")")
	}
	if f.ShipperID != "" {
		where = append(where, "shipper_id = ?")
		args = append(args, f.ShipperID)
	}
	if f.CarrierID != "" {
		where = append(where, "carrier_id = ?")
		args = append(args, f.CarrierID)
	}
	if f.DriverID != "" {
		where = append(where, "driver_id = ?")
		args = append(args, f.DriverID)
	}
	if f.ScheduleID != "" {
		where = append(where, "schedule_id = ?")
		args = append(args, f.ScheduleID)
	}
	if !f.CreatedAfter.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, t2s(f.CreatedAfter))
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, t2s(f.CreatedBefore))
	}

	query := `SELECT ` + loadCols + ` FROM loads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.st.db.QueryContext(ctx, r.st.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r sqlLoads) Board(ctx context.Context, f BoardFilter) ([]domain.Load, error) {
	where := []string{"status = ?", "carrier_id IS NULL"}
	args := []any{string(domain.StatusPending)}
	if f.OriginState != "" {
		where = append(where, "origin_state = ?")
		args = append(args, f.OriginState)
	}
	if f.Equipment != "" {
		where = append(where, "equipment = ?")
		args = append(args, string(f.Equipment))
	}
	if f.HazmatOnly {
		where = append(where, "(un_number IS NOT NULL OR hazmat_class IS NOT NULL)")
	}
	if f.MinRateCents > 0 {
		where = append(where, "rate_cents >= ?")
		args = append(args, f.MinRateCents)
	}

	query := `SELECT ` + loadCols + ` FROM loads WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY pickup_at ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.st.db.QueryContext(ctx, r.st.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r sqlLoads) NextRef(ctx context.Context) (int64, error) {
	return r.st.nextCounter(ctx, "load_ref")
}

func (r sqlLoads) AppendTimeline(ctx context.Context, e domain.TimelineEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO load_timeline(load_id, at, from_status, to_status, actor, note)
		 VALUES(?,?,?,?,?,?)`),
		e.LoadID, t2s(e.At), nullStr(string(e.From)), string(e.To), nullStr(e.Actor), nullStr(e.Note),
	)
	return err
}

func (r sqlLoads) Timeline(ctx context.Context, loadID string) ([]domain.TimelineEntry, error) {
	rows, err := r.st.db.QueryContext(ctx, r.st.q(
		`SELECT load_id, at, from_status, to_status, actor, note
		 FROM load_timeline WHERE load_id = ? ORDER BY at ASC`), loadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TimelineEntry
	for rows.Next() {
		var e domain.TimelineEntry
		var at string
		var from, actor, note sql.NullString
		if err := rows.Scan(&e.LoadID, &at, &from, &e.To, &actor, &note); err != nil {
			return nil, err
		}
		e.At = s2t(at)
		e.From = domain.LoadStatus(strOf(from))
		e.Actor = strOf(actor)
		e.Note = strOf(note)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanLoad(rs rowScanner) (domain.Load, error) {
	var l domain.Load
	var carrier, driver, vehicle, schedule sql.NullString
	var oFac, oCity, oState, dFac, dCity, dState sql.NullString
	var commodity, hazClass, unNumber, deliverBy sql.NullString
	var equipment, status, pickupAt, created, updated string
	err := rs.Scan(
		&l.ID, &l.Ref, &l.ShipperID, &carrier, &driver, &vehicle, &schedule,
		&oFac, &oCity, &oState, &l.Origin.Lat, &l.Origin.Lon,
		&dFac, &dCity, &dState, &l.Dest.Lat, &l.Dest.Lon,
		&equipment, &commodity, &hazClass, &unNumber, &l.WeightLbs, &l.RateCents,
		&l.DistanceMiles, &pickupAt, &deliverBy, &status, &created, &updated,
	)
	if err != nil {
		return domain.Load{}, err
	}
	l.CarrierID = strOf(carrier)
	l.DriverID = strOf(driver)
	l.VehicleID = strOf(vehicle)
	l.ScheduleID = strOf(schedule)
	l.Origin.Facility = strOf(oFac)
	l.Origin.City = strOf(oCity)
	l.Origin.State = strOf(oState)
	l.Dest.Facility = strOf(dFac)
	l.Dest.City = strOf(dCity)
	l.Dest.State = strOf(dState)
	l.Equipment = domain.Equipment(equipment)
	l.Commodity = strOf(commodity)
	l.HazmatClass = strOf(hazClass)
	l.UNNumber = strOf(unNumber)
	l.PickupAt = s2t(pickupAt)
	l.DeliverBy = timeOf(deliverBy)
	l.Status = domain.LoadStatus(status)
	l.CreatedAt = s2t(created)
	l.UpdatedAt = s2t(updated)
	return l, nil
}

type sqlBids struct{ st *sqlStore }

const bidCols = `id, load_id, carrier_id, amount_cents, note, status, created_at, updated_at`

func (r sqlBids) Create(ctx context.Context, b domain.Bid) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO bids(`+bidCols+`) VALUES(?,?,?,?,?,?,?,?)`),
		b.ID, b.LoadID, b.CarrierID, b.AmountCents, nullStr(b.Note), string(b.Status),
		t2s(b.CreatedAt), t2s(b.UpdatedAt),
	)
	return err
}

func (r sqlBids) Get(ctx context.Context, id string) (domain.Bid, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+bidCols+` FROM bids WHERE id = ?`), id)
	b, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bid{}, domain.ErrNotFound
	}
	return b, err
}

func (r sqlBids) Update(ctx context.Context, b domain.Bid) error {
	res, err := r.st.db.ExecContext(ctx, r.st.q(
		`UPDATE bids SET amount_cents = ?, note = ?, status = ?, updated_at = ? WHERE id = ?`),
		b.AmountCents, nullStr(b.Note), string(b.Status), t2s(b.UpdatedAt), b.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r sqlBids) ListByLoad(ctx context.Context, loadID string) ([]domain.Bid, error) {
	rows, err := r.st.db.QueryContext(ctx, r.st.q(
		`SELECT `+bidCols+` FROM bids WHERE load_id = ? ORDER BY created_at DESC`), loadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r sqlBids) OpenByLoadAndCarrier(ctx context.Context, loadID, carrierID string) (domain.Bid, bool, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+bidCols+` FROM bids
		 WHERE load_id = ? AND carrier_id = ? AND status = ? LIMIT 1`),
		loadID, carrierID, string(domain.BidPending))
	b, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bid{}, false, nil
	}
	if err != nil {
		return domain.Bid{}, false, err
	}
	return b, true, nil
}

func scanBid(rs rowScanner) (domain.Bid, error) {
	var b domain.Bid
	var note sql.NullString
	var status, created, updated string
	err := rs.Scan(&b.ID, &b.LoadID, &b.CarrierID, &b.AmountCents, &note, &status, &created, &updated)
	if err != nil {
		return domain.Bid{}, err
	}
	b.Note = strOf(note)
	b.Status = domain.BidStatus(status)
	b.CreatedAt = s2t(created)
	b.UpdatedAt = s2t(updated)
	return b, nil
}

type sqlSchedules struct{ st *sqlStore }

const scheduleCols = `id, shipper_id, name, template, weekdays, pickup_hour, pickup_min,
	timezone, horizon_days, active, created_at, updated_at`

func (r sqlSchedules) Create(ctx context.Context, s domain.Schedule) error {
	tmpl, wd, err := encodeSchedule(s)
	if err != nil {
		return err
	}
	_, err = r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO schedules(`+scheduleCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`),
		s.ID, s.ShipperID, s.Name, tmpl, wd, s.PickupHour, s.PickupMin,
		nullStr(s.Timezone), s.HorizonDays, b2i(s.Active), t2s(s.CreatedAt), t2s(s.UpdatedAt),
	)
	return err
}

func (r sqlSchedules) Get(ctx context.Context, id string) (domain.Schedule, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+scheduleCols+` FROM schedules WHERE id = ?`), id)
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Schedule{}, domain.ErrNotFound
	}
	return s, err
}

func (r sqlSchedules) Update(ctx context.Context, s domain.Schedule) error {
	tmpl, wd, err := encodeSchedule(s)
	if err != nil {
		return err
	}
	res, err := r.st.db.ExecContext(ctx, r.st.q(
		`UPDATE schedules SET
			name = ?, template = ?, weekdays = ?, pickup_hour = ?, pickup_min = ?,
			timezone = ?, horizon_days = ?, active = ?, updated_at = ?
		 WHERE id = ?`),
		s.Name, tmpl, wd, s.PickupHour, s.PickupMin,
		nullStr(s.Timezone), s.HorizonDays, b2i(s.Active), t2s(s.UpdatedAt), s.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r sqlSchedules) Delete(ctx context.Context, id string) error {
	res, err := r.st.db.ExecContext(ctx, r.st.q(`DELETE FROM schedules WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r sqlSchedules) List(ctx context.Context, f ScheduleFilter) ([]domain.Schedule, error) {
	var (
		where []string
		args  []any
	)
	if f.ShipperID != "" {
		where = append(where, "shipper_id = ?")
		args = append(args, f.ShipperID)
	}
	if f.ActiveOnly {
		where = append(where, "active = 1")
	}
	query := `SELECT ` + scheduleCols + ` FROM schedules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.st.db.QueryContext(ctx, r.st.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r sqlSchedules) HasOccurrence(ctx context.Context, scheduleID, date string) (bool, error) {
	var one int
	err := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT 1 FROM occurrences WHERE schedule_id = ? AND date = ?`), scheduleID, date).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r sqlSchedules) PutOccurrence(ctx context.Context, o domain.Occurrence) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO occurrences(schedule_id, date, load_id, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(schedule_id, date) DO NOTHING`),
		o.ScheduleID, o.Date, o.LoadID, t2s(o.CreatedAt),
	)
	return err
}

func (r sqlSchedules) ListOccurrences(ctx context.Context, scheduleID string) ([]domain.Occurrence, error) {
	rows, err := r.st.db.QueryContext(ctx, r.st.q(
		`SELECT schedule_id, date, load_id, created_at
		 FROM occurrences WHERE schedule_id = ? ORDER BY date ASC`), scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Occurrence
	for rows.Next() {
		var (
			o       domain.Occurrence
			created string
		)
		if err := rows.Scan(&o.ScheduleID, &o.Date, &o.LoadID, &created); err != nil {
			return nil, err
		}
		o.CreatedAt = s2t(created)
		out = append(out, o)
	}
	return out, rows.Err()
}

func encodeSchedule(s domain.Schedule) (tmpl, weekdays string, err error) {
	tb, err := json.Marshal(s.Template)
	if err != nil {
		return "", "", err
	}
	wb, err := json.Marshal(s.Weekdays)
	if err != nil {
		return "", "", err
	}
	return string(tb), string(wb), nil
}

func scanSchedule(rs rowScanner) (domain.Schedule, error) {
	var s domain.Schedule
	var tmpl, wd string
	var tz sql.NullString
	var active int64
	var created, updated string
	err := rs.Scan(&s.ID, &s.ShipperID, &s.Name, &tmpl, &wd, &s.PickupHour, &s.PickupMin,
		&tz, &s.HorizonDays, &active, &created, &updated)
	if err != nil {
		return domain.Schedule{}, err
	}
	if err := json.Unmarshal([]byte(tmpl), &s.Template); err != nil {
		return domain.Schedule{}, err
	}
	if err := json.Unmarshal([]byte(wd), &s.Weekdays); err != nil {
		return domain.Schedule{}, err
	}
	s.Timezone = strOf(tz)
	s.Active = active != 0
	s.CreatedAt = s2t(created)
	s.UpdatedAt = s2t(updated)
	return s, nil
}
