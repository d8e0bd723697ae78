package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"eusotrip/internal/domain"
	logx "eusotrip/pkg/logx"
)

type sqlDrivers struct{ st *sqlStore }

const driverCols = `id, name, carrier_id, cdl_class, hazmat_endorsed, safety_score,
	home_lat, home_lon, duty, hos_drive_min, hos_shift_min, hos_cycle_min,
	active_load_id, created_at`

func (r sqlDrivers) Create(ctx context.Context, d domain.Driver) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO drivers(`+driverCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		d.ID, d.Name, d.CarrierID, nullStr(d.CDLClass), b2i(d.HazmatEndorsed), d.SafetyScore,
		d.HomeBase.Lat, d.HomeBase.Lon, nullStr(string(d.Duty)),
		d.HOS.DriveMin, d.HOS.ShiftMin, d.HOS.CycleMin,
		nullStr(d.ActiveLoadID), t2s(d.CreatedAt),
	)
	return err
}

func (r sqlDrivers) Get(ctx context.Context, id string) (domain.Driver, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+driverCols+` FROM drivers WHERE id = ?`), id)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Driver{}, domain.ErrNotFound
	}
	return d, err
}

func (r sqlDrivers) Update(ctx context.Context, d domain.Driver) error {
	res, err := r.st.db.ExecContext(ctx, r.st.q(
		`UPDATE drivers SET
			name = ?, cdl_class = ?, hazmat_endorsed = ?, safety_score = ?,
			home_lat = ?, home_lon = ?, duty = ?,
			hos_drive_min = ?, hos_shift_min = ?, hos_cycle_min = ?, active_load_id = ?
		 WHERE id = ?`),
		d.Name, nullStr(d.CDLClass), b2i(d.HazmatEndorsed), d.SafetyScore,
		d.HomeBase.Lat, d.HomeBase.Lon, nullStr(string(d.Duty)),
		d.HOS.DriveMin, d.HOS.ShiftMin, d.HOS.CycleMin, nullStr(d.ActiveLoadID),
		d.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r sqlDrivers) List(ctx context.Context, f DriverFilter) ([]domain.Driver, error) {
	var where []string
	var args []any
	if f.CarrierID != "" {
		where = append(where, "carrier_id = ?")
		args = append(args, f.CarrierID)
	}
	if f.AvailableOnly {
		// Mirrors domain.Driver.Available: free and not mid-drive.
		where = append(where, "active_load_id IS NULL")
		where = append(where, "COALESCE(duty, '') <> 'driving'")
	}
	query := `SELECT ` + driverCols + ` FROM drivers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name ASC"

	rows, err := r.st.db.QueryContext(ctx, r.st.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDriver(rs rowScanner) (domain.Driver, error) {
	var d domain.Driver
	var cdl, duty, activeLoad sql.NullString
	var endorsed int64
	var created string
	err := rs.Scan(&d.ID, &d.Name, &d.CarrierID, &cdl, &endorsed, &d.SafetyScore,
		&d.HomeBase.Lat, &d.HomeBase.Lon, &duty,
		&d.HOS.DriveMin, &d.HOS.ShiftMin, &d.HOS.CycleMin,
		&activeLoad, &created)
	if err != nil {
		return domain.Driver{}, err
	}
	d.CDLClass = strOf(cdl)
	d.HazmatEndorsed = endorsed != 0
	d.Duty = domain.DutyStatus(strOf(duty))
	d.ActiveLoadID = strOf(activeLoad)
	d.CreatedAt = s2t(created)
	return d, nil
}

type sqlVehicles struct{ st *sqlStore }

const vehicleCols = `id, unit_number, vin, carrier_id, driver_id, status, odometer_miles, created_at`

func (r sqlVehicles) Create(ctx context.Context, v domain.Vehicle) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO vehicles(`+vehicleCols+`) VALUES(?,?,?,?,?,?,?,?)`),
		v.ID, v.UnitNumber, nullStr(v.VIN), v.CarrierID, nullStr(v.DriverID),
		string(v.Status), v.OdometerMiles, t2s(v.CreatedAt),
	)
	return err
}

func (r sqlVehicles) Get(ctx context.Context, id string) (domain.Vehicle, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+vehicleCols+` FROM vehicles WHERE id = ?`), id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vehicle{}, domain.ErrNotFound
	}
	return v, err
}

func (r sqlVehicles) Update(ctx context.Context, v domain.Vehicle) error {
	res, err := r.st.db.ExecContext(ctx, r.st.q(
		`UPDATE vehicles SET unit_number = ?, vin = ?, driver_id = ?, status = ?, odometer_miles = ?
		 WHERE id = ?`),
		v.UnitNumber, nullStr(v.VIN), nullStr(v.DriverID), string(v.Status), v.OdometerMiles, v.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r sqlVehicles) List(ctx context.Context, f VehicleFilter) ([]domain.Vehicle, error) {
	query := `SELECT ` + vehicleCols + ` FROM vehicles`
	var args []any
	if f.CarrierID != "" {
		query += " WHERE carrier_id = ?"
		args = append(args, f.CarrierID)
	}
	query += " ORDER BY unit_number ASC"

	rows, err := r.st.db.QueryContext(ctx, r.st.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVehicle(rs rowScanner) (domain.Vehicle, error) {
	var v domain.Vehicle
	var vin, driver sql.NullString
	var status, created string
	err := rs.Scan(&v.ID, &v.UnitNumber, &vin, &v.CarrierID, &driver, &status, &v.OdometerMiles, &created)
	if err != nil {
		return domain.Vehicle{}, err
	}
	v.VIN = strOf(vin)
	v.DriverID = strOf(driver)
	v.Status = domain.VehicleStatus(status)
	v.CreatedAt = s2t(created)
	return v, nil
}

type sqlTelemetry struct{ st *sqlStore }

const positionCols = `vehicle_id, lat, lon, speed_mph, heading_deg, at, received_at`

func (r sqlTelemetry) UpsertLast(ctx context.Context, p domain.Position) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO positions_last(`+positionCols+`) VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(vehicle_id) DO UPDATE SET
			lat = excluded.lat, lon = excluded.lon,
			speed_mph = excluded.speed_mph, heading_deg = excluded.heading_deg,
			at = excluded.at, received_at = excluded.received_at`),
		p.VehicleID, p.Lat, p.Lon, p.SpeedMPH, p.HeadingDeg, t2s(p.At), t2s(p.ReceivedAt),
	)
	return err
}

func (r sqlTelemetry) Last(ctx context.Context, vehicleID string) (domain.Position, bool, error) {
	row := r.st.db.QueryRowContext(ctx, r.st.q(
		`SELECT `+positionCols+` FROM positions_last WHERE vehicle_id = ?`), vehicleID)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, false, nil
	}
	if err != nil {
		return domain.Position{}, false, err
	}
	return p, true, nil
}

func (r sqlTelemetry) LastForVehicles(ctx context.Context, vehicleIDs []string) (map[string]domain.Position, error) {
	out := make(map[string]domain.Position, len(vehicleIDs))
	if len(vehicleIDs) == 0 {
		return out, nil
	}
	ph := make([]string, len(vehicleIDs))
	args := make([]any, len(vehicleIDs))
	for i, id := range vehicleIDs {
		ph[i] = "?"
		args[i] = id
	}
	rows, err := r.st.db.QueryContext(ctx, r.st.q(
		`SELECT `+positionCols+` FROM positions_last WHERE vehicle_id IN (`+strings.Join(ph, ",")+`)`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out[p.VehicleID] = p
	}
	return out, rows.Err()
}

func (r sqlTelemetry) AppendHistory(ctx context.Context, ps []domain.Position) error {
	if len(ps) == 0 {
		return nil
	}
	if r.st.batchAppend != nil {
		return r.st.batchAppend(ctx, ps)
	}
	tx, err := r.st.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	ins := r.st.q(`INSERT INTO positions_history(` + positionCols + `) VALUES(?,?,?,?,?,?,?)`)
	for _, p := range ps {
		if _, err := tx.ExecContext(ctx, ins,
			p.VehicleID, p.Lat, p.Lon, p.SpeedMPH, p.HeadingDeg, t2s(p.At), t2s(p.ReceivedAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r sqlTelemetry) History(ctx context.Context, vehicleID string, since time.Time, limit int) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions_history WHERE vehicle_id = ?`
	args := []any{vehicleID}
	if !since.IsZero() {
		query += " AND at >= ?"
		args = append(args, t2s(since))
	}
	query += " ORDER BY at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.st.db.QueryContext(ctx, r.st.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r sqlTelemetry) PruneHistory(ctx context.Context, vehicleID string, keep int) error {
	if keep <= 0 {
		keep = 1
	}
	res, err := r.st.db.ExecContext(ctx, r.st.q(
		`DELETE FROM positions_history
		 WHERE vehicle_id = ? AND at NOT IN (
			SELECT at FROM positions_history WHERE vehicle_id = ? ORDER BY at DESC LIMIT ?)`),
		vehicleID, vehicleID, keep,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		r.st.log.Debug("pruned position history",
			logx.String("vehicle", vehicleID), logx.Int64("rows", n))
	}
	return nil
}

func scanPosition(rs rowScanner) (domain.Position, error) {
	var p domain.Position
	var at, received string
	err := rs.Scan(&p.VehicleID, &p.Lat, &p.Lon, &p.SpeedMPH, &p.HeadingDeg, &at, &received)
	if err != nil {
		return domain.Position{}, err
	}
	p.At = s2t(at)
	p.ReceivedAt = s2t(received)
	return p, nil
}

type sqlGeofences struct{ st *sqlStore }

func (r sqlGeofences) Put(ctx context.Context, g domain.Geofence) error {
	_, err := r.st.db.ExecContext(ctx, r.st.q(
		`INSERT INTO geofences(id, name, kind, lat, lon, radius_m) VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, kind = excluded.kind,
			lat = excluded.lat, lon = excluded.lon, radius_m = excluded.radius_m`),
		g.ID, g.Name, string(g.Kind), g.Circle.Center.Lat, g.Circle.Center.Lon, g.Circle.RadiusMeters,
	)
	return err
}

func (r sqlGeofences) Delete(ctx context.Context, id string) error {
	res, err := r.st.db.ExecContext(ctx, r.st.q(`DELETE FROM geofences WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r sqlGeofences) List(ctx context.Context) ([]domain.Geofence, error) {
	rows, err := r.st.db.QueryContext(ctx,
		`SELECT id, name, kind, lat, lon, radius_m FROM geofences ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Geofence
	for rows.Next() {
		var g domain.Geofence
		var kind string
		if err := rows.Scan(&g.ID, &g.Name, &kind, &g.Circle.Center.Lat, &g.Circle.Center.Lon, &g.Circle.RadiusMeters); err != nil {
			return nil, err
		}
		g.Kind = domain.GeofenceKind(kind)
		out = append(out, g)
	}
	return out, rows.Err()
}
