package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"eusotrip/internal/domain"
	logx "eusotrip/pkg/logx"
)

// memStore is the dependency-free backend. Nothing survives a restart; it
// exists for development and tests. One mutex guards everything, matching
// the sqlite backend's single-writer behavior.
type memStore struct {
	log logx.Logger
	mu  sync.RWMutex

	loads       map[string]domain.Load
	timeline    map[string][]domain.TimelineEntry
	bids        map[string]domain.Bid
	schedules   map[string]domain.Schedule
	occurrences map[string]domain.Occurrence // scheduleID + "|" + date
	drivers     map[string]domain.Driver
	vehicles    map[string]domain.Vehicle
	lastPos     map[string]domain.Position
	history     map[string][]domain.Position
	geofences   map[string]domain.Geofence
	invoices    map[string]domain.Invoice
	payments    map[string][]domain.Payment
	credentials map[string]domain.Credential // ownerID + "|" + provider
	notifs      map[string]domain.Notification
	profiles    map[string]domain.DriverProfile
	docs        map[string]domain.ComplianceDoc // subjectID + "|" + kind
	inspections []domain.Inspection
	incidents   []domain.HazmatIncident
	counters    map[string]int64
	audit       []AuditEntry
}

const memAuditCap = 1000

func openMemory(log logx.Logger) Store {
	return &memStore{
		log:         log,
		loads:       map[string]domain.Load{},
		timeline:    map[string][]domain.TimelineEntry{},
		bids:        map[string]domain.Bid{},
		schedules:   map[string]domain.Schedule{},
		occurrences: map[string]domain.Occurrence{},
		drivers:     map[string]domain.Driver{},
		vehicles:    map[string]domain.Vehicle{},
		lastPos:     map[string]domain.Position{},
		history:     map[string][]domain.Position{},
		geofences:   map[string]domain.Geofence{},
		invoices:    map[string]domain.Invoice{},
		payments:    map[string][]domain.Payment{},
		credentials: map[string]domain.Credential{},
		notifs:      map[string]domain.Notification{},
		profiles:    map[string]domain.DriverProfile{},
		docs:        map[string]domain.ComplianceDoc{},
		counters:    map[string]int64{},
	}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) Loads() LoadRepo                 { return memLoads{s} }
func (s *memStore) Bids() BidRepo                   { return memBids{s} }
func (s *memStore) Schedules() ScheduleRepo         { return memSchedules{s} }
func (s *memStore) Drivers() DriverRepo             { return memDrivers{s} }
func (s *memStore) Vehicles() VehicleRepo           { return memVehicles{s} }
func (s *memStore) Telemetry() TelemetryRepo        { return memTelemetry{s} }
func (s *memStore) Geofences() GeofenceRepo         { return memGeofences{s} }
func (s *memStore) Billing() BillingRepo            { return memBilling{s} }
func (s *memStore) Credentials() CredentialRepo     { return memCredentials{s} }
func (s *memStore) Notifications() NotificationRepo { return memNotifications{s} }
func (s *memStore) Profiles() ProfileRepo           { return memProfiles{s} }
func (s *memStore) Compliance() ComplianceRepo      { return memCompliance{s} }
func (s *memStore) Hazmat() HazmatRepo              { return memHazmat{s} }

func (s *memStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	if len(s.audit) > memAuditCap {
		s.audit = s.audit[len(s.audit)-memAuditCap:]
	}
	return nil
}

func (s *memStore) AcceptBid(ctx context.Context, accepted domain.Bid, rejected []domain.Bid, load domain.Load) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[accepted.ID]; !ok {
		return domain.ErrNotFound
	}
	if _, ok := s.loads[load.ID]; !ok {
		return domain.ErrNotFound
	}
	s.bids[accepted.ID] = accepted
	for _, b := range rejected {
		s.bids[b.ID] = b
	}
	s.loads[load.ID] = load
	return nil
}

func cloneStrs(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneSchedule(sc domain.Schedule) domain.Schedule {
	if sc.Weekdays != nil {
		wd := make([]time.Weekday, len(sc.Weekdays))
		copy(wd, sc.Weekdays)
		sc.Weekdays = wd
	}
	return sc
}

func cloneProfile(p domain.DriverProfile) domain.DriverProfile {
	p.Achievements = cloneStrs(p.Achievements)
	return p
}

type memLoads struct{ st *memStore }

func (r memLoads) Create(ctx context.Context, l domain.Load) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.loads[l.ID] = l
	return nil
}

func (r memLoads) Get(ctx context.Context, id string) (domain.Load, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	l, ok := r.st.loads[id]
	if !ok {
		return domain.Load{}, domain.ErrNotFound
	}
	return l, nil
}

func (r memLoads) Update(ctx context.Context, l domain.Load) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.loads[l.ID]; !ok {
		return domain.ErrNotFound
	}
	r.st.loads[l.ID] = l
	return nil
}

func (r memLoads) List(ctx context.Context, f LoadFilter) ([]domain.Load, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Load
	for _, l := range r.st.loads {
		if !matchLoad(l, f) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchLoad(l domain.Load, f LoadFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if l.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ShipperID != "" && l.ShipperID != f.ShipperID {
		return false
	}
	if f.CarrierID != "" && l.CarrierID != f.CarrierID {
		return false
	}
	if f.DriverID != "" && l.DriverID != f.DriverID {
		return false
	}
	if f.ScheduleID != "" && l.ScheduleID != f.ScheduleID {
		return false
	}
	if !f.CreatedAfter.IsZero() && l.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !l.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

func (r memLoads) Board(ctx context.Context, f BoardFilter) ([]domain.Load, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Load
	for _, l := range r.st.loads {
		if l.Status != domain.StatusPending || l.Assigned() {
			continue
		}
		if f.OriginState != "" && l.Origin.State != f.OriginState {
			continue
		}
		if f.Equipment != "" && l.Equipment != f.Equipment {
			continue
		}
		if f.HazmatOnly && !l.Hazmat() {
			continue
		}
		if f.MinRateCents > 0 && l.RateCents < f.MinRateCents {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PickupAt.Before(out[j].PickupAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memLoads) NextRef(ctx context.Context) (int64, error) {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.counters["load_ref"]++
	return r.st.counters["load_ref"], nil
}

func (r memLoads) AppendTimeline(ctx context.Context, e domain.TimelineEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.timeline[e.LoadID] = append(r.st.timeline[e.LoadID], e)
	return nil
}

func (r memLoads) Timeline(ctx context.Context, loadID string) ([]domain.TimelineEntry, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	entries := r.st.timeline[loadID]
	out := make([]domain.TimelineEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

type memBids struct{ st *memStore }

func (r memBids) Create(ctx context.Context, b domain.Bid) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.bids[b.ID] = b
	return nil
}

func (r memBids) Get(ctx context.Context, id string) (domain.Bid, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	b, ok := r.st.bids[id]
	if !ok {
		return domain.Bid{}, domain.ErrNotFound
	}
	return b, nil
}

func (r memBids) Update(ctx context.Context, b domain.Bid) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.bids[b.ID]; !ok {
		return domain.ErrNotFound
	}
	r.st.bids[b.ID] = b
	return nil
}

func (r memBids) ListByLoad(ctx context.Context, loadID string) ([]domain.Bid, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Bid
	for _, b := range r.st.bids {
		if b.LoadID == loadID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memBids) OpenByLoadAndCarrier(ctx context.Context, loadID, carrierID string) (domain.Bid, bool, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	for _, b := range r.st.bids {
		if b.LoadID == loadID && b.CarrierID == carrierID && b.Open() {
			return b, true, nil
		}
	}
	return domain.Bid{}, false, nil
}

type memSchedules struct{ st *memStore }

func (r memSchedules) Create(ctx context.Context, sc domain.Schedule) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.schedules[sc.ID] = cloneSchedule(sc)
	return nil
}

func (r memSchedules) Get(ctx context.Context, id string) (domain.Schedule, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	sc, ok := r.st.schedules[id]
	if !ok {
		return domain.Schedule{}, domain.ErrNotFound
	}
	return cloneSchedule(sc), nil
}

func (r memSchedules) Update(ctx context.Context, sc domain.Schedule) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.schedules[sc.ID]; !ok {
		return domain.ErrNotFound
	}
	r.st.schedules[sc.ID] = cloneSchedule(sc)
	return nil
}

func (r memSchedules) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.schedules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.st.schedules, id)
	return nil
}

func (r memSchedules) List(ctx context.Context, f ScheduleFilter) ([]domain.Schedule, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Schedule
	for _, sc := range r.st.schedules {
		if f.ShipperID != "" && sc.ShipperID != f.ShipperID {
			continue
		}
		if f.ActiveOnly && !sc.Active {
			continue
		}
		out = append(out, cloneSchedule(sc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memSchedules) HasOccurrence(ctx context.Context, scheduleID, date string) (bool, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	_, ok := r.st.occurrences[scheduleID+"|"+date]
	return ok, nil
}

func (r memSchedules) PutOccurrence(ctx context.Context, o domain.Occurrence) error {
	_ = ctx
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	key := o.ScheduleID + "|" + o.Date
	if _, ok := r.st.occurrences[key]; ok {
		return nil
	}
	r.st.occurrences[key] = o
	return nil
}

func (r memSchedules) ListOccurrences(ctx context.Context, scheduleID string) ([]domain.Occurrence, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Occurrence
	for _, o := range r.st.occurrences {
		if o.ScheduleID == scheduleID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

type memDrivers struct{ st *memStore }

func (r memDrivers) Create(ctx context.Context, d domain.Driver) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.drivers[d.ID] = d
	return nil
}

func (r memDrivers) Get(ctx context.Context, id string) (domain.Driver, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	d, ok := r.st.drivers[id]
	if !ok {
		return domain.Driver{}, domain.ErrNotFound
	}
	return d, nil
}

func (r memDrivers) Update(ctx context.Context, d domain.Driver) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.drivers[d.ID]; !ok {
		return domain.ErrNotFound
	}
	r.st.drivers[d.ID] = d
	return nil
}

func (r memDrivers) List(ctx context.Context, f DriverFilter) ([]domain.Driver, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Driver
	for _, d := range r.st.drivers {
		if f.CarrierID != "" && d.CarrierID != f.CarrierID {
			continue
		}
		if f.AvailableOnly && !d.Available() {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memVehicles struct{ st *memStore }

func (r memVehicles) Create(ctx context.Context, v domain.Vehicle) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.vehicles[v.ID] = v
	return nil
}

func (r memVehicles) Get(ctx context.Context, id string) (domain.Vehicle, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	v, ok := r.st.vehicles[id]
	if !ok {
		return domain.Vehicle{}, domain.ErrNotFound
	}
	return v, nil
}

func (r memVehicles) Update(ctx context.Context, v domain.Vehicle) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.vehicles[v.ID]; !ok {
		return domain.ErrNotFound
	}
	r.st.vehicles[v.ID] = v
	return nil
}

func (r memVehicles) List(ctx context.Context, f VehicleFilter) ([]domain.Vehicle, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Vehicle
	for _, v := range r.st.vehicles {
		if f.CarrierID != "" && v.CarrierID != f.CarrierID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitNumber < out[j].UnitNumber })
	return out, nil
}

type memTelemetry struct{ st *memStore }

func (r memTelemetry) UpsertLast(ctx context.Context, p domain.Position) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.lastPos[p.VehicleID] = p
	return nil
}

func (r memTelemetry) Last(ctx context.Context, vehicleID string) (domain.Position, bool, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	p, ok := r.st.lastPos[vehicleID]
	return p, ok, nil
}

func (r memTelemetry) LastForVehicles(ctx context.Context, vehicleIDs []string) (map[string]domain.Position, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	out := make(map[string]domain.Position, len(vehicleIDs))
	for _, id := range vehicleIDs {
		if p, ok := r.st.lastPos[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r memTelemetry) AppendHistory(ctx context.Context, ps []domain.Position) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, p := range ps {
		r.st.history[p.VehicleID] = append(r.st.history[p.VehicleID], p)
	}
	return nil
}

func (r memTelemetry) History(ctx context.Context, vehicleID string, since time.Time, limit int) ([]domain.Position, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Position
	for _, p := range r.st.history[vehicleID] {
		if !since.IsZero() && p.At.Before(since) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memTelemetry) PruneHistory(ctx context.Context, vehicleID string, keep int) error {
	_ = ctx
	if keep <= 0 {
		keep = 1
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	h := r.st.history[vehicleID]
	if len(h) <= keep {
		return nil
	}
	sort.Slice(h, func(i, j int) bool { return h[i].At.Before(h[j].At) })
	r.st.history[vehicleID] = append([]domain.Position(nil), h[len(h)-keep:]...)
	return nil
}

type memGeofences struct{ st *memStore }

func (r memGeofences) Put(ctx context.Context, g domain.Geofence) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.geofences[g.ID] = g
	return nil
}

func (r memGeofences) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.geofences[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.st.geofences, id)
	return nil
}

func (r memGeofences) List(ctx context.Context) ([]domain.Geofence, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	out := make([]domain.Geofence, 0, len(r.st.geofences))
	for _, g := range r.st.geofences {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memBilling struct{ st *memStore }

func (r memBilling) CreateInvoice(ctx context.Context, inv domain.Invoice) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.invoices[inv.ID] = inv
	return nil
}

func (r memBilling) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	inv, ok := r.st.invoices[id]
	if !ok {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return inv, nil
}

func (r memBilling) InvoiceByLoad(ctx context.Context, loadID string) (domain.Invoice, bool, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	for _, inv := range r.st.invoices {
		if inv.LoadID == loadID {
			return inv, true, nil
		}
	}
	return domain.Invoice{}, false, nil
}

func (r memBilling) UpdateInvoice(ctx context.Context, inv domain.Invoice) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.invoices[inv.ID]; !ok {
		return domain.ErrNotFound
	}
	r.st.invoices[inv.ID] = inv
	return nil
}

func (r memBilling) ListInvoices(ctx context.Context, f InvoiceFilter) ([]domain.Invoice, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Invoice
	for _, inv := range r.st.invoices {
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.ShipperID != "" && inv.ShipperID != f.ShipperID {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memBilling) NextInvoiceSeq(ctx context.Context, year int) (int64, error) {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	key := "invoice_" + strconv.Itoa(year)
	r.st.counters[key]++
	return r.st.counters[key], nil
}

func (r memBilling) ApplyPayment(ctx context.Context, p domain.Payment, inv domain.Invoice) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.invoices[inv.ID]; !ok {
		return domain.ErrNotFound
	}
	r.st.payments[p.InvoiceID] = append(r.st.payments[p.InvoiceID], p)
	r.st.invoices[inv.ID] = inv
	return nil
}

func (r memBilling) ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	ps := r.st.payments[invoiceID]
	out := make([]domain.Payment, len(ps))
	copy(out, ps)
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

type memCredentials struct{ st *memStore }

func credKey(ownerID string, provider domain.IntegrationProvider) string {
	return ownerID + "|" + string(provider)
}

func (r memCredentials) Upsert(ctx context.Context, c domain.Credential) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.credentials[credKey(c.OwnerID, c.Provider)] = c
	return nil
}

func (r memCredentials) Get(ctx context.Context, ownerID string, provider domain.IntegrationProvider) (domain.Credential, bool, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	c, ok := r.st.credentials[credKey(ownerID, provider)]
	return c, ok, nil
}

func (r memCredentials) Delete(ctx context.Context, ownerID string, provider domain.IntegrationProvider) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delete(r.st.credentials, credKey(ownerID, provider))
	return nil
}

func (r memCredentials) List(ctx context.Context, ownerID string) ([]domain.Credential, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Credential
	for _, c := range r.st.credentials {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

type memNotifications struct{ st *memStore }

func (r memNotifications) Create(ctx context.Context, n domain.Notification) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.notifs[n.ID] = n
	return nil
}

func (r memNotifications) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Notification
	for _, n := range r.st.notifs {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memNotifications) MarkRead(ctx context.Context, id, userID string) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n, ok := r.st.notifs[id]
	if !ok || n.UserID != userID {
		return domain.ErrNotFound
	}
	n.Read = true
	r.st.notifs[id] = n
	return nil
}

func (r memNotifications) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var count int64
	for id, n := range r.st.notifs {
		if n.UserID == userID && !n.Read {
			n.Read = true
			r.st.notifs[id] = n
			count++
		}
	}
	return count, nil
}

func (r memNotifications) UnreadCount(ctx context.Context, userID string) (int, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	count := 0
	for _, n := range r.st.notifs {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

type memProfiles struct{ st *memStore }

func (r memProfiles) Get(ctx context.Context, driverID string) (domain.DriverProfile, bool, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	p, ok := r.st.profiles[driverID]
	if !ok {
		return domain.DriverProfile{}, false, nil
	}
	return cloneProfile(p), true, nil
}

func (r memProfiles) Upsert(ctx context.Context, p domain.DriverProfile) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.profiles[p.DriverID] = cloneProfile(p)
	return nil
}

func (r memProfiles) Leaderboard(ctx context.Context, limit int) ([]domain.DriverProfile, error) {
	_ = ctx
	if limit <= 0 {
		limit = 10
	}
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	out := make([]domain.DriverProfile, 0, len(r.st.profiles))
	for _, p := range r.st.profiles {
		out = append(out, cloneProfile(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].XP > out[j].XP })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memCompliance struct{ st *memStore }

func (r memCompliance) UpsertDoc(ctx context.Context, d domain.ComplianceDoc) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	key := d.SubjectID + "|" + d.Kind
	if prev, ok := r.st.docs[key]; ok {
		d.ID = prev.ID
		d.CreatedAt = prev.CreatedAt
	}
	r.st.docs[key] = d
	return nil
}

func (r memCompliance) ListExpiring(ctx context.Context, before time.Time) ([]domain.ComplianceDoc, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.ComplianceDoc
	for _, d := range r.st.docs {
		if d.ExpiresAt.Before(before) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (r memCompliance) ListDocsBySubject(ctx context.Context, subjectID string) ([]domain.ComplianceDoc, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.ComplianceDoc
	for _, d := range r.st.docs {
		if d.SubjectID == subjectID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (r memCompliance) CreateInspection(ctx context.Context, ins domain.Inspection) error {
	_ = ctx
	ins.Defects = cloneStrs(ins.Defects)
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.inspections = append(r.st.inspections, ins)
	return nil
}

func (r memCompliance) ListInspections(ctx context.Context, vehicleID string, limit int) ([]domain.Inspection, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.Inspection
	for _, ins := range r.st.inspections {
		if ins.VehicleID == vehicleID {
			ins.Defects = cloneStrs(ins.Defects)
			out = append(out, ins)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memHazmat struct{ st *memStore }

func (r memHazmat) CreateIncident(ctx context.Context, in domain.HazmatIncident) error {
	_ = ctx
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.incidents = append(r.st.incidents, in)
	return nil
}

func (r memHazmat) ListIncidents(ctx context.Context, loadID string, limit int) ([]domain.HazmatIncident, error) {
	_ = ctx
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	var out []domain.HazmatIncident
	for _, in := range r.st.incidents {
		if loadID != "" && in.LoadID != loadID {
			continue
		}
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
