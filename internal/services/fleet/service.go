// Package fleet manages the carrier roster: the drivers and vehicles
// every other service reads. Dispatch scores them, telemetry tracks
// them, compliance audits them; this package is where they come from.
package fleet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eusotrip/internal/domain"
	"eusotrip/internal/storage"
	"eusotrip/pkg/geo"
	logx "eusotrip/pkg/logx"
)

type Service struct {
	store storage.Store
	log   logx.Logger

	now func() time.Time
}

func New(store storage.Store, log logx.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With(logx.String("component", "fleet")),
		now:   time.Now,
	}
}

// DriverInput is the request shape for RegisterDriver.
type DriverInput struct {
	Name           string    `json:"name"`
	CarrierID      string    `json:"carrier_id"`
	CDLClass       string    `json:"cdl_class"`
	HazmatEndorsed bool      `json:"hazmat_endorsed"`
	SafetyScore    float64   `json:"safety_score"`
	HomeBase       geo.Point `json:"home_base"`
	Actor          string    `json:"-"`
}

func (in DriverInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Invalid("name", "required")
	}
	if strings.TrimSpace(in.CarrierID) == "" {
		return domain.Invalid("carrier_id", "required")
	}
	switch strings.ToUpper(strings.TrimSpace(in.CDLClass)) {
	case "A", "B", "C":
	default:
		return domain.Invalid("cdl_class", "must be A, B or C")
	}
	if in.SafetyScore < 0 || in.SafetyScore > 1 {
		return domain.Invalid("safety_score", "must be in [0, 1]")
	}
	return nil
}

// RegisterDriver adds a driver to the roster, off duty with fresh HOS
// clocks.
func (s *Service) RegisterDriver(ctx context.Context, in DriverInput) (domain.Driver, error) {
	start := time.Now()
	if err := in.validate(); err != nil {
		return domain.Driver{}, err
	}

	d := domain.Driver{
		ID:             domain.NewID(),
		Name:           strings.TrimSpace(in.Name),
		CarrierID:      in.CarrierID,
		CDLClass:       strings.ToUpper(strings.TrimSpace(in.CDLClass)),
		HazmatEndorsed: in.HazmatEndorsed,
		SafetyScore:    in.SafetyScore,
		HomeBase:       in.HomeBase,
		Duty:           domain.DutyOffDuty,
		CreatedAt:      s.now().UTC(),
	}
	err := s.store.Drivers().Create(ctx, d)
	s.audit(ctx, in.Actor, "driver.register", "driver", d.ID, start, err)
	if err != nil {
		return domain.Driver{}, fmt.Errorf("register driver: %w", err)
	}
	s.log.Info("driver registered",
		logx.String("driver", d.ID),
		logx.String("carrier", d.CarrierID))
	return d, nil
}

// Driver fetches one roster entry.
func (s *Service) Driver(ctx context.Context, id string) (domain.Driver, error) {
	return s.store.Drivers().Get(ctx, id)
}

// Drivers lists the roster, optionally one carrier's, optionally only
// those free for a new assignment.
func (s *Service) Drivers(ctx context.Context, carrierID string, availableOnly bool) ([]domain.Driver, error) {
	return s.store.Drivers().List(ctx, storage.DriverFilter{
		CarrierID:     carrierID,
		AvailableOnly: availableOnly,
	})
}

// DutyUpdate changes a driver's duty state and, when Clock is set,
// replaces the HOS clocks in the same write. ELD integrations report
// both together.
type DutyUpdate struct {
	Duty  domain.DutyStatus `json:"duty"`
	Clock *domain.HOSClock  `json:"hos,omitempty"`
	Actor string            `json:"-"`
}

func (s *Service) SetDuty(ctx context.Context, driverID string, up DutyUpdate) (domain.Driver, error) {
	start := time.Now()
	d, err := s.store.Drivers().Get(ctx, driverID)
	if err != nil {
		return domain.Driver{}, err
	}
	d.Duty = up.Duty
	if up.Clock != nil {
		if up.Clock.DriveMin < 0 || up.Clock.ShiftMin < 0 || up.Clock.CycleMin < 0 {
			return domain.Driver{}, domain.Invalid("hos", "clock minutes must be >= 0")
		}
		d.HOS = *up.Clock
	}
	err = s.store.Drivers().Update(ctx, d)
	s.audit(ctx, up.Actor, "driver.duty", "driver", d.ID, start, err)
	if err != nil {
		return domain.Driver{}, fmt.Errorf("update duty: %w", err)
	}
	return d, nil
}

// VehicleInput is the request shape for RegisterVehicle.
type VehicleInput struct {
	UnitNumber string `json:"unit_number"`
	VIN        string `json:"vin"`
	CarrierID  string `json:"carrier_id"`
	DriverID   string `json:"driver_id"`
	Actor      string `json:"-"`
}

// RegisterVehicle adds a power unit to the roster in status active. A
// named driver must already exist and belong to the same carrier.
func (s *Service) RegisterVehicle(ctx context.Context, in VehicleInput) (domain.Vehicle, error) {
	start := time.Now()
	if strings.TrimSpace(in.UnitNumber) == "" {
		return domain.Vehicle{}, domain.Invalid("unit_number", "required")
	}
	if strings.TrimSpace(in.CarrierID) == "" {
		return domain.Vehicle{}, domain.Invalid("carrier_id", "required")
	}
	if in.DriverID != "" {
		if err := s.checkDriverCarrier(ctx, in.DriverID, in.CarrierID); err != nil {
			return domain.Vehicle{}, err
		}
	}

	v := domain.Vehicle{
		ID:         domain.NewID(),
		UnitNumber: strings.TrimSpace(in.UnitNumber),
		VIN:        strings.TrimSpace(in.VIN),
		CarrierID:  in.CarrierID,
		DriverID:   in.DriverID,
		Status:     domain.VehicleActive,
		CreatedAt:  s.now().UTC(),
	}
	err := s.store.Vehicles().Create(ctx, v)
	s.audit(ctx, in.Actor, "vehicle.register", "vehicle", v.ID, start, err)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("register vehicle: %w", err)
	}
	s.log.Info("vehicle registered",
		logx.String("vehicle", v.ID),
		logx.String("unit", v.UnitNumber))
	return v, nil
}

// Vehicle fetches one roster entry.
func (s *Service) Vehicle(ctx context.Context, id string) (domain.Vehicle, error) {
	return s.store.Vehicles().Get(ctx, id)
}

// Vehicles lists the roster, optionally one carrier's.
func (s *Service) Vehicles(ctx context.Context, carrierID string) ([]domain.Vehicle, error) {
	return s.store.Vehicles().List(ctx, storage.VehicleFilter{CarrierID: carrierID})
}

// SetVehicleStatus moves a vehicle between active, maintenance and
// out_of_service, optionally advancing the odometer. Odometers only go
// up; zero leaves the reading unchanged.
func (s *Service) SetVehicleStatus(ctx context.Context, id string, status domain.VehicleStatus, odometerMiles int64, actor string) (domain.Vehicle, error) {
	start := time.Now()
	v, err := s.store.Vehicles().Get(ctx, id)
	if err != nil {
		return domain.Vehicle{}, err
	}
	if odometerMiles < 0 {
		return domain.Vehicle{}, domain.Invalid("odometer_miles", "must be >= 0")
	}
	if odometerMiles > 0 && odometerMiles < v.OdometerMiles {
		return domain.Vehicle{}, domain.Invalid("odometer_miles",
			fmt.Sprintf("below current reading %d", v.OdometerMiles))
	}
	v.Status = status
	if odometerMiles > 0 {
		v.OdometerMiles = odometerMiles
	}
	err = s.store.Vehicles().Update(ctx, v)
	s.audit(ctx, actor, "vehicle.status", "vehicle", v.ID, start, err)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("update vehicle: %w", err)
	}
	return v, nil
}

// AssignVehicleDriver pairs a vehicle with a driver from the same
// carrier. An empty driver ID unassigns.
func (s *Service) AssignVehicleDriver(ctx context.Context, vehicleID, driverID, actor string) (domain.Vehicle, error) {
	start := time.Now()
	v, err := s.store.Vehicles().Get(ctx, vehicleID)
	if err != nil {
		return domain.Vehicle{}, err
	}
	if driverID != "" {
		if err := s.checkDriverCarrier(ctx, driverID, v.CarrierID); err != nil {
			return domain.Vehicle{}, err
		}
	}
	v.DriverID = driverID
	err = s.store.Vehicles().Update(ctx, v)
	s.audit(ctx, actor, "vehicle.assign_driver", "vehicle", v.ID, start, err)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("update vehicle: %w", err)
	}
	return v, nil
}

func (s *Service) checkDriverCarrier(ctx context.Context, driverID, carrierID string) error {
	d, err := s.store.Drivers().Get(ctx, driverID)
	if err != nil {
		return fmt.Errorf("driver %s: %w", driverID, err)
	}
	if d.CarrierID != carrierID {
		return domain.Invalid("driver_id", "driver belongs to a different carrier")
	}
	return nil
}

func (s *Service) audit(ctx context.Context, actor, action, entity, entityID string, start time.Time, err error) {
	entry := storage.AuditEntry{
		At:       s.now().UTC(),
		Actor:    actor,
		Action:   action,
		Entity:   entity,
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
