package compliance

import (
	"context"
	"fmt"
	"strings"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
	logx "eusotrip/pkg/logx"
)

// InspectionInput is a DVIR-style inspection report.
type InspectionInput struct {
	VehicleID    string   `json:"vehicle_id"`
	DriverID     string   `json:"driver_id,omitzero"`
	Defects      []string `json:"defects,omitzero"`
	OutOfService bool     `json:"out_of_service"`
}

func (in InspectionInput) validate() error {
	if strings.TrimSpace(in.VehicleID) == "" {
		return domain.Invalid("vehicle_id", "required")
	}
	if in.OutOfService && len(in.Defects) == 0 {
		return domain.Invalid("defects", "out-of-service requires at least one defect")
	}
	return nil
}

// RecordInspection stores the report. An out-of-service result moves the
// vehicle to maintenance and raises a critical alert.
func (s *Service) RecordInspection(ctx context.Context, in InspectionInput, actor string) (domain.Inspection, error) {
	start := s.now()
	if err := in.validate(); err != nil {
		return domain.Inspection{}, err
	}
	v, err := s.store.Vehicles().Get(ctx, in.VehicleID)
	if err != nil {
		return domain.Inspection{}, fmt.Errorf("vehicle %s: %w", in.VehicleID, err)
	}

	ins := domain.Inspection{
		ID:           domain.NewID(),
		VehicleID:    in.VehicleID,
		DriverID:     in.DriverID,
		At:           start.UTC(),
		Defects:      in.Defects,
		OutOfService: in.OutOfService,
	}
	if err := s.store.Compliance().CreateInspection(ctx, ins); err != nil {
		s.audit(ctx, actor, "compliance.inspection", in.VehicleID, start, err)
		return domain.Inspection{}, fmt.Errorf("create inspection: %w", err)
	}
	s.audit(ctx, actor, "compliance.inspection", in.VehicleID, start, nil)

	if in.OutOfService && v.Status != domain.VehicleMaintenance {
		v.Status = domain.VehicleMaintenance
		if err := s.store.Vehicles().Update(ctx, v); err != nil {
			return ins, fmt.Errorf("flag vehicle for maintenance: %w", err)
		}
		s.log.Warn("vehicle out of service",
			logx.String("vehicle", v.ID),
			logx.Int("defects", len(in.Defects)))
		s.bus.Publish(eventbus.Event{
			Type: eventbus.TypeComplianceAlert,
			Time: s.now(),
			Data: eventbus.ComplianceAlert{
				SubjectID: v.ID,
				Kind:      "vehicle_out_of_service",
				Message:   fmt.Sprintf("unit %s failed inspection: %s", v.UnitNumber, strings.Join(in.Defects, ", ")),
				Critical:  true,
			},
		})
	}
	return ins, nil
}

// Inspections lists recent reports for a vehicle, newest first.
func (s *Service) Inspections(ctx context.Context, vehicleID string, limit int) ([]domain.Inspection, error) {
	if strings.TrimSpace(vehicleID) == "" {
		return nil, domain.Invalid("vehicle_id", "required")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.Compliance().ListInspections(ctx, vehicleID, limit)
}
