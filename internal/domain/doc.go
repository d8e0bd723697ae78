package domain

// Package domain defines the entities shared across services and storage:
// loads and their lifecycle, bids, parties (drivers, vehicles), billing,
// recurring schedules, telemetry and notifications.
//
// Types here carry no behavior beyond validation and the load status
// machine; business rules live in internal/services.
