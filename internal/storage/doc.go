package storage

// Package storage persists the freight aggregates behind per-aggregate
// repositories.
//
// Backends:
//   - sqlite (default): one local database file, WAL journaling
//   - postgres: shared deployments over a pgx pool
//   - memory: non-durable maps, for development and tests
//
// The sqlite and postgres backends share one SQL implementation; queries
// are written with ? placeholders and rebound for postgres.
