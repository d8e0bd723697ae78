package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"eusotrip/internal/domain"
	logx "eusotrip/pkg/logx"
)

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := ensurePostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	st := &sqlStore{
		db:         stdlib.OpenDBFromPool(pool),
		log:        log,
		dia:        dialectPostgres,
		closeExtra: pool.Close,
	}
	st.batchAppend = func(ctx context.Context, ps []domain.Position) error {
		return appendHistoryBatch(ctx, pool, ps)
	}
	return st, nil
}

// ensurePostgresSchema applies the schema on the pool directly; the file is
// multi-statement, which needs the simple protocol.
func ensurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	b, err := migrationsFS.ReadFile("migrations_postgres.sql")
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, string(b))
	return err
}

// appendHistoryBatch queues all inserts into one round trip.
func appendHistoryBatch(ctx context.Context, pool *pgxpool.Pool, ps []domain.Position) error {
	batch := &pgx.Batch{}
	for _, p := range ps {
		batch.Queue(
			`INSERT INTO positions_history(vehicle_id, lat, lon, speed_mph, heading_deg, at, received_at)
			 VALUES($1,$2,$3,$4,$5,$6,$7)`,
			p.VehicleID, p.Lat, p.Lon, p.SpeedMPH, p.HeadingDeg, t2s(p.At), t2s(p.ReceivedAt),
		)
	}
	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for range ps {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
