package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgres launches a throwaway PostgreSQL container and returns a
// connected pool. Tests are skipped when no container runtime is
// available.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("gatehouse"),
		tcpostgres.WithUsername("gatehouse"),
		tcpostgres.WithPassword("gatehouse"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("no container runtime available: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

const usageSchema = `
CREATE TABLE IF NOT EXISTS gatehouse_usage (
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL,
    period              TEXT NOT NULL,
    ai_agents_created   BIGINT NOT NULL DEFAULT 0,
    api_calls           BIGINT NOT NULL DEFAULT 0,
    storage_gb          BIGINT NOT NULL DEFAULT 0,
    execution_minutes   BIGINT NOT NULL DEFAULT 0,
    active_members      BIGINT NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE(tenant_id, period)
)`

// TestGuardedReserveIsAtomic verifies the single-statement
// check-and-increment that ReserveQuota relies on: concurrent guarded
// updates must never push a counter past its limit.
func TestGuardedReserveIsAtomic(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, usageSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO gatehouse_usage (id, tenant_id, period) VALUES ('tusg_test', 'tnt_a', '2025-05')`,
	); err != nil {
		t.Fatalf("seed row: %v", err)
	}

	const workers = 20
	const limit = int64(5)
	var wg sync.WaitGroup
	applied := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tag, err := pool.Exec(ctx,
				`UPDATE gatehouse_usage
				 SET ai_agents_created = ai_agents_created + 1, updated_at = $1
				 WHERE tenant_id = 'tnt_a' AND period = '2025-05'
				   AND ai_agents_created + 1 <= $2`,
				time.Now().UTC(), limit,
			)
			if err != nil {
				t.Errorf("guarded update: %v", err)
				return
			}
			applied <- tag.RowsAffected() > 0
		}()
	}
	wg.Wait()
	close(applied)

	var n int64
	for ok := range applied {
		if ok {
			n++
		}
	}
	if n != limit {
		t.Errorf("applied = %d, want exactly %d", n, limit)
	}

	var counter int64
	err := pool.QueryRow(ctx,
		`SELECT ai_agents_created FROM gatehouse_usage WHERE tenant_id = 'tnt_a' AND period = '2025-05'`,
	).Scan(&counter)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if counter != limit {
		t.Errorf("counter = %d, want %d", counter, limit)
	}
}

// TestConditionalInsertRace verifies the insert path ReserveQuota uses
// when the period record does not exist yet: exactly one of several
// racing inserts wins, the rest fall through to the guarded update.
func TestConditionalInsertRace(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, usageSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	inserted := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tag, err := pool.Exec(ctx,
				`INSERT INTO gatehouse_usage (id, tenant_id, period, api_calls)
				 VALUES ($1, 'tnt_b', '2025-05-01', 1)
				 ON CONFLICT (tenant_id, period) DO NOTHING`,
				"tusg_race_"+string(rune('a'+n)),
			)
			if err != nil {
				t.Errorf("conditional insert: %v", err)
				return
			}
			inserted <- tag.RowsAffected() > 0
		}(i)
	}
	wg.Wait()
	close(inserted)

	var wins int
	for ok := range inserted {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("insert wins = %d, want exactly 1", wins)
	}
}
