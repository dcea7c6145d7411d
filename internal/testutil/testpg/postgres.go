// Package testpg starts disposable Postgres containers for store tests.
package testpg

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// pgvector build of Postgres, so vector-kind=pgvector tests can CREATE EXTENSION.
const image = "pgvector/pgvector:pg18"

// StartPostgres runs a throwaway Postgres and returns the DSN of an empty
// advisor database. The container is terminated via tb.Cleanup.
func StartPostgres(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("advisor"),
		postgres.WithUsername("advisor"),
		postgres.WithPassword("advisor"),
		testcontainers.WithWaitStrategy(booted()),
	)
	if err != nil {
		tb.Fatalf("start postgres container: %v", err)
	}

	tb.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			tb.Errorf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tb.Fatalf("build postgres connection string: %v", err)
	}

	awaitConnectable(tb, dsn)
	return dsn
}

// booted waits for the listener plus the second "ready" log line; the first
// one comes from the init-then-restart dance the image does on first boot.
func booted() wait.Strategy {
	return wait.ForAll(
		wait.ForListeningPort("5432/tcp"),
		wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2),
	).WithStartupTimeout(60 * time.Second)
}

// The "ready" log line can race the actual listener, so poll with a real
// connection before handing the DSN to a test.
func awaitConnectable(tb testing.TB, dsn string) {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	var lastErr error
	for {
		attemptCtx, attemptCancel := context.WithTimeout(ctx, 2*time.Second)
		conn, err := pgx.Connect(attemptCtx, dsn)
		if err == nil {
			err = conn.Ping(attemptCtx)
			_ = conn.Close(attemptCtx)
		}
		attemptCancel()
		if err == nil {
			return
		}
		lastErr = err

		select {
		case <-ctx.Done():
			tb.Fatalf("postgres never became connectable: %v", lastErr)
		case <-tick.C:
		}
	}
}
