// Package testqdrant starts disposable Qdrant containers for vector store
// tests.
package testqdrant

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const image = "qdrant/qdrant:latest"

// StartQdrant runs a throwaway Qdrant and returns the gRPC host and port.
// The container is terminated via tb.Cleanup.
func StartQdrant(tb testing.TB) (string, int) {
	tb.Helper()

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		// 6334 is the gRPC port; the HTTP API on 6333 is not used here.
		Image:        image,
		ExposedPorts: []string{"6334/tcp"},
		WaitingFor: wait.ForListeningPort("6334/tcp").
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		tb.Fatalf("start qdrant container: %v", err)
	}
	tb.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(stopCtx); err != nil {
			tb.Errorf("terminate qdrant container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "6334/tcp", "")
	if err != nil {
		tb.Fatalf("resolve qdrant endpoint: %v", err)
	}
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		tb.Fatalf("parse qdrant endpoint %q: %v", endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		tb.Fatalf("parse qdrant port %q: %v", portStr, err)
	}
	return host, port
}
