// Package dbtest supplies a Postgres connection URL to integration tests
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Image is the Postgres image started when TEST_DATABASE_URL is unset
const Image = "postgres:16-alpine"

// URL returns TEST_DATABASE_URL, or starts a throwaway Postgres container.
// The test is skipped under -short or when no container runtime is reachable.
func URL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, Image,
		postgres.WithDatabase("futureindex"),
		postgres.WithUsername("futureindex"),
		postgres.WithPassword("futureindex"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}
