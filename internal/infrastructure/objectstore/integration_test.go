//go:build integration

package objectstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/couch-control/internal/infrastructure/config"
	"github.com/nerrad567/couch-control/internal/selection"
)

// Run with a local MinIO:
//
//	docker run -p 9000:9000 minio/minio server /data
//	MINIO_ENDPOINT=localhost:9000 go test -tags integration ./internal/infrastructure/objectstore/
func TestIntegration_StoreRoundTrip(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	ctx := context.Background()
	c, err := Connect(ctx, config.MinIOConfig{
		Endpoint:        endpoint,
		AccessKeyID:     envOr("MINIO_ACCESS_KEY", "minioadmin"),
		SecretAccessKey: envOr("MINIO_SECRET_KEY", "minioadmin"),
		Bucket:          "couch-control-test",
		Prefix:          "it/",
	})
	require.NoError(t, err)
	require.NoError(t, c.HealthCheck(ctx))

	store := selection.NewStore(c, selection.StorageKey("integration"))
	_ = store.Delete(ctx)

	_, found := store.Load(ctx)
	assert.False(t, found)

	sel := []string{"light.kitchen", "sensor.temp"}
	require.NoError(t, store.Save(ctx, sel))
	got, found := store.Load(ctx)
	assert.True(t, found)
	assert.Equal(t, sel, got)

	require.NoError(t, store.Delete(ctx))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
