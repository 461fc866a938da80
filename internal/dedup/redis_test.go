//go:build integration

package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedis_SeenAfterMarkAndRelease(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	g := NewRedis(client, "run-1", time.Minute)

	if seen, err := g.Seen(ctx, 4, 40); err != nil || seen {
		t.Fatalf("Seen() before mark = %v, %v; want false, nil", seen, err)
	}
	if err := g.MarkSeen(ctx, 4, 40); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if seen, err := g.Seen(ctx, 4, 40); err != nil || !seen {
		t.Fatalf("Seen() after mark = %v, %v; want true, nil", seen, err)
	}

	ttl, err := client.TTL(ctx, "dedup:run-1").Result()
	if err != nil || ttl <= 0 {
		t.Errorf("TTL() = %v, %v; want positive ttl", ttl, err)
	}

	if err := g.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if seen, _ := g.Seen(ctx, 4, 40); seen {
		t.Error("expected set to be gone after Release")
	}
}
