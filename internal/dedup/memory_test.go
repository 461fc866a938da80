package dedup

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/sungwon/campaign-dispatch/internal/config"
)

func TestKey(t *testing.T) {
	if got := Key(12, 345); got != "12-345" {
		t.Errorf("Key(12, 345) = %q, want %q", got, "12-345")
	}
}

func TestMemory_SeenAfterMark(t *testing.T) {
	ctx := context.Background()
	g := NewMemory(10)

	seen, _ := g.Seen(ctx, 1, 7)
	if seen {
		t.Fatal("expected subscriber 7 unseen before MarkSeen")
	}

	if err := g.MarkSeen(ctx, 1, 7); err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}

	if seen, _ := g.Seen(ctx, 1, 7); !seen {
		t.Error("expected subscriber 7 seen after MarkSeen")
	}
	if seen, _ := g.Seen(ctx, 2, 7); seen {
		t.Error("expected key to be scoped by campaign")
	}
}

func TestMemory_CapacityBound(t *testing.T) {
	ctx := context.Background()
	g := NewMemory(2)

	for _, id := range []int64{1, 2, 3, 1} {
		if err := g.MarkSeen(ctx, 9, id); err != nil {
			t.Fatalf("MarkSeen(%d) error = %v", id, err)
		}
	}

	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.Len())
	}
	if g.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", g.Dropped())
	}
	if seen, _ := g.Seen(ctx, 9, 3); seen {
		t.Error("expected key beyond capacity to be reported unseen")
	}
}

func TestNewMemory_DefaultCapacity(t *testing.T) {
	if g := NewMemory(0); g.capacity != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", g.capacity, DefaultCapacity)
	}
}

func TestMemoryFactory_FreshGuardPerRun(t *testing.T) {
	factory := MemoryFactory(10)
	ctx := context.Background()

	first := factory("run-1")
	if err := first.MarkSeen(ctx, 1, 2); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	second := factory("run-2")
	seen, err := second.Seen(ctx, 1, 2)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Error("expected a new run to start with an empty guard")
	}
	if err := Release(ctx, first); err != nil {
		t.Errorf("expected release of memory guard to be a no-op, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	tests := []struct {
		name    string
		cfg     config.DispatchConfig
		client  redis.Cmdable
		want    string
		wantErr bool
	}{
		{"default is memory", config.DispatchConfig{}, nil, "memory", false},
		{"memory with capacity", config.DispatchConfig{Dedup: "memory", DedupCapacity: 10}, nil, "memory", false},
		{"redis", config.DispatchConfig{Dedup: "redis"}, client, "redis", false},
		{"redis without client", config.DispatchConfig{Dedup: "redis"}, nil, "", true},
		{"unknown", config.DispatchConfig{Dedup: "etcd"}, nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := FromConfig(tt.cfg, tt.client)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			g := factory("run-1")
			switch tt.want {
			case "memory":
				if _, ok := g.(*Memory); !ok {
					t.Errorf("guard = %T, want *Memory", g)
				}
			case "redis":
				r, ok := g.(*Redis)
				if !ok {
					t.Fatalf("guard = %T, want *Redis", g)
				}
				if r.key != "dedup:run-1" || r.ttl != DefaultTTL {
					t.Errorf("redis guard key=%q ttl=%v", r.key, r.ttl)
				}
			}
		})
	}
}
