package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := NewRedisStoreWithClient(rdb, "")
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})
	return s, mr
}

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := NewGormStore(db, "test:")
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStores_Contract(t *testing.T) {
	redisStore, _ := newMiniRedisStore(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
		"redis":  redisStore,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.Ping(ctx); err != nil {
				t.Fatalf("ping: %v", err)
			}
			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := s.Set(ctx, "db_tasks", `[{"id":"1"}]`); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := s.Set(ctx, "db_tasks", `[]`); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, err := s.Get(ctx, "db_tasks")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got != "[]" {
				t.Fatalf("expected last write to win, got %q", got)
			}

			if err := s.Delete(ctx, "db_tasks"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := s.Delete(ctx, "db_tasks"); err != nil {
				t.Fatalf("delete absent key: %v", err)
			}
			if _, err := s.Get(ctx, "db_tasks"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestRedisStore_Namespace(t *testing.T) {
	s, mr := newMiniRedisStore(t)
	if err := s.Set(context.Background(), "auth_user", "{}"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists(DefaultRedisNamespace + "auth_user") {
		t.Fatalf("expected namespaced key in redis, keys=%v", mr.Keys())
	}
}

func TestNewRedisStoreWithClient_Nil(t *testing.T) {
	if _, err := NewRedisStoreWithClient(nil, ""); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Driver: "memory"})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", s)
	}

	path := filepath.Join(t.TempDir(), "nested", "todo.db")
	s, err = Open(ctx, Options{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("sqlite set: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rs, err := Open(ctx, Options{Driver: "redis", RedisAddr: mr.Addr()})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer rs.Close()

	if _, err := Open(ctx, Options{Driver: "etcd"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
