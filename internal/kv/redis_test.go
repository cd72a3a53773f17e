package kv

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb), mr
}

func TestRedisGetSetTTL(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "meeting:nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "meeting:a", []byte(`{"id":"a"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "meeting:a")
	if err != nil || string(got) != `{"id":"a"}` {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if ttl := mr.TTL("meeting:a"); ttl != time.Minute {
		t.Fatalf("TTL = %v, want 1m", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if ok, _ := s.Exists(ctx, "meeting:a"); ok {
		t.Fatal("key survived its TTL")
	}
}

func TestRedisKeysScanPrefix(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()
	for _, k := range []string{"availability:m1:bob", "availability:m1:alice", "availability:m10:zed", "meeting:m1"} {
		if err := s.Set(ctx, k, []byte("[]"), 0); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	keys, err := s.Keys(ctx, "availability:m1:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	want := []string{"availability:m1:alice", "availability:m1:bob"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
}

func TestRedisMGetAlignsMissing(t *testing.T) {
	s, _ := newTestRedis(t)
	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("1"), 0)
	_ = s.Set(ctx, "c", []byte("3"), 0)

	vals, err := s.MGet(ctx, "a", "b", "c")
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(vals) != 3 || string(vals[0]) != "1" || vals[1] != nil || string(vals[2]) != "3" {
		t.Fatalf("MGet = %q", vals)
	}
	if err := s.Delete(ctx, "a", "c"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := s.Exists(ctx, "a"); ok {
		t.Fatal("a still exists after Delete")
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Fatalf("escapeGlob = %q", got)
	}
}
