package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smiledesk/smiledesk/services/clinic-service/internal/clinic"
)

type fakeKV struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeKV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	kv := newFakeKV()
	c := NewRedis(kv, "test", time.Minute)
	ctx := context.Background()

	if _, err := c.GetHours(ctx); !errors.Is(err, clinic.ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := c.SetHours(ctx, clinic.DefaultWeek()); err != nil {
		t.Fatalf("SetHours failed: %v", err)
	}
	if kv.ttls["test:hours"] != time.Minute {
		t.Fatalf("expected ttl 1m, got %s", kv.ttls["test:hours"])
	}
	hours, err := c.GetHours(ctx)
	if err != nil {
		t.Fatalf("GetHours failed: %v", err)
	}
	if len(hours) != 7 || !hours[time.Wednesday].IsOpen || hours[time.Wednesday].EndMinute != 1020 {
		t.Fatalf("unexpected cached hours %+v", hours)
	}

	types := []clinic.AppointmentType{{ID: "checkup", Name: "Checkup", DurationMinutes: 30, Color: "#4caf50"}}
	if err := c.SetTypes(ctx, types); err != nil {
		t.Fatalf("SetTypes failed: %v", err)
	}
	got, err := c.GetTypes(ctx)
	if err != nil || len(got) != 1 || got[0].DurationMinutes != 30 {
		t.Fatalf("unexpected cached types %+v (%v)", got, err)
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := c.GetTypes(ctx); !errors.Is(err, clinic.ErrCacheMiss) {
		t.Fatalf("expected miss after invalidate, got %v", err)
	}
}

func TestRedisCachePassesThroughErrors(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("connection refused")
	c := NewRedis(kv, "", 0)
	if _, err := c.GetHours(context.Background()); err == nil || errors.Is(err, clinic.ErrCacheMiss) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
