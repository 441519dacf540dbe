package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smiledesk/smiledesk/services/clinic-service/internal/clinic"
)

// KV is the subset of redis.Cmdable the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis caches the weekly hours and the appointment-type catalogue as JSON.
type Redis struct {
	kv     KV
	prefix string
	ttl    time.Duration
}

func NewRedis(kv KV, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "clinic"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{kv: kv, prefix: prefix, ttl: ttl}
}

type hoursEntry struct {
	Weekday     int  `json:"weekday"`
	IsOpen      bool `json:"is_open"`
	StartMinute int  `json:"start_minute"`
	EndMinute   int  `json:"end_minute"`
}

type typeEntry struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Color           string    `json:"color"`
	CreatedAt       time.Time `json:"created_at"`
}

func (c *Redis) hoursKey() string { return c.prefix + ":hours" }
func (c *Redis) typesKey() string { return c.prefix + ":types" }

func (c *Redis) GetHours(ctx context.Context) ([]clinic.WorkingHours, error) {
	var entries []hoursEntry
	if err := c.get(ctx, c.hoursKey(), &entries); err != nil {
		return nil, err
	}
	out := make([]clinic.WorkingHours, 0, len(entries))
	for _, e := range entries {
		out = append(out, clinic.WorkingHours{
			Weekday:     time.Weekday(e.Weekday),
			IsOpen:      e.IsOpen,
			StartMinute: e.StartMinute,
			EndMinute:   e.EndMinute,
		})
	}
	return out, nil
}

func (c *Redis) SetHours(ctx context.Context, hours []clinic.WorkingHours) error {
	entries := make([]hoursEntry, 0, len(hours))
	for _, h := range hours {
		entries = append(entries, hoursEntry{
			Weekday:     int(h.Weekday),
			IsOpen:      h.IsOpen,
			StartMinute: h.StartMinute,
			EndMinute:   h.EndMinute,
		})
	}
	return c.set(ctx, c.hoursKey(), entries)
}

func (c *Redis) GetTypes(ctx context.Context) ([]clinic.AppointmentType, error) {
	var entries []typeEntry
	if err := c.get(ctx, c.typesKey(), &entries); err != nil {
		return nil, err
	}
	out := make([]clinic.AppointmentType, 0, len(entries))
	for _, e := range entries {
		out = append(out, clinic.AppointmentType(e))
	}
	return out, nil
}

func (c *Redis) SetTypes(ctx context.Context, types []clinic.AppointmentType) error {
	entries := make([]typeEntry, 0, len(types))
	for _, t := range types {
		entries = append(entries, typeEntry(t))
	}
	return c.set(ctx, c.typesKey(), entries)
}

func (c *Redis) Invalidate(ctx context.Context) error {
	return c.kv.Del(ctx, c.hoursKey(), c.typesKey()).Err()
}

func (c *Redis) get(ctx context.Context, key string, dst any) error {
	raw, err := c.kv.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return clinic.ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (c *Redis) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, key, raw, c.ttl).Err()
}
