package scheduling

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/smiledesk/smiledesk/services/booking-service/internal/availability"
	"github.com/smiledesk/smiledesk/services/booking-service/internal/model"
)

const typesKey = "types"

type cachedProvider struct {
	next  Provider
	cache *gocache.Cache
}

// NewCachedProvider keeps provider answers in process memory for ttl. Clinic hours change
// rarely and every slot query needs them.
func NewCachedProvider(next Provider, ttl time.Duration) Provider {
	return &cachedProvider{next: next, cache: gocache.New(ttl, 2*ttl)}
}

func (p *cachedProvider) WorkingHours(ctx context.Context, day time.Weekday) (availability.WorkingHours, error) {
	key := "hours:" + strconv.Itoa(int(day))
	if v, ok := p.cache.Get(key); ok {
		return v.(availability.WorkingHours), nil
	}
	h, err := p.next.WorkingHours(ctx, day)
	if err != nil {
		return availability.WorkingHours{}, err
	}
	p.cache.SetDefault(key, h)
	return h, nil
}

func (p *cachedProvider) AppointmentTypes(ctx context.Context) ([]model.AppointmentType, error) {
	if v, ok := p.cache.Get(typesKey); ok {
		cached := v.([]model.AppointmentType)
		out := make([]model.AppointmentType, len(cached))
		copy(out, cached)
		return out, nil
	}
	types, err := p.next.AppointmentTypes(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(typesKey, types)
	return types, nil
}
