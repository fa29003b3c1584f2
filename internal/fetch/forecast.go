package fetch

import (
	"context"
	"sync"

	"glassweather/internal/apperr"
	"glassweather/internal/store"
	"glassweather/internal/weather"
)

// ForecastLoader is the client slice the forecast fetcher needs.
type ForecastLoader interface {
	Forecast(ctx context.Context, lat, lon float64) (*weather.ForecastBundle, *apperr.Error)
}

// ForecastFetcher tracks forecast state for a coordinate with a
// read-through cache in front of the client. Refetch bypasses the cache.
type ForecastFetcher struct {
	*Fetcher[weather.ForecastBundle]

	mu       sync.Mutex
	lat, lon float64
	client   ForecastLoader
	cache    *store.ForecastCache
}

// NewForecastFetcher creates the fetcher and triggers the initial cycle
// asynchronously.
func NewForecastFetcher(client ForecastLoader, cache *store.ForecastCache, lat, lon float64) *ForecastFetcher {
	f := &ForecastFetcher{client: client, cache: cache, lat: lat, lon: lon}
	f.Fetcher = NewFetcher[weather.ForecastBundle](nil)
	go f.fetch(context.Background(), false)
	return f
}

// SetCoords updates the coordinate and triggers a new fetch cycle.
func (f *ForecastFetcher) SetCoords(lat, lon float64) {
	f.mu.Lock()
	f.lat, f.lon = lat, lon
	f.mu.Unlock()
	go f.fetch(context.Background(), false)
}

// Fetch runs one cache-aware cycle for the current coordinate.
func (f *ForecastFetcher) Fetch(ctx context.Context) {
	f.fetch(ctx, false)
}

// Refetch forces a live network call, skipping the cache read but still
// storing the fresh result.
func (f *ForecastFetcher) Refetch(ctx context.Context) {
	f.fetch(ctx, true)
}

func (f *ForecastFetcher) fetch(ctx context.Context, force bool) {
	f.mu.Lock()
	lat, lon := f.lat, f.lon
	f.mu.Unlock()

	token, ok := f.begin()
	if !ok {
		return
	}

	if !force {
		if cached, hit := f.cache.Get(lat, lon); hit {
			f.commit(token, cached, nil)
			return
		}
	}

	bundle, appErr := f.client.Forecast(ctx, lat, lon)
	if f.commit(token, bundle, appErr) && bundle != nil {
		f.cache.Put(lat, lon, bundle)
	}
}
