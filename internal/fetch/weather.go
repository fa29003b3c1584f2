package fetch

import (
	"context"
	"sync"

	"glassweather/internal/apperr"
	"glassweather/internal/weather"
	"glassweather/internal/weather/openweather"
)

// SnapshotLoader is the client slice the current-weather fetcher needs.
type SnapshotLoader interface {
	CurrentWeather(ctx context.Context, lat, lon float64) (*weather.Snapshot, *apperr.Error)
}

// OneCallLoader is the client slice the one-call fetcher needs.
type OneCallLoader interface {
	CompleteWeather(ctx context.Context, lat, lon float64, opts openweather.OneCallOptions) (*weather.CompleteWeather, *apperr.Error)
}

// WeatherFetcher tracks current-conditions state for a coordinate.
type WeatherFetcher struct {
	*Fetcher[weather.Snapshot]

	mu       sync.Mutex
	lat, lon float64
	client   SnapshotLoader
}

// NewWeatherFetcher creates the fetcher and triggers the initial cycle for
// the given coordinate asynchronously.
func NewWeatherFetcher(client SnapshotLoader, lat, lon float64) *WeatherFetcher {
	f := &WeatherFetcher{client: client, lat: lat, lon: lon}
	f.Fetcher = NewFetcher(func(ctx context.Context) (*weather.Snapshot, *apperr.Error) {
		la, lo := f.coords()
		return f.client.CurrentWeather(ctx, la, lo)
	})
	go f.Fetch(context.Background())
	return f
}

// SetCoords updates the coordinate and triggers a new fetch cycle. An older
// in-flight cycle that resolves later is discarded.
func (f *WeatherFetcher) SetCoords(lat, lon float64) {
	f.mu.Lock()
	f.lat, f.lon = lat, lon
	f.mu.Unlock()
	go f.Fetch(context.Background())
}

// Refetch forces a live network call for the current coordinate.
func (f *WeatherFetcher) Refetch(ctx context.Context) {
	f.Fetch(ctx)
}

func (f *WeatherFetcher) coords() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lat, f.lon
}

// OneCallFetcher tracks one-call state for a coordinate with fixed request
// options.
type OneCallFetcher struct {
	*Fetcher[weather.CompleteWeather]

	mu       sync.Mutex
	lat, lon float64
	opts     openweather.OneCallOptions
	client   OneCallLoader
}

// NewOneCallFetcher creates the fetcher and triggers the initial cycle
// asynchronously.
func NewOneCallFetcher(client OneCallLoader, lat, lon float64, opts openweather.OneCallOptions) *OneCallFetcher {
	f := &OneCallFetcher{client: client, lat: lat, lon: lon, opts: opts}
	f.Fetcher = NewFetcher(func(ctx context.Context) (*weather.CompleteWeather, *apperr.Error) {
		f.mu.Lock()
		la, lo, opts := f.lat, f.lon, f.opts
		f.mu.Unlock()
		return f.client.CompleteWeather(ctx, la, lo, opts)
	})
	go f.Fetch(context.Background())
	return f
}

// SetCoords updates the coordinate and triggers a new fetch cycle.
func (f *OneCallFetcher) SetCoords(lat, lon float64) {
	f.mu.Lock()
	f.lat, f.lon = lat, lon
	f.mu.Unlock()
	go f.Fetch(context.Background())
}

// Refetch forces a live network call for the current coordinate.
func (f *OneCallFetcher) Refetch(ctx context.Context) {
	f.Fetch(ctx)
}
