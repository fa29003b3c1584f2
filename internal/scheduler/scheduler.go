package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"glassweather/internal/apperr"
	"glassweather/internal/store"
	"glassweather/internal/weather"
)

// Forecaster fetches a fresh forecast for a coordinate pair.
type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64) (*weather.ForecastBundle, *apperr.Error)
}

// CoordSource lists the coordinate pairs worth keeping warm.
type CoordSource interface {
	WarmCoords(ctx context.Context) ([][2]float64, error)
}

// Scheduler periodically refreshes cached forecasts for favorited
// coordinates so reads stay warm between user visits.
type Scheduler struct {
	scheduler *gocron.Scheduler
	client    Forecaster
	cache     *store.ForecastCache
	coords    CoordSource
	interval  time.Duration
}

// New creates a new Scheduler.
func New(client Forecaster, cache *store.ForecastCache, coords CoordSource, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		client:    client,
		cache:     cache,
		coords:    coords,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 30
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pairs, err := s.coords.WarmCoords(ctx)
	if err != nil {
		log.Printf("scheduler: failed to list favorited coordinates: %v", err)
		return
	}
	if len(pairs) == 0 {
		return
	}

	log.Printf("scheduler: warming %d forecast(s)", len(pairs))

	var wg sync.WaitGroup
	for _, pair := range pairs {
		lat, lon := pair[0], pair[1]
		wg.Add(1)
		go func() {
			defer wg.Done()

			jobCtx, jobCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer jobCancel()

			bundle, appErr := s.client.Forecast(jobCtx, lat, lon)
			if appErr != nil {
				log.Printf("scheduler: forecast refresh failed for %s: %v", store.Key(lat, lon), appErr)
				return
			}
			s.cache.Put(lat, lon, bundle)
		}()
	}
	wg.Wait()
	log.Println("scheduler: completed forecast warm job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
