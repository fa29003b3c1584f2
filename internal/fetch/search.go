package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"glassweather/internal/apperr"
	"glassweather/internal/weather"
)

// DefaultDebounce is how long the search fetcher waits after the last
// keystroke before issuing a network call.
const DefaultDebounce = 300 * time.Millisecond

// CitySearcher is the client slice the search fetcher needs.
type CitySearcher interface {
	SearchCities(ctx context.Context, query string, limit int) ([]weather.City, *apperr.Error)
}

// SearchFetcher tracks city-search state with debounced input: each Search
// call restarts the debounce timer, so only the last query in any window
// reaches the network.
type SearchFetcher struct {
	*Fetcher[[]weather.City]

	client   CitySearcher
	limit    int
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewSearchFetcher creates an idle search fetcher. A debounce <= 0 falls
// back to the 300ms default.
func NewSearchFetcher(client CitySearcher, limit int, debounce time.Duration) *SearchFetcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	s := &SearchFetcher{
		Fetcher:  NewFetcher[[]weather.City](nil),
		client:   client,
		limit:    limit,
		debounce: debounce,
	}
	return s
}

// Search schedules a debounced search for the query, cancelling any pending
// one. A blank query cancels the pending search and resets state
// synchronously without touching the network.
func (s *SearchFetcher) Search(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if strings.TrimSpace(query) == "" {
		s.reset()
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.runSearch(query)
	})
}

func (s *SearchFetcher) runSearch(query string) {
	token, ok := s.begin()
	if !ok {
		return
	}
	cities, appErr := s.client.SearchCities(context.Background(), query, s.limit)
	if cities == nil {
		cities = []weather.City{}
	}
	s.commit(token, &cities, appErr)
}

// ClearResults cancels any pending debounce timer and resets state to
// empty/idle synchronously.
func (s *SearchFetcher) ClearResults() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.reset()
}

// Close cancels any pending timer and tears the fetcher down.
func (s *SearchFetcher) Close() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.Fetcher.Close()
}
