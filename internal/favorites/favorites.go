// Package favorites implements the optimistic mutation layer over the
// favorite-city persistence backend: adds and removes update the visible
// list immediately and roll back if the remote call fails.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"glassweather/internal/apperr"
)

// Favorite is a favorited city record. Persisted records carry a
// server-assigned id; optimistic placeholders use a "temp-" id that is
// swapped for the real record on commit and never escapes otherwise.
type Favorite struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CityName  string    `json:"city_name"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	CreatedAt time.Time `json:"created_at"`
}

// CityInput is the caller-supplied shape for adding a favorite.
type CityInput struct {
	CityName string  `json:"city_name" validate:"required"`
	Lat      float64 `json:"lat" validate:"min=-90,max=90"`
	Lon      float64 `json:"lon" validate:"min=-180,max=180"`
}

// Repository is the persistence port. List returns records ordered by
// creation time descending.
type Repository interface {
	List(ctx context.Context, userID string) ([]Favorite, error)
	Create(ctx context.Context, userID string, city CityInput) (*Favorite, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, userID, cityName string) (bool, error)
}

// State is the favorites view exposed to callers.
type State struct {
	Favorites []Favorite
	Loading   bool
	Err       *apperr.Error
}

// Service tracks one user's favorites with optimistic updates. Mutations
// are serialized so at most one optimistic splice is in flight at a time.
type Service struct {
	repo   Repository
	userID string

	mutateMu sync.Mutex // serializes Add/Remove end to end

	mu        sync.Mutex // guards the fields below
	favorites []Favorite
	loading   bool
	err       *apperr.Error
}

// NewService creates a favorites service for the given user. Call Refresh
// to load the initial list.
func NewService(repo Repository, userID string) *Service {
	return &Service{repo: repo, userID: userID}
}

// State returns a copy of the current favorites state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	favs := make([]Favorite, len(s.favorites))
	copy(favs, s.favorites)
	return State{Favorites: favs, Loading: s.loading, Err: s.err}
}

// ClearError drops the surfaced error.
func (s *Service) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
}

// Refresh reloads the list from the repository.
func (s *Service) Refresh(ctx context.Context) {
	s.mu.Lock()
	s.loading = true
	s.err = nil
	s.mu.Unlock()

	favs, err := s.repo.List(ctx, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = asAppErr(err, "Failed to fetch favorites", apperr.CodeFetchFavorites)
		return
	}
	s.favorites = favs
}

// Add optimistically appends the city, then persists it. On success the
// placeholder is swapped for the server record; on failure the placeholder
// is removed so the list returns to exactly its pre-call state. A city
// already favorited fails fast without issuing a create.
func (s *Service) Add(ctx context.Context, city CityInput) bool {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()

	exists, err := s.repo.Exists(ctx, s.userID, city.CityName)
	if err != nil {
		s.setError(asAppErr(err, "Failed to check favorite status", apperr.CodeCheckFavorite))
		return false
	}
	if exists {
		s.setError(apperr.New("City is already in favorites", apperr.CodeCityAlreadyFavorited))
		return false
	}

	temp := Favorite{
		ID:        fmt.Sprintf("temp-%d", time.Now().UnixMilli()),
		UserID:    s.userID,
		CityName:  city.CityName,
		Lat:       city.Lat,
		Lon:       city.Lon,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.favorites = append(s.favorites, temp)
	s.mu.Unlock()

	record, err := s.repo.Create(ctx, s.userID, city)
	if err != nil || record == nil {
		s.mu.Lock()
		s.favorites = removeByID(s.favorites, temp.ID)
		s.err = asAppErr(err, "Failed to add favorite", apperr.CodeAddFavorite)
		s.mu.Unlock()
		return false
	}

	// Swap the placeholder for the committed record, matched by temp id.
	s.mu.Lock()
	for i := range s.favorites {
		if s.favorites[i].ID == temp.ID {
			s.favorites[i] = *record
			break
		}
	}
	s.mu.Unlock()
	return true
}

// Remove optimistically splices the entry out, then deletes it remotely.
// On failure the captured entry is re-appended (not restored to its
// original position) and the error surfaced.
func (s *Service) Remove(ctx context.Context, id string) bool {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()

	s.mu.Lock()
	var removed *Favorite
	for i := range s.favorites {
		if s.favorites[i].ID == id {
			f := s.favorites[i]
			removed = &f
			break
		}
	}
	s.favorites = removeByID(s.favorites, id)
	s.mu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		s.mu.Lock()
		if removed != nil {
			s.favorites = append(s.favorites, *removed)
		}
		s.err = asAppErr(err, "Failed to remove favorite", apperr.CodeRemoveFavorite)
		s.mu.Unlock()
		return false
	}
	return true
}

// IsFavorite reports whether the user already favorited the city name.
// Repository failures are reported as not-favorited.
func (s *Service) IsFavorite(ctx context.Context, cityName string) bool {
	exists, err := s.repo.Exists(ctx, s.userID, cityName)
	if err != nil {
		return false
	}
	return exists
}

func (s *Service) setError(appErr *apperr.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = appErr
}

func removeByID(favs []Favorite, id string) []Favorite {
	out := favs[:0]
	for _, f := range favs {
		if f.ID != id {
			out = append(out, f)
		}
	}
	return out
}

// IsTempID reports whether an id is an optimistic placeholder id.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, "temp-")
}

// asAppErr keeps an already-typed error intact and wraps anything else in
// the given fallback message and code.
func asAppErr(err error, message, code string) *apperr.Error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.New(message, code)
}
