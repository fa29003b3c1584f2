package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"glassweather/internal/apperr"
	"glassweather/internal/auth"
	"glassweather/internal/backend"
	"glassweather/internal/favorites"
	"glassweather/internal/store"
	"glassweather/internal/weather"
	"glassweather/internal/weather/openweather"
)

type mockClient struct {
	mu            sync.Mutex
	forecastCalls int
	forecastErr   *apperr.Error
}

func (m *mockClient) CurrentWeather(ctx context.Context, lat, lon float64) (*weather.Snapshot, *apperr.Error) {
	return &weather.Snapshot{Location: weather.Location{Name: "Testville"}}, nil
}

func (m *mockClient) Forecast(ctx context.Context, lat, lon float64) (*weather.ForecastBundle, *apperr.Error) {
	m.mu.Lock()
	m.forecastCalls++
	err := m.forecastErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &weather.ForecastBundle{Location: weather.Location{Name: "Testville"}}, nil
}

func (m *mockClient) SearchCities(ctx context.Context, query string, limit int) ([]weather.City, *apperr.Error) {
	return []weather.City{{Name: "Testville"}}, nil
}

func (m *mockClient) CompleteWeather(ctx context.Context, lat, lon float64, opts openweather.OneCallOptions) (*weather.CompleteWeather, *apperr.Error) {
	return &weather.CompleteWeather{}, nil
}

func (m *mockClient) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forecastCalls
}

type mockIdentity struct {
	mu     sync.Mutex
	users  map[string]*auth.User // token -> user
	nextID int
}

func newMockIdentity() *mockIdentity {
	return &mockIdentity{users: make(map[string]*auth.User)}
}

func (m *mockIdentity) SignUpToken(ctx context.Context, email, password string) (*auth.User, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return nil, "", backend.ErrEmailTaken
		}
	}
	m.nextID++
	user := &auth.User{ID: strings.Repeat("u", m.nextID), Email: email}
	token := "token-" + user.ID
	m.users[token] = user
	return user, token, nil
}

func (m *mockIdentity) SignInToken(ctx context.Context, email, password string) (*auth.User, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, u := range m.users {
		if u.Email == email {
			return u, token, nil
		}
	}
	return nil, "", backend.ErrInvalidCredentials
}

func (m *mockIdentity) UserForToken(ctx context.Context, token string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[token]; ok {
		return u, nil
	}
	return nil, backend.ErrNoSession
}

func (m *mockIdentity) DeleteToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, token)
	return nil
}

type mockFavRepo struct {
	mu   sync.Mutex
	recs []favorites.Favorite
	next int
}

func (m *mockFavRepo) List(ctx context.Context, userID string) ([]favorites.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []favorites.Favorite
	for _, rec := range m.recs {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockFavRepo) Create(ctx context.Context, userID string, city favorites.CityInput) (*favorites.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	rec := favorites.Favorite{
		ID:        "fav-" + strings.Repeat("x", m.next),
		UserID:    userID,
		CityName:  city.CityName,
		Lat:       city.Lat,
		Lon:       city.Lon,
		CreatedAt: time.Now(),
	}
	m.recs = append(m.recs, rec)
	return &rec, nil
}

func (m *mockFavRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.recs {
		if rec.ID == id {
			m.recs = append(m.recs[:i], m.recs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockFavRepo) Exists(ctx context.Context, userID, cityName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recs {
		if rec.UserID == userID && rec.CityName == cityName {
			return true, nil
		}
	}
	return false, nil
}

func newTestApp(client *mockClient) (*fiber.App, *mockIdentity) {
	app := fiber.New()
	identity := newMockIdentity()
	RegisterRoutes(app, Deps{
		Client:    client,
		Cache:     store.NewForecastCache(store.DefaultTTL, 16),
		Identity:  identity,
		Favorites: &mockFavRepo{},
	})
	return app, identity
}

func TestCoordinateValidation(t *testing.T) {
	app, _ := newTestApp(&mockClient{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weather/current?lat=91&lon=0", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/weather/current?lat=10", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d for missing lon, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestForecastServedFromCache(t *testing.T) {
	client := &mockClient{}
	app, _ := newTestApp(client)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/weather/forecast?lat=51.5072&lon=-0.1276", nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status 200, got %d", resp.StatusCode)
		}
	}
	if got := client.calls(); got != 1 {
		t.Errorf("expected 1 upstream call for repeated coordinates, got %d", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weather/forecast?lat=51.5072&lon=-0.1276&force=true", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := client.calls(); got != 2 {
		t.Errorf("expected force=true to bypass the cache, got %d calls", got)
	}
}

func TestUpstreamErrorKeepsDomainCode(t *testing.T) {
	client := &mockClient{forecastErr: apperr.FromStatus(429)}
	app, _ := newTestApp(client)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weather/forecast?lat=1&lon=1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", resp.StatusCode)
	}

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "429" {
		t.Errorf("expected code 429 in body, got %q", body.Code)
	}
	if body.Error == "" {
		t.Error("expected a user-facing error message")
	}
}

func TestSearchLimitValidation(t *testing.T) {
	app, _ := newTestApp(&mockClient{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weather/search?q=Lon&limit=11", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.StatusCode)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	app, _ := newTestApp(&mockClient{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/favorites", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.StatusCode)
	}
}

func TestSignUpAndFavoritesFlow(t *testing.T) {
	app, _ := newTestApp(&mockClient{})

	signup := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup",
		strings.NewReader(`{"email":"grace@example.com","password":"secret1"}`))
	signup.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(signup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}

	var signupBody struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signupBody); err != nil {
		t.Fatalf("failed to decode sign-up body: %v", err)
	}
	if signupBody.Token == "" {
		t.Fatal("expected a session token")
	}
	authHeader := "Bearer " + signupBody.Token

	add := httptest.NewRequest(http.MethodPost, "/api/v1/favorites",
		strings.NewReader(`{"city_name":"London","lat":51.5072,"lon":-0.1276}`))
	add.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	add.Header.Set(fiber.HeaderAuthorization, authHeader)
	resp, err = app.Test(add)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}

	var addBody struct {
		Favorites []favorites.Favorite `json:"favorites"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&addBody); err != nil {
		t.Fatalf("failed to decode favorites body: %v", err)
	}
	if len(addBody.Favorites) != 1 {
		t.Fatalf("expected 1 favorite, got %d", len(addBody.Favorites))
	}
	if favorites.IsTempID(addBody.Favorites[0].ID) {
		t.Error("expected the response to carry the server-assigned id")
	}

	dup := httptest.NewRequest(http.MethodPost, "/api/v1/favorites",
		strings.NewReader(`{"city_name":"London","lat":51.5072,"lon":-0.1276}`))
	dup.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	dup.Header.Set(fiber.HeaderAuthorization, authHeader)
	resp, err = app.Test(dup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409 for duplicate city, got %d", resp.StatusCode)
	}

	check := httptest.NewRequest(http.MethodGet, "/api/v1/favorites/check?city=London", nil)
	check.Header.Set(fiber.HeaderAuthorization, authHeader)
	resp, err = app.Test(check)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var checkBody struct {
		IsFavorite bool `json:"is_favorite"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&checkBody); err != nil {
		t.Fatalf("failed to decode check body: %v", err)
	}
	if !checkBody.IsFavorite {
		t.Error("expected London to be reported as a favorite")
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/favorites/"+addBody.Favorites[0].ID, nil)
	del.Header.Set(fiber.HeaderAuthorization, authHeader)
	resp, err = app.Test(del)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.StatusCode)
	}
}
