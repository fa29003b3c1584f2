package favorites

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"glassweather/internal/apperr"
)

type mockRepo struct {
	listFn   func(ctx context.Context, userID string) ([]Favorite, error)
	createFn func(ctx context.Context, userID string, city CityInput) (*Favorite, error)
	deleteFn func(ctx context.Context, id string) error
	existsFn func(ctx context.Context, userID, cityName string) (bool, error)

	createCalls int
}

func (m *mockRepo) List(ctx context.Context, userID string) ([]Favorite, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockRepo) Create(ctx context.Context, userID string, city CityInput) (*Favorite, error) {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, userID, city)
	}
	return &Favorite{
		ID:        uuid.NewString(),
		UserID:    userID,
		CityName:  city.CityName,
		Lat:       city.Lat,
		Lon:       city.Lon,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockRepo) Exists(ctx context.Context, userID, cityName string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, userID, cityName)
	}
	return false, nil
}

func idSet(favs []Favorite) map[string]bool {
	set := make(map[string]bool, len(favs))
	for _, f := range favs {
		set[f.ID] = true
	}
	return set
}

func TestAddCommitSwapsTempForServerRecord(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, "user-1")

	ok := svc.Add(context.Background(), CityInput{CityName: "Pune", Lat: 18.52, Lon: 73.86})
	if !ok {
		t.Fatal("expected add to succeed")
	}

	favs := svc.State().Favorites
	if len(favs) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(favs))
	}
	if favs[0].CityName != "Pune" {
		t.Errorf("unexpected entry: %+v", favs[0])
	}
	if IsTempID(favs[0].ID) {
		t.Errorf("temp id leaked into committed state: %q", favs[0].ID)
	}
}

func TestAddRollbackRestoresPreCallList(t *testing.T) {
	existing := Favorite{ID: "srv-1", UserID: "user-1", CityName: "London"}
	repo := &mockRepo{
		listFn: func(ctx context.Context, userID string) ([]Favorite, error) {
			return []Favorite{existing}, nil
		},
		createFn: func(ctx context.Context, userID string, city CityInput) (*Favorite, error) {
			return nil, errors.New("backend down")
		},
	}

	svc := NewService(repo, "user-1")
	svc.Refresh(context.Background())
	before := idSet(svc.State().Favorites)

	ok := svc.Add(context.Background(), CityInput{CityName: "Pune", Lat: 18.52, Lon: 73.86})
	if ok {
		t.Fatal("expected add to fail")
	}

	st := svc.State()
	after := idSet(st.Favorites)
	if len(after) != len(before) {
		t.Fatalf("expected list to return to pre-call state, before=%v after=%v", before, after)
	}
	for id := range before {
		if !after[id] {
			t.Errorf("entry %q missing after rollback", id)
		}
	}
	if st.Err == nil || st.Err.Code != apperr.CodeAddFavorite {
		t.Errorf("expected ADD_FAVORITE_ERROR, got %+v", st.Err)
	}
}

func TestDuplicateAddFailsFastWithoutCreate(t *testing.T) {
	favorited := map[string]bool{}
	repo := &mockRepo{
		existsFn: func(ctx context.Context, userID, cityName string) (bool, error) {
			return favorited[cityName], nil
		},
	}
	repo.createFn = func(ctx context.Context, userID string, city CityInput) (*Favorite, error) {
		favorited[city.CityName] = true
		return &Favorite{ID: uuid.NewString(), UserID: userID, CityName: city.CityName}, nil
	}

	svc := NewService(repo, "user-1")

	if !svc.Add(context.Background(), CityInput{CityName: "Pune"}) {
		t.Fatal("first add should succeed")
	}
	if svc.Add(context.Background(), CityInput{CityName: "Pune"}) {
		t.Fatal("second add should fail")
	}

	if repo.createCalls != 1 {
		t.Errorf("expected exactly one create call, got %d", repo.createCalls)
	}
	if err := svc.State().Err; err == nil || err.Code != apperr.CodeCityAlreadyFavorited {
		t.Errorf("expected CITY_ALREADY_FAVORITED, got %+v", err)
	}
	if n := len(svc.State().Favorites); n != 1 {
		t.Errorf("expected single entry after duplicate attempt, got %d", n)
	}
}

func TestRemoveRollbackReappendsEntry(t *testing.T) {
	repo := &mockRepo{
		listFn: func(ctx context.Context, userID string) ([]Favorite, error) {
			return []Favorite{
				{ID: "srv-1", CityName: "Pune"},
				{ID: "srv-2", CityName: "London"},
			}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			return errors.New("backend down")
		},
	}

	svc := NewService(repo, "user-1")
	svc.Refresh(context.Background())

	if svc.Remove(context.Background(), "srv-1") {
		t.Fatal("expected remove to fail")
	}

	st := svc.State()
	if len(st.Favorites) != 2 {
		t.Fatalf("expected both entries back, got %d", len(st.Favorites))
	}
	// Rollback re-appends rather than restoring position.
	if st.Favorites[len(st.Favorites)-1].ID != "srv-1" {
		t.Errorf("expected rolled-back entry at the end, got %+v", st.Favorites)
	}
	if st.Err == nil || st.Err.Code != apperr.CodeRemoveFavorite {
		t.Errorf("expected REMOVE_FAVORITE_ERROR, got %+v", st.Err)
	}
}

func TestRemoveCommit(t *testing.T) {
	repo := &mockRepo{
		listFn: func(ctx context.Context, userID string) ([]Favorite, error) {
			return []Favorite{{ID: "srv-1", CityName: "Pune"}}, nil
		},
	}
	svc := NewService(repo, "user-1")
	svc.Refresh(context.Background())

	if !svc.Remove(context.Background(), "srv-1") {
		t.Fatal("expected remove to succeed")
	}
	if n := len(svc.State().Favorites); n != 0 {
		t.Errorf("expected empty list, got %d entries", n)
	}
}

func TestNoDuplicateServerIDs(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, "user-1")

	names := []string{"Pune", "London", "Tokyo"}
	for _, name := range names {
		if !svc.Add(context.Background(), CityInput{CityName: name}) {
			t.Fatalf("add %s failed", name)
		}
	}

	favs := svc.State().Favorites
	if len(favs) != len(names) {
		t.Fatalf("expected %d entries, got %d", len(names), len(favs))
	}
	if len(idSet(favs)) != len(favs) {
		t.Error("duplicate ids in visible list")
	}
	for _, f := range favs {
		if strings.HasPrefix(f.ID, "temp-") {
			t.Errorf("temp id persisted: %q", f.ID)
		}
	}
}
