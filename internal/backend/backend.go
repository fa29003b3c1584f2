// Package backend is the bundled identity-and-persistence backend: user
// accounts with bcrypt credentials, opaque session tokens, and favorite-city
// records, stored in sqlite through gorm. It implements the auth provider
// and favorites repository ports.
package backend

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"glassweather/internal/apperr"
	"glassweather/internal/auth"
	"glassweather/internal/favorites"
)

const sessionTTL = 24 * time.Hour

var (
	// ErrInvalidCredentials indicates a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNoSession indicates there is no live session for the operation.
	ErrNoSession = errors.New("no active session")
)

type userRecord struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex"`
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type sessionRecord struct {
	Token     string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	ExpiresAt time.Time
	CreatedAt time.Time
}

type favoriteRecord struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	CityName  string
	Lat       float64
	Lon       float64
	CreatedAt time.Time
}

// Backend wraps the sqlite database plus the provider-owned singleton
// session and its change subscribers.
type Backend struct {
	db *gorm.DB

	mu           sync.Mutex
	subscribers  map[int]func(auth.Event)
	nextSubID    int
	currentToken string
}

// Open opens (or creates) the sqlite database at path and migrates the
// schema.
func Open(path string) (*Backend, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&userRecord{}, &sessionRecord{}, &favoriteRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Backend{
		db:          db,
		subscribers: make(map[int]func(auth.Event)),
	}, nil
}

// Close closes the underlying database handle.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- auth.Provider ---

var _ auth.Provider = (*Backend)(nil)

// SignUp registers a new identity and opens a session for it.
func (b *Backend) SignUp(ctx context.Context, email, password string) (*auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 6 {
		return nil, apperr.New("Email and a password of at least 6 characters are required", apperr.CodeSignUp)
	}

	var count int64
	if err := b.db.WithContext(ctx).Model(&userRecord{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperr.New("Email already registered", apperr.CodeSignUp)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := userRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := b.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}

	user := toUser(rec)
	token, err := b.openSession(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	b.adoptSession(token)
	b.emit(auth.EventSignedIn)
	return &user, nil
}

// SignIn authenticates an existing identity and opens a session for it.
func (b *Backend) SignIn(ctx context.Context, email, password string) (*auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var rec userRecord
	err := b.db.WithContext(ctx).Where("email = ?", email).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New("Invalid login credentials", apperr.CodeSignIn)
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return nil, apperr.New("Invalid login credentials", apperr.CodeSignIn)
	}

	user := toUser(rec)
	token, err := b.openSession(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	b.adoptSession(token)
	b.emit(auth.EventSignedIn)
	return &user, nil
}

// SignOut ends the provider-owned session.
func (b *Backend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	token := b.currentToken
	b.currentToken = ""
	b.mu.Unlock()

	if token != "" {
		if err := b.DeleteToken(ctx, token); err != nil {
			return err
		}
	}
	b.emit(auth.EventSignedOut)
	return nil
}

// CurrentUser resolves the provider-owned session to its user record, or
// nil when unauthenticated.
func (b *Backend) CurrentUser(ctx context.Context) (*auth.User, error) {
	b.mu.Lock()
	token := b.currentToken
	b.mu.Unlock()

	if token == "" {
		return nil, nil
	}
	user, err := b.UserForToken(ctx, token)
	if errors.Is(err, ErrNoSession) {
		return nil, nil
	}
	return user, err
}

// RefreshSession rotates the provider-owned session token and notifies
// subscribers.
func (b *Backend) RefreshSession(ctx context.Context) error {
	b.mu.Lock()
	token := b.currentToken
	b.mu.Unlock()
	if token == "" {
		return ErrNoSession
	}

	var sess sessionRecord
	if err := b.db.WithContext(ctx).First(&sess, "token = ?", token).Error; err != nil {
		return ErrNoSession
	}

	fresh, err := b.openSession(ctx, sess.UserID)
	if err != nil {
		return err
	}
	if err := b.DeleteToken(ctx, token); err != nil {
		return err
	}
	b.adoptSession(fresh)
	b.emit(auth.EventTokenRefreshed)
	return nil
}

// Subscribe registers an identity change listener; the returned function
// releases it.
func (b *Backend) Subscribe(fn func(auth.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

func (b *Backend) emit(ev auth.Event) {
	b.mu.Lock()
	subs := make([]func(auth.Event), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	b.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (b *Backend) adoptSession(token string) {
	b.mu.Lock()
	b.currentToken = token
	b.mu.Unlock()
}

// --- token surface (used by the HTTP layer) ---

// SignInToken authenticates and returns a bearer token without touching
// the provider-owned singleton session.
func (b *Backend) SignInToken(ctx context.Context, email, password string) (*auth.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var rec userRecord
	err := b.db.WithContext(ctx).Where("email = ?", email).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := b.openSession(ctx, rec.ID)
	if err != nil {
		return nil, "", err
	}
	user := toUser(rec)
	return &user, token, nil
}

// SignUpToken registers a new identity and returns a bearer token for it.
func (b *Backend) SignUpToken(ctx context.Context, email, password string) (*auth.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 6 {
		return nil, "", apperr.New("Email and a password of at least 6 characters are required", apperr.CodeSignUp)
	}

	var count int64
	if err := b.db.WithContext(ctx).Model(&userRecord{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, "", err
	}
	if count > 0 {
		return nil, "", ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	rec := userRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := b.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, "", err
	}

	token, err := b.openSession(ctx, rec.ID)
	if err != nil {
		return nil, "", err
	}
	user := toUser(rec)
	return &user, token, nil
}

// UserForToken resolves a bearer token to its user. Expired sessions are
// deleted on discovery.
func (b *Backend) UserForToken(ctx context.Context, token string) (*auth.User, error) {
	var sess sessionRecord
	err := b.db.WithContext(ctx).First(&sess, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	if time.Now().After(sess.ExpiresAt) {
		_ = b.db.WithContext(ctx).Delete(&sessionRecord{}, "token = ?", token).Error
		return nil, ErrNoSession
	}

	var rec userRecord
	if err := b.db.WithContext(ctx).First(&rec, "id = ?", sess.UserID).Error; err != nil {
		return nil, ErrNoSession
	}
	user := toUser(rec)
	return &user, nil
}

// DeleteToken ends the session behind a bearer token.
func (b *Backend) DeleteToken(ctx context.Context, token string) error {
	return b.db.WithContext(ctx).Delete(&sessionRecord{}, "token = ?", token).Error
}

func (b *Backend) openSession(ctx context.Context, userID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	sess := sessionRecord{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(sessionTTL),
		CreatedAt: now,
	}
	if err := b.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return "", err
	}
	return token, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

func toUser(rec userRecord) auth.User {
	return auth.User{
		ID:        rec.ID,
		Email:     rec.Email,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// --- favorites.Repository ---

var _ favorites.Repository = (*Backend)(nil)

// List returns the user's favorites ordered by creation time descending.
func (b *Backend) List(ctx context.Context, userID string) ([]favorites.Favorite, error) {
	var recs []favoriteRecord
	err := b.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]favorites.Favorite, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toFavorite(rec))
	}
	return out, nil
}

// Create persists a favorite with a server-assigned id.
func (b *Backend) Create(ctx context.Context, userID string, city favorites.CityInput) (*favorites.Favorite, error) {
	rec := favoriteRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		CityName:  city.CityName,
		Lat:       city.Lat,
		Lon:       city.Lon,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}
	fav := toFavorite(rec)
	return &fav, nil
}

// Delete removes a favorite by id.
func (b *Backend) Delete(ctx context.Context, id string) error {
	return b.db.WithContext(ctx).Delete(&favoriteRecord{}, "id = ?", id).Error
}

// WarmCoords returns the distinct coordinate pairs across all users'
// favorites, for the forecast warm job.
func (b *Backend) WarmCoords(ctx context.Context) ([][2]float64, error) {
	var recs []favoriteRecord
	if err := b.db.WithContext(ctx).Distinct("lat", "lon").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([][2]float64, 0, len(recs))
	for _, rec := range recs {
		out = append(out, [2]float64{rec.Lat, rec.Lon})
	}
	return out, nil
}

// Exists reports whether the user already favorited the city name.
func (b *Backend) Exists(ctx context.Context, userID, cityName string) (bool, error) {
	var count int64
	err := b.db.WithContext(ctx).Model(&favoriteRecord{}).
		Where("user_id = ? AND city_name = ?", userID, cityName).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func toFavorite(rec favoriteRecord) favorites.Favorite {
	return favorites.Favorite{
		ID:        rec.ID,
		UserID:    rec.UserID,
		CityName:  rec.CityName,
		Lat:       rec.Lat,
		Lon:       rec.Lon,
		CreatedAt: rec.CreatedAt,
	}
}
