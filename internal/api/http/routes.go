package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"glassweather/internal/apperr"
	"glassweather/internal/auth"
	"glassweather/internal/backend"
	"glassweather/internal/favorites"
	"glassweather/internal/store"
	"glassweather/internal/weather"
	"glassweather/internal/weather/openweather"
)

var validate = validator.New()

// WeatherClient is the upstream weather surface the handlers call.
type WeatherClient interface {
	CurrentWeather(ctx context.Context, lat, lon float64) (*weather.Snapshot, *apperr.Error)
	Forecast(ctx context.Context, lat, lon float64) (*weather.ForecastBundle, *apperr.Error)
	SearchCities(ctx context.Context, query string, limit int) ([]weather.City, *apperr.Error)
	CompleteWeather(ctx context.Context, lat, lon float64, opts openweather.OneCallOptions) (*weather.CompleteWeather, *apperr.Error)
}

// Identity is the token surface of the bundled backend.
type Identity interface {
	SignUpToken(ctx context.Context, email, password string) (*auth.User, string, error)
	SignInToken(ctx context.Context, email, password string) (*auth.User, string, error)
	UserForToken(ctx context.Context, token string) (*auth.User, error)
	DeleteToken(ctx context.Context, token string) error
}

// Deps carries everything the HTTP handlers need.
type Deps struct {
	Client    WeatherClient
	Cache     *store.ForecastCache
	Identity  Identity
	Favorites favorites.Repository
}

type server struct {
	deps Deps

	mu       sync.Mutex
	services map[string]*favorites.Service
}

// favoritesFor returns the per-user favorites service, creating it on
// first use so optimistic state survives across requests.
func (s *server) favoritesFor(userID string) *favorites.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[userID]
	if !ok {
		svc = favorites.NewService(s.deps.Favorites, userID)
		s.services[userID] = svc
	}
	return svc
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	s := &server{
		deps:     deps,
		services: make(map[string]*favorites.Service),
	}

	v1 := app.Group("/api/v1")

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		coords, err := parseCoordQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshot, appErr := deps.Client.CurrentWeather(c.Context(), coords.Lat, coords.Lon)
		if appErr != nil {
			return weatherError(c, appErr)
		}
		return c.JSON(snapshot)
	})

	v1.Get("/weather/forecast", func(c *fiber.Ctx) error {
		coords, err := parseCoordQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		force := c.Query("force") == "true"

		if !force {
			if bundle, ok := deps.Cache.Get(coords.Lat, coords.Lon); ok {
				return c.JSON(bundle)
			}
		}

		bundle, appErr := deps.Client.Forecast(c.Context(), coords.Lat, coords.Lon)
		if appErr != nil {
			return weatherError(c, appErr)
		}
		deps.Cache.Put(coords.Lat, coords.Lon, bundle)
		return c.JSON(bundle)
	})

	v1.Get("/weather/onecall", func(c *fiber.Ctx) error {
		coords, err := parseCoordQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		opts := openweather.OneCallOptions{Units: c.Query("units")}
		if exclude := c.Query("exclude"); exclude != "" {
			opts.Exclude = strings.Split(exclude, ",")
		}

		complete, appErr := deps.Client.CompleteWeather(c.Context(), coords.Lat, coords.Lon, opts)
		if appErr != nil {
			return weatherError(c, appErr)
		}
		return c.JSON(complete)
	})

	v1.Get("/weather/search", func(c *fiber.Ctx) error {
		limit := 5
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 10 {
				return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 10")
			}
			limit = n
		}

		cities, appErr := deps.Client.SearchCities(c.Context(), c.Query("q"), limit)
		if appErr != nil {
			return weatherError(c, appErr)
		}
		return c.JSON(fiber.Map{"results": cities})
	})

	v1.Post("/auth/signup", func(c *fiber.Ctx) error {
		var req credentialsBody
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		user, token, err := deps.Identity.SignUpToken(c.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, backend.ErrEmailTaken) {
				return fiber.NewError(fiber.StatusConflict, "email already registered")
			}
			var appErr *apperr.Error
			if errors.As(err, &appErr) {
				return fiber.NewError(fiber.StatusBadRequest, appErr.Message)
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to sign up")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user, "token": token})
	})

	v1.Post("/auth/signin", func(c *fiber.Ctx) error {
		var req credentialsBody
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		user, token, err := deps.Identity.SignInToken(c.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, backend.ErrInvalidCredentials) {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to sign in")
		}
		return c.JSON(fiber.Map{"user": user, "token": token})
	})

	authed := v1.Group("", s.requireUser)

	authed.Post("/auth/signout", func(c *fiber.Ctx) error {
		if err := deps.Identity.DeleteToken(c.Context(), bearerToken(c)); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to sign out")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	authed.Get("/auth/me", func(c *fiber.Ctx) error {
		return c.JSON(currentUser(c))
	})

	authed.Get("/favorites", func(c *fiber.Ctx) error {
		svc := s.favoritesFor(currentUser(c).ID)
		svc.Refresh(c.Context())
		state := svc.State()
		if state.Err != nil {
			return weatherError(c, state.Err)
		}
		return c.JSON(fiber.Map{"favorites": state.Favorites})
	})

	authed.Post("/favorites", func(c *fiber.Ctx) error {
		var city favorites.CityInput
		if err := c.BodyParser(&city); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(city); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		svc := s.favoritesFor(currentUser(c).ID)
		if !svc.Add(c.Context(), city) {
			state := svc.State()
			svc.ClearError()
			return weatherError(c, state.Err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"favorites": svc.State().Favorites})
	})

	authed.Delete("/favorites/:id", func(c *fiber.Ctx) error {
		svc := s.favoritesFor(currentUser(c).ID)
		if !svc.Remove(c.Context(), c.Params("id")) {
			state := svc.State()
			svc.ClearError()
			return weatherError(c, state.Err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	authed.Get("/favorites/check", func(c *fiber.Ctx) error {
		city := c.Query("city")
		if city == "" {
			return fiber.NewError(fiber.StatusBadRequest, "city query parameter is required")
		}
		svc := s.favoritesFor(currentUser(c).ID)
		return c.JSON(fiber.Map{"is_favorite": svc.IsFavorite(c.Context(), city)})
	})
}

// requireUser resolves the bearer token and stashes the user on the
// request context.
func (s *server) requireUser(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}

	user, err := s.deps.Identity.UserForToken(c.Context(), token)
	if err != nil {
		if errors.Is(err, backend.ErrNoSession) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired session")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to resolve session")
	}

	c.Locals("user", user)
	return c.Next()
}

func currentUser(c *fiber.Ctx) *auth.User {
	return c.Locals("user").(*auth.User)
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

// weatherError maps a typed domain error onto an HTTP response carrying
// both the message and the domain code.
func weatherError(c *fiber.Ctx, appErr *apperr.Error) error {
	if appErr == nil {
		return fiber.NewError(fiber.StatusInternalServerError, "unknown error")
	}
	return c.Status(apperr.Status(appErr)).JSON(fiber.Map{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}

// credentialsBody is the request shape shared by sign-up and sign-in.
type credentialsBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (b *credentialsBody) bind(c *fiber.Ctx) error {
	if err := c.BodyParser(b); err != nil {
		return errors.New("invalid request body")
	}
	return validate.Struct(b)
}

// coordQuery holds query parameters identifying a coordinate pair.
type coordQuery struct {
	Lat float64 `validate:"min=-90,max=90"`
	Lon float64 `validate:"min=-180,max=180"`
}

func parseCoordQuery(c *fiber.Ctx) (coordQuery, error) {
	var q coordQuery

	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr == "" || lonStr == "" {
		return q, errors.New("lat and lon query parameters are required")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return q, errors.New("invalid lat")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return q, errors.New("invalid lon")
	}

	q.Lat = lat
	q.Lon = lon
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}
