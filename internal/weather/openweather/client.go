// Package openweather implements the OpenWeatherMap client: current
// conditions, 5-day/3-hour forecast with per-day aggregation, city
// geocoding and the one-call endpoint. Responses are decoded into typed
// DTOs at the boundary and normalized into the app-level shapes; transport
// and HTTP failures map to the typed error taxonomy.
package openweather

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"glassweather/internal/apperr"
	"glassweather/internal/weather"
)

const (
	defaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5"
	defaultGeoBaseURL     = "https://api.openweathermap.org/geo/1.0"
	defaultOneCallBaseURL = "https://api.openweathermap.org/data/3.0"

	defaultSearchLimit = 5
)

// Client issues requests against the OpenWeatherMap APIs.
type Client struct {
	apiKey         string
	weatherBaseURL string
	geoBaseURL     string
	oneCallBaseURL string
	httpCfg        HTTPClientConfig
	circuit        *gobreaker.CircuitBreaker
}

// New creates a Client. The http.Client should carry the outbound request
// timeout (10s in production wiring).
func New(client *http.Client, apiKey string) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		apiKey:         apiKey,
		weatherBaseURL: defaultWeatherBaseURL,
		geoBaseURL:     defaultGeoBaseURL,
		oneCallBaseURL: defaultOneCallBaseURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

// OneCallOptions tunes the one-call request.
type OneCallOptions struct {
	Exclude []string
	Units   string // standard, metric or imperial; metric when empty
	Lang    string
}

type currentWeatherDTO struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []conditionDTO `json:"weather"`
	Main    struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  int     `json:"pressure"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Visibility int `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Deg   int     `json:"deg"`
	} `json:"wind"`
	Dt  int64 `json:"dt"`
	Sys struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Name string `json:"name"`
}

type conditionDTO struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type forecastSliceDTO struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Weather []conditionDTO `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Pop float64 `json:"pop"`
}

type forecastDTO struct {
	List []forecastSliceDTO `json:"list"`
	City struct {
		Name  string `json:"name"`
		Coord struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"coord"`
		Country string `json:"country"`
	} `json:"city"`
}

type oneCallDTO struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Timezone       string  `json:"timezone"`
	TimezoneOffset int     `json:"timezone_offset"`
	Current        struct {
		Dt         int64          `json:"dt"`
		Sunrise    int64          `json:"sunrise"`
		Sunset     int64          `json:"sunset"`
		Temp       float64        `json:"temp"`
		FeelsLike  float64        `json:"feels_like"`
		Pressure   int            `json:"pressure"`
		Humidity   int            `json:"humidity"`
		UVI        float64        `json:"uvi"`
		Visibility int            `json:"visibility"`
		WindSpeed  float64        `json:"wind_speed"`
		WindDeg    int            `json:"wind_deg"`
		Weather    []conditionDTO `json:"weather"`
	} `json:"current"`
	Hourly []struct {
		Dt        int64          `json:"dt"`
		Temp      float64        `json:"temp"`
		FeelsLike float64        `json:"feels_like"`
		Humidity  int            `json:"humidity"`
		Pop       float64        `json:"pop"`
		Weather   []conditionDTO `json:"weather"`
	} `json:"hourly"`
	Daily []struct {
		Dt        int64   `json:"dt"`
		Sunrise   int64   `json:"sunrise"`
		Sunset    int64   `json:"sunset"`
		Moonrise  int64   `json:"moonrise"`
		Moonset   int64   `json:"moonset"`
		MoonPhase float64 `json:"moon_phase"`
		Summary   string  `json:"summary"`
		Temp      struct {
			Day   float64 `json:"day"`
			Min   float64 `json:"min"`
			Max   float64 `json:"max"`
			Night float64 `json:"night"`
			Eve   float64 `json:"eve"`
			Morn  float64 `json:"morn"`
		} `json:"temp"`
		FeelsLike struct {
			Day   float64 `json:"day"`
			Night float64 `json:"night"`
			Eve   float64 `json:"eve"`
			Morn  float64 `json:"morn"`
		} `json:"feels_like"`
		Pressure  int            `json:"pressure"`
		Humidity  int            `json:"humidity"`
		WindSpeed float64        `json:"wind_speed"`
		WindDeg   int            `json:"wind_deg"`
		Weather   []conditionDTO `json:"weather"`
		Pop       float64        `json:"pop"`
		UVI       float64        `json:"uvi"`
	} `json:"daily"`
	Alerts []weather.Alert `json:"alerts"`
}

// CurrentWeather fetches and normalizes current conditions for a coordinate.
func (c *Client) CurrentWeather(ctx context.Context, lat, lon float64) (*weather.Snapshot, *apperr.Error) {
	values := url.Values{}
	values.Set("lat", formatCoord(lat))
	values.Set("lon", formatCoord(lon))
	values.Set("appid", c.apiKey)
	values.Set("units", "metric")

	var dto currentWeatherDTO
	if appErr := c.getJSON(ctx, c.weatherBaseURL+"/weather", values, &dto); appErr != nil {
		return nil, appErr
	}

	if len(dto.Weather) == 0 {
		return nil, apperr.Malformed("missing weather condition")
	}

	snap := &weather.Snapshot{
		Location: weather.Location{
			Name:    dto.Name,
			Country: dto.Sys.Country,
			Lat:     dto.Coord.Lat,
			Lon:     dto.Coord.Lon,
		},
		Temperature: weather.Temperature{
			Current:   roundInt(dto.Main.Temp),
			FeelsLike: roundInt(dto.Main.FeelsLike),
			Min:       roundInt(dto.Main.TempMin),
			Max:       roundInt(dto.Main.TempMax),
		},
		Weather: weather.Summary{
			Condition:   dto.Weather[0].Main,
			Description: dto.Weather[0].Description,
			Icon:        dto.Weather[0].Icon,
		},
		Details: weather.Details{
			Humidity:      dto.Main.Humidity,
			Pressure:      dto.Main.Pressure,
			Visibility:    dto.Visibility,
			WindSpeed:     dto.Wind.Speed,
			WindDirection: dto.Wind.Deg,
			Sunrise:       dto.Sys.Sunrise,
			Sunset:        dto.Sys.Sunset,
		},
		Timestamp: dto.Dt,
	}
	return snap, nil
}

// Forecast fetches the 5-day/3-hour forecast and aggregates it into per-day
// entries: slices are grouped by local calendar date, min/max over temps,
// rounded means for humidity/pressure, mean wind speed to one decimal and
// mean precipitation probability as a 0-100 percentage. The first 8 slices
// of each date become the day's hourly breakdown.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*weather.ForecastBundle, *apperr.Error) {
	values := url.Values{}
	values.Set("lat", formatCoord(lat))
	values.Set("lon", formatCoord(lon))
	values.Set("appid", c.apiKey)
	values.Set("units", "metric")

	var dto forecastDTO
	if appErr := c.getJSON(ctx, c.weatherBaseURL+"/forecast", values, &dto); appErr != nil {
		return nil, appErr
	}

	days, appErr := aggregateSlices(dto.List)
	if appErr != nil {
		return nil, appErr
	}

	return &weather.ForecastBundle{
		Location: weather.Location{
			Name:    dto.City.Name,
			Country: dto.City.Country,
			Lat:     dto.City.Coord.Lat,
			Lon:     dto.City.Coord.Lon,
		},
		Days: days,
	}, nil
}

// aggregateSlices groups 3-hour slices by their local calendar date and
// computes each day's aggregate, preserving first-appearance date order.
func aggregateSlices(list []forecastSliceDTO) ([]weather.ForecastDay, *apperr.Error) {
	grouped := make(map[string][]forecastSliceDTO)
	var order []string

	for _, item := range list {
		if len(item.Weather) == 0 {
			return nil, apperr.Malformed("forecast slice missing weather condition")
		}
		date := time.Unix(item.Dt, 0).Format("Mon Jan 02 2006")
		if _, ok := grouped[date]; !ok {
			order = append(order, date)
		}
		grouped[date] = append(grouped[date], item)
	}

	days := make([]weather.ForecastDay, 0, len(order))
	for _, date := range order {
		items := grouped[date]

		var sumHumidity, sumPressure, sumWind, sumPop float64
		minTemp := items[0].Main.Temp
		maxTemp := items[0].Main.Temp
		for _, item := range items {
			if item.Main.Temp < minTemp {
				minTemp = item.Main.Temp
			}
			if item.Main.Temp > maxTemp {
				maxTemp = item.Main.Temp
			}
			sumHumidity += item.Main.Humidity
			sumPressure += item.Main.Pressure
			sumWind += item.Wind.Speed
			sumPop += item.Pop
		}
		n := float64(len(items))

		hourlyItems := items
		if len(hourlyItems) > 8 {
			hourlyItems = hourlyItems[:8]
		}
		hourly := make([]weather.HourlySlice, 0, len(hourlyItems))
		for _, item := range hourlyItems {
			hourly = append(hourly, weather.HourlySlice{
				Time:        time.Unix(item.Dt, 0).Format("03:04 PM"),
				Temperature: roundInt(item.Main.Temp),
				Weather: weather.Summary{
					Condition: item.Weather[0].Main,
					Icon:      item.Weather[0].Icon,
				},
				Precipitation: roundInt(item.Pop * 100),
			})
		}

		days = append(days, weather.ForecastDay{
			Date: date,
			Temperature: weather.DayTemps{
				Min: roundInt(minTemp),
				Max: roundInt(maxTemp),
			},
			Weather: weather.Summary{
				Condition:   items[0].Weather[0].Main,
				Description: items[0].Weather[0].Description,
				Icon:        items[0].Weather[0].Icon,
			},
			Details: weather.DayDetails{
				Humidity:      roundInt(sumHumidity / n),
				Pressure:      roundInt(sumPressure / n),
				WindSpeed:     math.Round(sumWind/n*10) / 10,
				Precipitation: roundInt(sumPop / n * 100),
			},
			Hourly: hourly,
		})
	}

	return days, nil
}

// SearchCities geocodes a free-text query. A blank or whitespace-only query
// returns an empty result without issuing a network call.
func (c *Client) SearchCities(ctx context.Context, query string, limit int) ([]weather.City, *apperr.Error) {
	if strings.TrimSpace(query) == "" {
		return []weather.City{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("limit", strconv.Itoa(limit))
	values.Set("appid", c.apiKey)

	var cities []weather.City
	if appErr := c.getJSON(ctx, c.geoBaseURL+"/direct", values, &cities); appErr != nil {
		return nil, appErr
	}
	if cities == nil {
		cities = []weather.City{}
	}
	return cities, nil
}

// CompleteWeather fetches the one-call endpoint: current conditions plus
// hourly (capped at 24 entries), daily and alerts.
func (c *Client) CompleteWeather(ctx context.Context, lat, lon float64, opts OneCallOptions) (*weather.CompleteWeather, *apperr.Error) {
	units := opts.Units
	if units == "" {
		units = "metric"
	}

	values := url.Values{}
	values.Set("lat", formatCoord(lat))
	values.Set("lon", formatCoord(lon))
	values.Set("appid", c.apiKey)
	values.Set("units", units)
	if len(opts.Exclude) > 0 {
		values.Set("exclude", strings.Join(opts.Exclude, ","))
	}
	if opts.Lang != "" {
		values.Set("lang", opts.Lang)
	}

	var dto oneCallDTO
	if appErr := c.getJSON(ctx, c.oneCallBaseURL+"/onecall", values, &dto); appErr != nil {
		return nil, appErr
	}

	if len(dto.Current.Weather) == 0 {
		return nil, apperr.Malformed("missing current weather condition")
	}

	out := &weather.CompleteWeather{
		Location: weather.OneCallLocation{
			Lat:            dto.Lat,
			Lon:            dto.Lon,
			Timezone:       dto.Timezone,
			TimezoneOffset: dto.TimezoneOffset,
		},
		Current: weather.OneCallCurrent{
			Timestamp:     dto.Current.Dt,
			Temperature:   roundInt(dto.Current.Temp),
			FeelsLike:     roundInt(dto.Current.FeelsLike),
			Humidity:      dto.Current.Humidity,
			Pressure:      dto.Current.Pressure,
			Visibility:    dto.Current.Visibility,
			UVIndex:       dto.Current.UVI,
			WindSpeed:     dto.Current.WindSpeed,
			WindDirection: dto.Current.WindDeg,
			Sunrise:       dto.Current.Sunrise,
			Sunset:        dto.Current.Sunset,
			Condition:     dto.Current.Weather[0].Main,
			Description:   dto.Current.Weather[0].Description,
			Icon:          dto.Current.Weather[0].Icon,
		},
		Alerts: dto.Alerts,
	}

	hourly := dto.Hourly
	if len(hourly) > 24 {
		hourly = hourly[:24]
	}
	for _, h := range hourly {
		if len(h.Weather) == 0 {
			return nil, apperr.Malformed("hourly entry missing weather condition")
		}
		out.Hourly = append(out.Hourly, weather.OneCallHour{
			Timestamp:   h.Dt,
			Temperature: roundInt(h.Temp),
			FeelsLike:   roundInt(h.FeelsLike),
			Humidity:    h.Humidity,
			Pop:         roundInt(h.Pop * 100),
			Condition:   h.Weather[0].Main,
			Icon:        h.Weather[0].Icon,
		})
	}

	for _, d := range dto.Daily {
		if len(d.Weather) == 0 {
			return nil, apperr.Malformed("daily entry missing weather condition")
		}
		out.Daily = append(out.Daily, weather.OneCallDay{
			Timestamp: d.Dt,
			Sunrise:   d.Sunrise,
			Sunset:    d.Sunset,
			Moonrise:  d.Moonrise,
			Moonset:   d.Moonset,
			MoonPhase: d.MoonPhase,
			Summary:   d.Summary,
			Temperature: weather.OneCallDayTemps{
				Day:   roundInt(d.Temp.Day),
				Min:   roundInt(d.Temp.Min),
				Max:   roundInt(d.Temp.Max),
				Night: roundInt(d.Temp.Night),
				Eve:   roundInt(d.Temp.Eve),
				Morn:  roundInt(d.Temp.Morn),
			},
			FeelsLike: weather.OneCallDayFeels{
				Day:   roundInt(d.FeelsLike.Day),
				Night: roundInt(d.FeelsLike.Night),
				Eve:   roundInt(d.FeelsLike.Eve),
				Morn:  roundInt(d.FeelsLike.Morn),
			},
			Humidity:      d.Humidity,
			Pressure:      d.Pressure,
			WindSpeed:     d.WindSpeed,
			WindDirection: d.WindDeg,
			Condition:     d.Weather[0].Main,
			Description:   d.Weather[0].Description,
			Icon:          d.Weather[0].Icon,
			Pop:           roundInt(d.Pop * 100),
			UVIndex:       d.UVI,
		})
	}

	return out, nil
}

// getJSON executes a resilient GET and decodes the body into out. Non-2xx
// statuses map via the error taxonomy; a decode failure reports the payload
// as malformed.
func (c *Client) getJSON(ctx context.Context, baseURL string, values url.Values, out any) *apperr.Error {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.FromStatus(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Malformed(err.Error())
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
