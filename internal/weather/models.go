package weather

// Location identifies the place a reading belongs to.
type Location struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Temperature holds display-rounded temperatures in the requested units.
type Temperature struct {
	Current   int `json:"current"`
	FeelsLike int `json:"feelsLike"`
	Min       int `json:"min"`
	Max       int `json:"max"`
}

// Summary is the provider's condition triple for a reading.
type Summary struct {
	Condition   string `json:"condition"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon"`
}

// Details carries the secondary current-conditions fields.
type Details struct {
	Humidity      int     `json:"humidity"`
	Pressure      int     `json:"pressure"`
	Visibility    int     `json:"visibility"`
	WindSpeed     float64 `json:"windSpeed"`
	WindDirection int     `json:"windDirection"`
	Sunrise       int64   `json:"sunrise"`
	Sunset        int64   `json:"sunset"`
}

// Snapshot is the normalized current-conditions record. It is constructed
// fresh on every successful fetch and never mutated afterwards.
type Snapshot struct {
	Location    Location    `json:"location"`
	Temperature Temperature `json:"temperature"`
	Weather     Summary     `json:"weather"`
	Details     Details     `json:"details"`
	Timestamp   int64       `json:"timestamp"` // epoch seconds
}

// HourlySlice is a single 3-hour forecast slice kept as part of a day's
// hourly breakdown.
type HourlySlice struct {
	Time          string  `json:"time"`
	Temperature   int     `json:"temperature"`
	Weather       Summary `json:"weather"`
	Precipitation int     `json:"precipitation"` // percent, 0-100
}

// DayDetails aggregates a day's slices: humidity and pressure are rounded
// means, wind speed is a mean rounded to one decimal, precipitation is the
// mean probability scaled to a 0-100 percentage.
type DayDetails struct {
	Humidity      int     `json:"humidity"`
	Pressure      int     `json:"pressure"`
	WindSpeed     float64 `json:"windSpeed"`
	Precipitation int     `json:"precipitation"`
}

// DayTemps is a day's min/max across its slices.
type DayTemps struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ForecastDay is one calendar date's aggregate plus the first 8 slices of
// that date as its hourly breakdown.
type ForecastDay struct {
	Date        string        `json:"date"`
	Temperature DayTemps      `json:"temperature"`
	Weather     Summary       `json:"weather"`
	Details     DayDetails    `json:"details"`
	Hourly      []HourlySlice `json:"hourly"`
}

// ForecastBundle is the location plus its date-ordered per-day forecast.
type ForecastBundle struct {
	Location Location      `json:"location"`
	Days     []ForecastDay `json:"forecast"`
}

// City is a geocoding search result.
type City struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// OneCallLocation describes the coordinate and timezone block of a
// one-call response.
type OneCallLocation struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Timezone       string  `json:"timezone"`
	TimezoneOffset int     `json:"timezoneOffset"`
}

// OneCallCurrent is the current block of a one-call response.
type OneCallCurrent struct {
	Timestamp     int64   `json:"timestamp"`
	Temperature   int     `json:"temperature"`
	FeelsLike     int     `json:"feelsLike"`
	Humidity      int     `json:"humidity"`
	Pressure      int     `json:"pressure"`
	Visibility    int     `json:"visibility"`
	UVIndex       float64 `json:"uvIndex"`
	WindSpeed     float64 `json:"windSpeed"`
	WindDirection int     `json:"windDirection"`
	Sunrise       int64   `json:"sunrise"`
	Sunset        int64   `json:"sunset"`
	Condition     string  `json:"condition"`
	Description   string  `json:"description"`
	Icon          string  `json:"icon"`
}

// OneCallHour is a single hourly entry; at most the first 24 are kept.
type OneCallHour struct {
	Timestamp   int64  `json:"timestamp"`
	Temperature int    `json:"temperature"`
	FeelsLike   int    `json:"feelsLike"`
	Humidity    int    `json:"humidity"`
	Pop         int    `json:"pop"` // percent, 0-100
	Condition   string `json:"condition"`
	Icon        string `json:"icon"`
}

// OneCallDayTemps holds the per-phase temperatures of a daily entry.
type OneCallDayTemps struct {
	Day   int `json:"day"`
	Min   int `json:"min"`
	Max   int `json:"max"`
	Night int `json:"night"`
	Eve   int `json:"eve"`
	Morn  int `json:"morn"`
}

// OneCallDayFeels holds the per-phase feels-like temperatures.
type OneCallDayFeels struct {
	Day   int `json:"day"`
	Night int `json:"night"`
	Eve   int `json:"eve"`
	Morn  int `json:"morn"`
}

// OneCallDay is a daily entry of a one-call response.
type OneCallDay struct {
	Timestamp     int64           `json:"timestamp"`
	Sunrise       int64           `json:"sunrise"`
	Sunset        int64           `json:"sunset"`
	Moonrise      int64           `json:"moonrise"`
	Moonset       int64           `json:"moonset"`
	MoonPhase     float64         `json:"moonPhase"`
	Summary       string          `json:"summary,omitempty"`
	Temperature   OneCallDayTemps `json:"temperature"`
	FeelsLike     OneCallDayFeels `json:"feelsLike"`
	Humidity      int             `json:"humidity"`
	Pressure      int             `json:"pressure"`
	WindSpeed     float64         `json:"windSpeed"`
	WindDirection int             `json:"windDirection"`
	Condition     string          `json:"condition"`
	Description   string          `json:"description"`
	Icon          string          `json:"icon"`
	Pop           int             `json:"pop"`
	UVIndex       float64         `json:"uvIndex"`
}

// Alert is a weather alert passed through from the provider unchanged.
type Alert struct {
	SenderName  string   `json:"sender_name"`
	Event       string   `json:"event"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// CompleteWeather is the richer one-call payload: current conditions plus
// hourly, daily and alert data.
type CompleteWeather struct {
	Location OneCallLocation `json:"location"`
	Current  OneCallCurrent  `json:"current"`
	Hourly   []OneCallHour   `json:"hourly,omitempty"`
	Daily    []OneCallDay    `json:"daily,omitempty"`
	Alerts   []Alert         `json:"alerts,omitempty"`
}
