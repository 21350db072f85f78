package domain

// Instrument holds broker-resolved metadata for a tradable symbol.
// It is immutable for the lifetime of a session and refreshed lazily
// when a lookup fails.
type Instrument struct {
	Symbol          string
	Digits          int
	Point           float64 // smallest quoted price unit
	TickSize        float64 // smallest tradable price increment
	StopLevelPoints float64 // broker minimum SL/TP distance, in points (0 = none)
	VolumeMin       float64
	VolumeStep      float64
	VolumeMax       float64
	ContractSize    float64
	TickValue       float64 // account-currency value of one tick for one lot
}

// Timeframe identifies a bar interval, e.g. "M15", "H1".
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
)
