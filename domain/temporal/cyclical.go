package temporal

import (
	"math"

	"offerctr/domain/core"
)

// CyclicalFeatures encodes a timestamp's periodic components as sin/cos
// pairs, so midnight sits next to 23:00 and December next to January.
type CyclicalFeatures struct {
	HourSin    float64
	HourCos    float64
	WeekdaySin float64
	WeekdayCos float64
	MonthSin   float64
	MonthCos   float64
}

// Cyclical computes the cyclical encoding of a timestamp. Pure function of
// the timestamp; no entity state involved.
func Cyclical(ts core.Timestamp) CyclicalFeatures {
	t := ts.Time()

	hour := float64(t.Hour()) + float64(t.Minute())/60
	weekday := float64(t.Weekday())
	month := float64(t.Month() - 1)

	return CyclicalFeatures{
		HourSin:    math.Sin(2 * math.Pi * hour / 24),
		HourCos:    math.Cos(2 * math.Pi * hour / 24),
		WeekdaySin: math.Sin(2 * math.Pi * weekday / 7),
		WeekdayCos: math.Cos(2 * math.Pi * weekday / 7),
		MonthSin:   math.Sin(2 * math.Pi * month / 12),
		MonthCos:   math.Cos(2 * math.Pi * month / 12),
	}
}
