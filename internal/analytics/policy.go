// Package analytics defines the read-only SQL views computed over the
// normalized cricket tables, the registry operators pick queries from, and a
// runner that returns view rows as generic maps.
package analytics

import "strconv"

// Policy holds the tunable constants baked into the composite-rank and
// quarterly-trend views. The values are scoring choices, not facts about the
// game; DefaultPolicy reproduces the numbers the dashboard has always shown
// and any other Policy can replace it when views are (re)created.
type Policy struct {
	// Batting points: runs*RunWeight + average*BatAvgWeight + SR*StrikeRateWeight.
	RunWeight        float64
	BatAvgWeight     float64
	StrikeRateWeight float64

	// Bowling points: wickets*WicketWeight
	//   + (BowlAvgBaseline - average)*BowlAvgWeight
	//   + (EconomyBaseline - economy)*EconomyWeight.
	WicketWeight    float64
	BowlAvgBaseline float64
	BowlAvgWeight   float64
	EconomyBaseline float64
	EconomyWeight   float64

	// Fielding points: (catches + stumpings)*FieldingWeight.
	FieldingWeight float64

	// A quarter is "Improving" when the moving-average delta exceeds
	// TrendImproving and "Declining" when it is below TrendDeclining.
	TrendImproving float64
	TrendDeclining float64
	// Quarters with fewer innings than this are left out of the trend view.
	TrendMinInnings int
}

// DefaultPolicy returns the stock weights and thresholds.
func DefaultPolicy() Policy {
	return Policy{
		RunWeight:        0.01,
		BatAvgWeight:     0.5,
		StrikeRateWeight: 0.3,
		WicketWeight:     2,
		BowlAvgBaseline:  50,
		BowlAvgWeight:    0.5,
		EconomyBaseline:  6,
		EconomyWeight:    2,
		FieldingWeight:   1,
		TrendImproving:   1,
		TrendDeclining:   -1,
		TrendMinInnings:  3,
	}
}

// lit renders a float as a SQL numeric literal. View bodies cannot take bind
// parameters, so policy values are inlined.
func lit(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if f < 0 {
		return "(" + s + ")"
	}
	return s
}
