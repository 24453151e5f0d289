package value

// Well known value names.
const (
	PresentValue      = "PresentValue"
	MarketPrice       = "MarketPrice"
	FXRate            = "FXRate"
	YieldCurve        = "YieldCurve"
	FairValue         = "FairValue"
	PositionFairValue = "PositionFairValue"
)

// Well known property names.
const (
	PropertyCurrency = "Currency"
	PropertyCurve    = "Curve"
	PropertyFunction = "Function"
)
