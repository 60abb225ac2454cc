package domain

// FilterSettings bundles the confirmation-filter thresholds. Either the
// global default set or an instrument-category override is resolved once at
// startup and treated as immutable for the run; the adaptive controller
// toggles whether filters are applied, never their thresholds.
type FilterSettings struct {
	BreakoutVolumeMaxRatio float64 // Breakout volume must be at or below this multiple of the average
	ReversalVolumeMinRatio float64 // Reversal volume must be at or above this multiple of the average
	DivergenceLookback     int     // Closed bars scanned for a divergence swing point
	RequireBothIndicators  bool    // AND both oscillator divergences, or accept either
}
