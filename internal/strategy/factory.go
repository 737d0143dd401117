package strategy

import "strings"

// Margin scores by the number's distance from the size boundary, normalized
// per side: 0.5 exactly at the boundary, 1.0 at the extremes 0 and 9.
func Margin(number, threshold int) float64 {
	if number >= threshold {
		span := 9 - threshold
		if span == 0 {
			return 1
		}
		return 0.5 + 0.5*float64(number-threshold)/float64(span)
	}
	span := threshold - 1
	if span == 0 {
		return 1
	}
	return 0.5 + 0.5*float64(threshold-1-number)/float64(span)
}

// Stepped scores with fixed plateaus: 0.60 base, 0.55 for the two numbers
// adjacent to the boundary, 0.65 at the extremes.
func Stepped(number, threshold int) float64 {
	switch {
	case number == 0 || number == 9:
		return 0.65
	case number == threshold || number == threshold-1:
		return 0.55
	default:
		return 0.60
	}
}

// Build returns a deriver using the confidence policy matching the configured
// name, falling back to margin scoring.
func Build(policy string, threshold int) *Deriver {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "stepped":
		return NewDeriver(threshold, Stepped)
	case "", "margin":
		return NewDeriver(threshold, Margin)
	default:
		return NewDeriver(threshold, Margin)
	}
}
