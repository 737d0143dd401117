// Package signal standardizes payloads shared between the ingestion, derivation, and delivery layers.
package signal

import "time"

// SizeClass buckets a round number against the configured threshold.
type SizeClass string

const (
	// Big covers numbers at or above the threshold.
	Big SizeClass = "BIG"
	// Small covers numbers below the threshold.
	Small SizeClass = "SMALL"
)

// Parity buckets a round number by divisibility by two.
type Parity string

const (
	// Even covers numbers with remainder zero.
	Even Parity = "EVEN"
	// Odd covers the rest.
	Odd Parity = "ODD"
)

// RoundResult is the canonical form of one upstream round event.
type RoundResult struct {
	Issue  string
	Number int // draw digit in [0,9]
	Raw    map[string]any
}

// Signal expresses the categorical call derived for one round. Immutable once produced.
type Signal struct {
	Issue      string
	Number     int
	Size       SizeClass
	Parity     Parity
	Confidence float64 // bounded to [0,1]
	ProducedAt time.Time
}
