// Package strategy derives the categorical call for a round: BIG/SMALL
// against a configured threshold, EVEN/ODD by parity, and a bounded
// confidence score from a fixed policy.
package strategy

import (
	"time"

	"github.com/forid0k/signalx/internal/signal"
)

// DefaultThreshold splits the digit space [0,9] at its midpoint.
const DefaultThreshold = 5

// ConfidenceFunc scores a number against the threshold, bounded to [0,1].
type ConfidenceFunc func(number, threshold int) float64

// Deriver maps round results onto signals. Pure aside from the production timestamp.
type Deriver struct {
	threshold  int
	confidence ConfidenceFunc
}

// NewDeriver builds a deriver with the supplied threshold and confidence
// policy. Thresholds outside [1,9] fall back to the default so both size
// classes stay reachable.
func NewDeriver(threshold int, confidence ConfidenceFunc) *Deriver {
	if threshold < 1 || threshold > 9 {
		threshold = DefaultThreshold
	}
	if confidence == nil {
		confidence = Margin
	}
	return &Deriver{threshold: threshold, confidence: confidence}
}

// Threshold returns the active size boundary.
func (d *Deriver) Threshold() int { return d.threshold }

// Derive produces the signal for one round result.
func (d *Deriver) Derive(res signal.RoundResult) signal.Signal {
	size := signal.Small
	if res.Number >= d.threshold {
		size = signal.Big
	}
	parity := signal.Odd
	if res.Number%2 == 0 {
		parity = signal.Even
	}
	return signal.Signal{
		Issue:      res.Issue,
		Number:     res.Number,
		Size:       size,
		Parity:     parity,
		Confidence: d.confidence(res.Number, d.threshold),
		ProducedAt: time.Now().UTC(),
	}
}
