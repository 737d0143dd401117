package strategy

import (
	"testing"

	"github.com/forid0k/signalx/internal/signal"
)

func TestDeriveSizeAndParity(t *testing.T) {
	d := NewDeriver(5, Margin)

	cases := map[int]struct {
		size   signal.SizeClass
		parity signal.Parity
	}{
		0: {signal.Small, signal.Even},
		1: {signal.Small, signal.Odd},
		2: {signal.Small, signal.Even},
		3: {signal.Small, signal.Odd},
		4: {signal.Small, signal.Even},
		5: {signal.Big, signal.Odd},
		6: {signal.Big, signal.Even},
		7: {signal.Big, signal.Odd},
		8: {signal.Big, signal.Even},
		9: {signal.Big, signal.Odd},
	}
	for number, want := range cases {
		sig := d.Derive(signal.RoundResult{Issue: "r", Number: number})
		if sig.Size != want.size {
			t.Fatalf("number %d: expected size %s, got %s", number, want.size, sig.Size)
		}
		if sig.Parity != want.parity {
			t.Fatalf("number %d: expected parity %s, got %s", number, want.parity, sig.Parity)
		}
		if sig.Confidence < 0 || sig.Confidence > 1 {
			t.Fatalf("number %d: confidence %f out of bounds", number, sig.Confidence)
		}
		if sig.ProducedAt.IsZero() {
			t.Fatalf("expected ProducedAt to be set")
		}
	}
}

func TestDeriveDeterministic(t *testing.T) {
	d := NewDeriver(5, Stepped)
	res := signal.RoundResult{Issue: "20240101001", Number: 7}

	a := d.Derive(res)
	b := d.Derive(res)
	if a.Issue != b.Issue || a.Number != b.Number || a.Size != b.Size || a.Parity != b.Parity || a.Confidence != b.Confidence {
		t.Fatalf("expected identical derivations, got %+v and %+v", a, b)
	}
	if a.Issue != "20240101001" || a.Number != 7 || a.Size != signal.Big || a.Parity != signal.Odd {
		t.Fatalf("unexpected derivation: %+v", a)
	}
}

func TestNewDeriverDefaultsThreshold(t *testing.T) {
	d := NewDeriver(0, nil)
	if d.Threshold() != DefaultThreshold {
		t.Fatalf("expected default threshold %d, got %d", DefaultThreshold, d.Threshold())
	}
	if got := d.Derive(signal.RoundResult{Number: 5}).Size; got != signal.Big {
		t.Fatalf("expected 5 to classify BIG at default threshold, got %s", got)
	}

	d = NewDeriver(12, nil)
	if d.Threshold() != DefaultThreshold {
		t.Fatalf("expected out-of-range threshold to fall back, got %d", d.Threshold())
	}
}
