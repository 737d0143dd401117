// Package interpret extracts canonical round results from loosely shaped
// upstream payloads. Field names drift between sources, so extraction walks
// ordered candidate tables: the first number field that yields a valid value
// wins, and the issue is resolved from the record that number matched in,
// falling back outward through enclosing envelopes. Numbers normalize under
// one documented rule: a value in [0,9] passes through, a two-digit game code
// in [10,99] contributes its final digit (unless the rule is disabled), and
// everything else is out of range.
package interpret

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/forid0k/signalx/internal/signal"
)

// Reason classifies why a payload was rejected.
type Reason string

const (
	// MissingIssue means no candidate field produced a round identifier.
	MissingIssue Reason = "missing_issue"
	// MissingNumber means no candidate field produced a numeric result.
	MissingNumber Reason = "missing_number"
	// OutOfRange means a numeric result was found but none survived normalization.
	OutOfRange Reason = "out_of_range"
)

// ParseError reports a rejected payload together with the failing condition.
type ParseError struct {
	Reason Reason
}

func (e *ParseError) Error() string { return "interpret: " + string(e.Reason) }

// Rules orders the candidate field paths consulted while interpreting a payload.
// Number fields may use dotted paths to reach nested objects. The issue is
// taken from the record the number matched in; enclosing envelopes are only
// consulted when that record carries no issue field.
type Rules struct {
	IssueFields  []string
	NumberFields []string
	WrapperKeys  []string
	LastDigit    bool
}

// DefaultRules covers the field-name variants observed across round-result sources.
func DefaultRules() Rules {
	return Rules{
		IssueFields:  []string{"issue", "issueNumber", "expect", "period"},
		NumberFields: []string{"number", "result", "openCode", "lucky", "lottery.number", "data.number"},
		WrapperKeys:  []string{"list", "rows", "data", "resultList"},
		LastDigit:    true,
	}
}

// maxDepth bounds envelope unwrapping so hostile nesting cannot recurse forever.
const maxDepth = 6

var (
	trailingDigits = regexp.MustCompile(`(\d{1,2})\s*$`)
	codeCeiling    = decimal.NewFromInt(100)
)

// Interpreter applies one rule table to raw messages. It keeps no state and
// is safe for concurrent use; identical input always yields identical output.
type Interpreter struct {
	rules Rules
}

// New builds an interpreter over the supplied rule table, filling empty
// sections from the defaults.
func New(rules Rules) *Interpreter {
	def := DefaultRules()
	if len(rules.IssueFields) == 0 {
		rules.IssueFields = def.IssueFields
	}
	if len(rules.NumberFields) == 0 {
		rules.NumberFields = def.NumberFields
	}
	if len(rules.WrapperKeys) == 0 {
		rules.WrapperKeys = def.WrapperKeys
	}
	return &Interpreter{rules: rules}
}

// Parse resolves one raw message into a round result, or a *ParseError when
// the payload carries no usable issue or number.
func (in *Interpreter) Parse(raw []byte) (signal.RoundResult, error) {
	root, err := decodeAny(stripFramePrefix(bytes.TrimSpace(raw)))
	if err != nil {
		return signal.RoundResult{}, &ParseError{Reason: MissingNumber}
	}

	got, sawNumeric, found := in.searchRound(root, 0)
	if !found {
		if sawNumeric {
			return signal.RoundResult{}, &ParseError{Reason: OutOfRange}
		}
		return signal.RoundResult{}, &ParseError{Reason: MissingNumber}
	}
	if !got.hasIssue {
		return signal.RoundResult{}, &ParseError{Reason: MissingIssue}
	}

	return signal.RoundResult{Issue: got.issue, Number: got.number, Raw: in.rootMap(root)}, nil
}

// Items splits an enveloped history response into individual round payloads,
// preserving the source order. A bare object counts as a single round.
func (in *Interpreter) Items(raw []byte) ([][]byte, error) {
	root, err := decodeAny(stripFramePrefix(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode history payload: %w", err)
	}
	list, ok := in.findList(root, 0)
	if !ok {
		return nil, errors.New("no round items found")
	}
	items := make([][]byte, 0, len(list))
	for _, item := range list {
		encoded, err := json.Marshal(item)
		if err != nil {
			continue
		}
		items = append(items, encoded)
	}
	return items, nil
}

// match pairs an accepted number with the issue of the record it came from.
type match struct {
	number   int
	issue    string
	hasIssue bool
}

func (in *Interpreter) searchRound(v any, depth int) (match, bool, bool) {
	if depth > maxDepth {
		return match{}, false, false
	}
	m, ok := in.normalize(v, depth).(map[string]any)
	if !ok {
		return match{}, false, false
	}
	saw := false
	for _, path := range in.rules.NumberFields {
		cand, records, ok := lookupChain(m, path)
		if !ok {
			continue
		}
		n, numeric, inRange := in.normalizeNumber(cand)
		if !numeric {
			continue
		}
		if !inRange {
			saw = true
			continue
		}
		got := match{number: n}
		// Innermost record first: the issue sitting next to the number
		// beats one further out on a dotted path.
		for i := len(records) - 1; i >= 0 && !got.hasIssue; i-- {
			got.issue, got.hasIssue = in.issueAt(records[i])
		}
		return got, saw, true
	}
	for _, key := range in.rules.WrapperKeys {
		child, ok := m[key]
		if !ok {
			continue
		}
		got, childSaw, found := in.searchRound(child, depth+1)
		saw = saw || childSaw
		if found {
			if !got.hasIssue {
				got.issue, got.hasIssue = in.issueAt(m)
			}
			return got, saw, true
		}
	}
	return match{}, saw, false
}

// issueAt resolves the issue candidates against a single record.
func (in *Interpreter) issueAt(m map[string]any) (string, bool) {
	for _, path := range in.rules.IssueFields {
		cand, ok := lookup(m, path)
		if !ok {
			continue
		}
		switch t := cand.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s, true
			}
		case json.Number:
			return t.String(), true
		}
	}
	return "", false
}

// normalize resolves indirections that sources wrap around the round object:
// arrays carry the newest round last, and some backends double-encode the
// payload as a JSON string.
func (in *Interpreter) normalize(v any, depth int) any {
	for hop := depth; hop <= maxDepth; hop++ {
		switch t := v.(type) {
		case []any:
			if len(t) == 0 {
				return nil
			}
			v = t[len(t)-1]
		case string:
			s := strings.TrimSpace(t)
			if len(s) == 0 || (s[0] != '{' && s[0] != '[') {
				return v
			}
			inner, err := decodeAny([]byte(s))
			if err != nil {
				return v
			}
			v = inner
		default:
			return v
		}
	}
	return v
}

// normalizeNumber reports the candidate's digit value, whether the candidate
// was numeric at all, and whether it survived the range rule.
func (in *Interpreter) normalizeNumber(v any) (int, bool, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil || !d.IsInteger() {
			return 0, false, false
		}
		return in.boundDecimal(d)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false, false
		}
		if d, err := decimal.NewFromString(s); err == nil {
			if !d.IsInteger() {
				return 0, false, false
			}
			return in.boundDecimal(d)
		}
		if m := trailingDigits.FindStringSubmatch(s); m != nil {
			n, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return 0, false, false
			}
			return in.boundDigit(n)
		}
	}
	return 0, false, false
}

// boundDecimal rejects three-digit-and-up magnitudes before IntPart narrows
// to int64, so oversized values cannot wrap into the digit range.
func (in *Interpreter) boundDecimal(d decimal.Decimal) (int, bool, bool) {
	if d.Abs().Cmp(codeCeiling) >= 0 {
		return 0, true, false
	}
	return in.boundDigit(d.IntPart())
}

func (in *Interpreter) boundDigit(n int64) (int, bool, bool) {
	switch {
	case n >= 0 && n <= 9:
		return int(n), true, true
	case in.rules.LastDigit && n >= 10 && n <= 99:
		return int(n % 10), true, true
	default:
		return 0, true, false
	}
}

func (in *Interpreter) findList(v any, depth int) ([]any, bool) {
	if depth > maxDepth {
		return nil, false
	}
	switch t := v.(type) {
	case []any:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if len(s) > 0 && (s[0] == '{' || s[0] == '[') {
			if inner, err := decodeAny([]byte(s)); err == nil {
				return in.findList(inner, depth+1)
			}
		}
	case map[string]any:
		for _, key := range in.rules.WrapperKeys {
			child, ok := t[key]
			if !ok {
				continue
			}
			if list, found := in.findList(child, depth+1); found {
				return list, true
			}
		}
		return []any{t}, true
	}
	return nil, false
}

func (in *Interpreter) rootMap(v any) map[string]any {
	if m, ok := in.normalize(v, 0).(map[string]any); ok {
		return m
	}
	return nil
}

func lookup(m map[string]any, path string) (any, bool) {
	v, _, ok := lookupChain(m, path)
	return v, ok
}

// lookupChain walks a dotted path and reports the maps traversed on the way,
// outermost first. The last entry is the record holding the final segment.
func lookupChain(m map[string]any, path string) (any, []map[string]any, bool) {
	var records []map[string]any
	var v any = m
	for _, seg := range strings.Split(path, ".") {
		mm, ok := v.(map[string]any)
		if !ok {
			return nil, nil, false
		}
		records = append(records, mm)
		v, ok = mm[seg]
		if !ok {
			return nil, nil, false
		}
	}
	if v == nil {
		return nil, nil, false
	}
	return v, records, true
}

// stripFramePrefix drops the numeric engine prefix some push transports put
// in front of the JSON body (for example "42[...]").
func stripFramePrefix(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	if i > 0 && i < len(b) && (b[i] == '[' || b[i] == '{') {
		return b[i:]
	}
	return b
}

func decodeAny(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
