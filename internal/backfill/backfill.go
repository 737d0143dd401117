// Package backfill fetches recent round history over HTTP and replays it
// through the same handler the live stream feeds. Replay runs oldest issue
// first so derived signals come out in draw order.
package backfill

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/forid0k/signalx/internal/interpret"
)

// Handler consumes one raw round payload.
type Handler func(ctx context.Context, raw []byte)

// Importer pulls a history document and walks its rounds.
type Importer struct {
	url    string
	interp *interpret.Interpreter
	log    zerolog.Logger

	// Http is exported so tests can inject a client.
	Http *http.Client
}

// NewImporter builds an importer for the given history endpoint.
func NewImporter(url string, interp *interpret.Interpreter, log zerolog.Logger) *Importer {
	return &Importer{
		url:    url,
		interp: interp,
		log:    log,
		Http:   &http.Client{Timeout: 8 * time.Second},
	}
}

// Run fetches the history document once and hands every round to handle,
// sorted ascending by issue. Rounds whose issue cannot be read sort first
// and are left for the handler to reject.
func (i *Importer) Run(ctx context.Context, handle Handler) error {
	raw, err := i.fetch(ctx)
	if err != nil {
		return err
	}

	items, err := i.interp.Items(raw)
	if err != nil {
		return fmt.Errorf("split history payload: %w", err)
	}

	type round struct {
		issue string
		raw   []byte
	}
	rounds := make([]round, 0, len(items))
	for _, item := range items {
		issue := ""
		if res, err := i.interp.Parse(item); err == nil {
			issue = res.Issue
		}
		rounds = append(rounds, round{issue: issue, raw: item})
	}
	sort.SliceStable(rounds, func(a, b int) bool { return rounds[a].issue < rounds[b].issue })

	for _, r := range rounds {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handle(ctx, r.raw)
	}

	i.log.Info().Int("rounds", len(rounds)).Msg("history replayed")
	return nil
}

// fetch GETs the history document with a millisecond timestamp query so
// intermediate caches never serve a stale copy.
func (i *Importer) fetch(ctx context.Context) ([]byte, error) {
	u, err := url.Parse(i.url)
	if err != nil {
		return nil, fmt.Errorf("parse history url: %w", err)
	}
	q := u.Query()
	q.Set("ts", strconv.FormatInt(time.Now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.Http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
