package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// maxTimeBytes bounds the time authority reply, which is a small JSON object.
const maxTimeBytes = 16 << 10

// TimeAuthority reports the current time from a trusted remote clock and
// falls back to the local clock when it cannot be reached.
type TimeAuthority struct {
	url  string
	loc  *time.Location
	http *http.Client
	log  zerolog.Logger

	// now is the local clock; replaced in tests.
	now func() time.Time
}

// NewTimeAuthority creates a TimeAuthority. An empty url always uses the
// local clock.
func NewTimeAuthority(url string, loc *time.Location, timeout time.Duration, log zerolog.Logger) *TimeAuthority {
	return &TimeAuthority{
		url:  url,
		loc:  loc,
		http: &http.Client{Timeout: timeout},
		log:  log.With().Str("component", "time_authority").Logger(),
		now:  time.Now,
	}
}

// Now returns the current time in the exam timezone.
func (t *TimeAuthority) Now(ctx context.Context) time.Time {
	if t.url != "" {
		remote, err := t.fetch(ctx)
		if err == nil {
			return remote.In(t.loc)
		}
		t.log.Warn().Err(err).Msg("Time authority unavailable, using local clock")
	}
	return t.now().In(t.loc)
}

func (t *TimeAuthority) fetch(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, &StatusError{Code: resp.StatusCode}
	}

	var body struct {
		Datetime string `json:"datetime"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTimeBytes)).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("decode time: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, body.Datetime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", body.Datetime, err)
	}
	return ts, nil
}
