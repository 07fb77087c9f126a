package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OSRMMetric queries an OSRM-compatible /table endpoint for road-network
// distances and durations. Requests are rate limited and retried on
// transient failures.
type OSRMMetric struct {
	BaseURL string
	Profile string
	client  *http.Client
	limiter *rate.Limiter
}

func NewOSRMMetric(baseURL string, reqPerSec float64) *OSRMMetric {
	if reqPerSec <= 0 {
		reqPerSec = 5
	}
	return &OSRMMetric{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Profile: "driving",
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), 1),
	}
}

type osrmTableResponse struct {
	Code      string       `json:"code"`
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

func (o *OSRMMetric) Leg(ctx context.Context, from, to Point) (Leg, error) {
	table, err := o.Table(ctx, []Point{from, to})
	if err != nil {
		return Leg{}, err
	}
	return table[0][1], nil
}

// Table fetches the full many-to-many matrix in one request.
func (o *OSRMMetric) Table(ctx context.Context, pts []Point) ([][]Leg, error) {
	if len(pts) == 0 {
		return nil, nil
	}
	coords := make([]string, len(pts))
	for i, p := range pts {
		coords[i] = fmt.Sprintf("%f,%f", p.Lng, p.Lat) // OSRM wants lon,lat
	}
	url := fmt.Sprintf("%s/table/v1/%s/%s?annotations=distance,duration", o.BaseURL, o.Profile, strings.Join(coords, ";"))

	resp, err := o.doWithRetry(ctx, url)
	if err != nil {
		return nil, &UnreachableError{From: pts[0], To: pts[len(pts)-1], Cause: err}
	}
	defer resp.Body.Close()

	var tr osrmTableResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &UnreachableError{From: pts[0], To: pts[len(pts)-1], Cause: fmt.Errorf("decode table response: %w", err)}
	}
	if tr.Code != "Ok" || len(tr.Distances) != len(pts) || len(tr.Durations) != len(pts) {
		return nil, &UnreachableError{From: pts[0], To: pts[len(pts)-1], Cause: fmt.Errorf("table response code=%q rows=%d", tr.Code, len(tr.Distances))}
	}

	out := make([][]Leg, len(pts))
	for i := range pts {
		out[i] = make([]Leg, len(pts))
		for j := range pts {
			dm := tr.Distances[i][j]
			ds := tr.Durations[i][j]
			if dm == nil || ds == nil {
				// Provider could not route this pair; estimate instead.
				mi := HaversineMiles(pts[i], pts[j])
				out[i][j] = Leg{Miles: mi, Minutes: mi / 30 * 60}
				continue
			}
			out[i][j] = Leg{Miles: *dm / 1609.344, Minutes: *ds / 60}
		}
	}
	return out, nil
}

// doWithRetry retries transient failures (network errors, 429/5xx) with
// exponential backoff, honoring context cancellation and the rate limiter.
func (o *OSRMMetric) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	const maxAttempts = 4
	backoff := 200 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := o.client.Do(req)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}
		retry := false
		if err != nil {
			var netErr net.Error
			retry = errors.As(err, &netErr)
			lastErr = err
		} else {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("osrm status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
			switch resp.StatusCode {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}
		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}
