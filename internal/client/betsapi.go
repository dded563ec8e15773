package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"oddscollector/ingestion/internal/metrics"
	"oddscollector/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	pathEndedEvents = "events/ended"
	pathOddsSummary = "event/odds/summary"
	pathEventView   = "event/view"

	dayLayout = "20060102"
)

// Options configures a Client
type Options struct {
	BaseURLV1    string
	BaseURLV2    string
	Token        string
	Timeout      time.Duration
	RequestDelay time.Duration
	Policy       Policy

	// Sleep replaces the real wait; used by tests
	Sleep SleepFunc
	// HTTPClient overrides the default transport
	HTTPClient *http.Client
}

// Client is the rate-limited BetsAPI client.
// A Client is not shared between backfill workers; each task builds its own.
type Client struct {
	baseURLV1    string
	baseURLV2    string
	token        string
	httpClient   *http.Client
	requestDelay time.Duration
	policy       Policy
	sleep        SleepFunc
}

// NewClient creates a new BetsAPI client
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	policy := opts.Policy
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy()
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Client{
		baseURLV1:    strings.TrimRight(opts.BaseURLV1, "/"),
		baseURLV2:    strings.TrimRight(opts.BaseURLV2, "/"),
		token:        opts.Token,
		httpClient:   httpClient,
		requestDelay: opts.RequestDelay,
		policy:       policy,
		sleep:        sleep,
	}
}

// envelope is the common response wrapper of every endpoint
type envelope struct {
	Success models.FlexString `json:"success"`
	Error   string            `json:"error"`
	Detail  string            `json:"error_detail"`
	Results json.RawMessage   `json:"results"`
	Pager   *models.Pager     `json:"pager"`

	notFound bool
}

func (e *envelope) ok() bool {
	return e.Success.String() == "1"
}

func (e *envelope) message() string {
	msg := strings.TrimSpace(e.Error)
	if e.Detail != "" {
		msg = strings.TrimSpace(msg + " " + e.Detail)
	}
	if msg == "" {
		msg = "unknown API error (success != 1)"
	}
	return msg
}

// emptyResults reports whether results is missing, null or an empty container
func (e *envelope) emptyResults() bool {
	r := bytes.TrimSpace(e.Results)
	return len(r) == 0 || bytes.Equal(r, []byte("null")) || bytes.Equal(r, []byte("[]")) || bytes.Equal(r, []byte("{}"))
}

// get performs a GET request with the mandatory request delay and the retry policy
func (c *Client) get(ctx context.Context, baseURL, path string, params url.Values) (*envelope, error) {
	endpoint := fmt.Sprintf("%s/%s", baseURL, path)

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("token", c.token)

	var (
		st      attemptState
		lastErr error
	)
	for {
		// Rate limiting: every dispatch waits, regardless of the previous outcome
		if err := c.sleep(ctx, c.requestDelay); err != nil {
			return nil, err
		}

		start := time.Now()
		env, class, retryAfter, err := c.do(ctx, endpoint, path, query)
		duration := time.Since(start).Seconds()

		if err == nil {
			metrics.RecordAPICall(path, "success", duration)
			return env, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		metrics.RecordAPICall(path, class.String(), duration)
		lastErr = err

		wait, retry := c.policy.next(class, &st, retryAfter)
		if !retry {
			if class == ClassFatal {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s after %d failures and %d rate limits: %w",
				ErrRetriesExhausted, path, st.failures, st.rateLimits, lastErr)
		}

		event := log.Warn()
		if class == ClassRateLimited {
			event = log.Info()
		}
		event.
			Err(err).
			Str("endpoint", path).
			Str("class", class.String()).
			Int("failures", st.failures).
			Int("rate_limits", st.rateLimits).
			Dur("backoff", wait).
			Msg("Retrying API request after backoff")

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// do executes a single request and classifies its outcome
func (c *Client) do(ctx context.Context, endpoint, path string, query url.Values) (*envelope, ErrorClass, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, ClassFatal, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "oddscollector-ingestion/1.0")

	log.Debug().
		Str("endpoint", path).
		Str("page", query.Get("page")).
		Str("day", query.Get("day")).
		Str("event_id", query.Get("event_id")).
		Msg("Making API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ClassTransient, 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassTransient, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ClassRateLimited, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			&StatusError{StatusCode: resp.StatusCode, Body: truncate(body)}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ClassFatal, 0, fmt.Errorf("%w (status %d): %s", ErrUnauthorized, resp.StatusCode, truncate(body))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, ClassTransient, 0, &StatusError{StatusCode: resp.StatusCode, Body: truncate(body)}
	default:
		return nil, ClassFatal, 0, &StatusError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ClassFatal, 0, fmt.Errorf("%w from %s: %v", ErrMalformedResponse, path, err)
	}

	if !env.ok() {
		msg := env.message()
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "not found") || strings.Contains(lower, "not_found"):
			log.Debug().Str("endpoint", path).Str("error", msg).Msg("Resource not found")
			return &envelope{Success: "1", notFound: true}, 0, 0, nil
		case strings.Contains(lower, "no results"):
			log.Info().Str("endpoint", path).Str("error", msg).Msg("No results for query")
			return &envelope{Success: "1"}, 0, 0, nil
		}
		return nil, ClassSemantic, 0, &APIError{Endpoint: path, Message: msg}
	}

	log.Debug().
		Str("endpoint", path).
		Int("status", resp.StatusCode).
		Int("size", len(body)).
		Msg("API request successful")

	return &env, 0, 0, nil
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// EndedEventsQuery selects one page of the ended-events feed
type EndedEventsQuery struct {
	SportID int
	Page    int
	// Day limits results to one calendar day; zero means the latest events
	Day time.Time
	// LeagueID limits results to one league; empty means all leagues
	LeagueID string
}

// EventsPage is one page of ended events
type EventsPage struct {
	Page   int
	Events []models.RawEvent
	Pager  *models.Pager
}

// HasNext reports whether another page should be requested
func (p *EventsPage) HasNext() bool {
	if p == nil || len(p.Events) == 0 {
		return false
	}
	return p.Pager.HasNext(p.Page)
}

// FetchEndedEvents fetches one page of completed events.
// An upstream "no results" answer is an empty page, not an error.
func (c *Client) FetchEndedEvents(ctx context.Context, q EndedEventsQuery) (*EventsPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}

	params := url.Values{}
	params.Set("sport_id", strconv.Itoa(q.SportID))
	params.Set("skip_esports", "0")
	params.Set("page", strconv.Itoa(q.Page))
	if !q.Day.IsZero() {
		params.Set("day", q.Day.Format(dayLayout))
	}
	if q.LeagueID != "" {
		params.Set("league_id", q.LeagueID)
	}

	env, err := c.get(ctx, c.baseURLV1, pathEndedEvents, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ended events page %d: %w", q.Page, err)
	}

	page := &EventsPage{Page: q.Page, Pager: env.Pager}
	if env.notFound || env.emptyResults() {
		return page, nil
	}

	if err := json.Unmarshal(env.Results, &page.Events); err != nil {
		return nil, fmt.Errorf("%w: ended events results: %v", ErrMalformedResponse, err)
	}

	return page, nil
}

// FetchOddsSummary fetches the per-bookmaker odds summary of one event.
// Returns nil, nil when the event is unknown upstream.
func (c *Client) FetchOddsSummary(ctx context.Context, eventID int64) (models.OddsSummary, error) {
	if eventID <= 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("event_id", strconv.FormatInt(eventID, 10))

	env, err := c.get(ctx, c.baseURLV2, pathOddsSummary, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch odds summary for event %d: %w", eventID, err)
	}
	if env.notFound {
		return nil, nil
	}
	if env.emptyResults() {
		return models.OddsSummary{}, nil
	}

	var summary models.OddsSummary
	if err := json.Unmarshal(env.Results, &summary); err != nil {
		return nil, fmt.Errorf("%w: odds summary for event %d: %v", ErrMalformedResponse, eventID, err)
	}

	return summary, nil
}

// FetchEventView fetches a single event, used to refresh missing scores.
// Returns nil, nil when the event is unknown upstream.
func (c *Client) FetchEventView(ctx context.Context, eventID int64) (*models.RawEvent, error) {
	params := url.Values{}
	params.Set("event_id", strconv.FormatInt(eventID, 10))

	env, err := c.get(ctx, c.baseURLV1, pathEventView, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event %d: %w", eventID, err)
	}
	if env.notFound || env.emptyResults() {
		return nil, nil
	}

	var events []models.RawEvent
	if err := json.Unmarshal(env.Results, &events); err != nil {
		return nil, fmt.Errorf("%w: event view %d: %v", ErrMalformedResponse, eventID, err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	return &events[0], nil
}

// IsRetriesExhausted reports whether err is a retry exhaustion failure
func IsRetriesExhausted(err error) bool {
	return errors.Is(err, ErrRetriesExhausted)
}
