package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"autodesk/internal/apperr"
	logx "autodesk/pkg/logx"
)

const (
	DefaultGoogleBaseURL = "https://www.googleapis.com/calendar/v3"
	defaultHTTPTimeout   = 15 * time.Second
	maxPages             = 20
)

// GoogleConfig configures GoogleSource.
//
// TokenFile holds a ready OAuth bearer token. Obtaining and refreshing it is
// left to whatever provisions the file.
type GoogleConfig struct {
	BaseURL    string
	TokenFile  string
	Timeout    time.Duration
	RatePerSec int
}

// GoogleSource queries the Calendar v3 events.list endpoint.
type GoogleSource struct {
	cfg     GoogleConfig
	log     logx.Logger
	http    *http.Client
	limiter *rate.Limiter
}

func NewGoogleSource(cfg GoogleConfig, log logx.Logger) (*GoogleSource, error) {
	if strings.TrimSpace(cfg.TokenFile) == "" {
		return nil, apperr.Config("calendar google source", errors.New("calendar.token_file is required"))
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultGoogleBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &GoogleSource{
		cfg:     cfg,
		log:     log,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Events lists the single (recurrence-expanded) events overlapping day,
// ordered by start time, following nextPageToken.
func (g *GoogleSource) Events(ctx context.Context, calendarID string, day Day) ([]RawEvent, error) {
	token, err := g.readToken()
	if err != nil {
		return nil, err
	}

	var (
		out       []RawEvent
		pageToken string
	)
	for page := 0; page < maxPages; page++ {
		list, err := g.fetchPage(ctx, token, calendarID, day, pageToken)
		if err != nil {
			return nil, err
		}
		out = append(out, list.Items...)
		g.log.Debug("calendar page fetched",
			logx.String("calendar_id", calendarID),
			logx.String("day", day.String()),
			logx.Int("page", page),
			logx.Int("items", len(list.Items)),
		)
		if list.NextPageToken == "" {
			return out, nil
		}
		pageToken = list.NextPageToken
	}
	return nil, apperr.Source("list events", fmt.Errorf("more than %d pages for %s", maxPages, day))
}

func (g *GoogleSource) readToken() (string, error) {
	b, err := os.ReadFile(g.cfg.TokenFile)
	if err != nil {
		return "", apperr.Source("read token file", err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", apperr.Source("read token file", fmt.Errorf("%s is empty", g.cfg.TokenFile))
	}
	return tok, nil
}

func (g *GoogleSource) eventsURL(calendarID string, day Day, pageToken string) string {
	q := url.Values{}
	q.Set("timeMin", day.Start.Format(time.RFC3339))
	q.Set("timeMax", day.End.Format(time.RFC3339))
	q.Set("timeZone", day.Location().String())
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", strconv.Itoa(250))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	return g.cfg.BaseURL + "/calendars/" + url.PathEscape(calendarID) + "/events?" + q.Encode()
}

func (g *GoogleSource) fetchPage(ctx context.Context, token, calendarID string, day Day, pageToken string) (eventList, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return eventList{}, apperr.Source("list events", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.eventsURL(calendarID, day, pageToken), nil)
	if err != nil {
		return eventList{}, apperr.Source("list events", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return eventList{}, apperr.Source("list events", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return eventList{}, apperr.Source("list events",
			fmt.Errorf("calendar api: %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	var list eventList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return eventList{}, apperr.DataFormat("decode events response", err)
	}
	return list, nil
}
