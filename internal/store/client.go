package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

const (
	defaultTimeout   = 15 * time.Second
	windowCacheSize  = 64
	maxErrorBodySize = 4 << 10
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("store: %s: %s", e.Status, e.Message)
	}
	return "store: " + e.Status
}

// NotFound reports whether err is a 404 from the store.
func NotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// windowEntry holds the conditional-GET metadata of one window response.
type windowEntry struct {
	ETag         string
	LastModified string
	Body         []byte
	UpdatedAt    time.Time
}

// Client talks to the REST event store.
//
// Window fetches are conditional: ETag / Last-Modified of recent responses
// are kept in a small LRU and a 304 reuses the cached body. Unlike a feed
// reader, a failed request is never answered from cache; the engine must
// see the failure to resynchronize.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	windows *lru.Cache[string, windowEntry]
}

// NewClient creates a store client for baseURL (e.g. "https://api.example.com/v1").
// A zero timeout means 15s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	// lru.New only errors on a non-positive size.
	cache, _ := lru.New[string, windowEntry](windowCacheSize)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		windows: cache,
	}
}

func (c *Client) FetchWindow(ctx context.Context, start, end time.Time) ([]model.CalendarEvent, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	u := c.baseURL + "/events?" + q.Encode()

	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	cached, haveCached := c.windows.Get(u)
	if haveCached {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	appLog.Debug("store fetch start", "url", redactURL(u))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch window: %w", err)
	}
	defer resp.Body.Close()

	var body []byte
	switch {
	case resp.StatusCode == http.StatusNotModified && haveCached:
		appLog.Debug("store fetch not modified; using cache", "url", redactURL(u))
		body = cached.Body
	case resp.StatusCode == http.StatusOK:
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read window: %w", err)
		}
		etag, lastMod := resp.Header.Get("ETag"), resp.Header.Get("Last-Modified")
		if etag != "" || lastMod != "" {
			c.windows.Add(u, windowEntry{
				ETag:         etag,
				LastModified: lastMod,
				Body:         body,
				UpdatedAt:    time.Now().UTC(),
			})
		}
	default:
		return nil, statusError(resp)
	}

	var events []model.CalendarEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("decode window: %w", err)
	}
	appLog.Debug("store fetch success", "url", redactURL(u), "status", resp.StatusCode, "event_count", len(events))
	return events, nil
}

func (c *Client) Create(ctx context.Context, f model.Fields) (model.CalendarEvent, error) {
	var ev model.CalendarEvent
	err := c.do(ctx, http.MethodPost, c.baseURL+"/events", f, &ev)
	return ev, err
}

func (c *Client) Update(ctx context.Context, id string, p model.Patch) (model.CalendarEvent, error) {
	var ev model.CalendarEvent
	err := c.do(ctx, http.MethodPatch, c.eventURL(id), p, &ev)
	return ev, err
}

// moveBody is the payload of the dedicated move operation.
type moveBody struct {
	Start time.Time `json:"startTime"`
	End   time.Time `json:"endTime"`
}

func (c *Client) Move(ctx context.Context, id string, start, end time.Time) (model.CalendarEvent, error) {
	var ev model.CalendarEvent
	err := c.do(ctx, http.MethodPost, c.eventURL(id)+"/move", moveBody{Start: start, End: end}, &ev)
	return ev, err
}

func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.eventURL(id), nil, nil)
}

func (c *Client) eventURL(id string) string {
	return c.baseURL + "/events/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", method, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, u, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, redactURL(u), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode, Status: resp.Status}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		se.Message = e.Error
	} else {
		se.Message = strings.TrimSpace(string(data))
	}
	return se
}

// redactURL keeps scheme and host of a store URL for logging; paths and
// queries may carry identifiers.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "store://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
