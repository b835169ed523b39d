package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/tendant/heritage-site/pkg/pastevent"
	"github.com/tendant/heritage-site/pkg/pastevent/api"
)

var (
	// ErrUnauthorized is returned on 401. The stored credential has been cleared.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUnavailable is returned on 503. The stored credential is kept.
	ErrUnavailable = errors.New("service unavailable")

	// ErrNotFound is returned on 404
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on 409
	ErrConflict = errors.New("conflict")
)

// Error is a non-2xx response. It unwraps to one of the sentinels above, or
// to a *pastevent.ValidationError for 400.
type Error struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
	err        error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.Status)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Client talks to the past event HTTP API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	store        CredentialStore
	readTries    uint
	readInterval time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCredentialStore sets where the bearer token is read from and cleared.
func WithCredentialStore(store CredentialStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithReadRetry configures retries of public reads. tries counts the first
// attempt.
func WithReadRetry(tries uint, initialInterval time.Duration) Option {
	return func(c *Client) {
		if tries > 0 {
			c.readTries = tries
		}
		if initialInterval > 0 {
			c.readInterval = initialInterval
		}
	}
}

// New creates a client for the API rooted at baseURL, e.g.
// "https://example.org". Without a credential store an empty MemoryStore is
// used.
func New(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		readTries:    3,
		readInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore("")
	}
	return c, nil
}

// Public reads

// GetPastEvent resolves a past event by slug.
func (c *Client) GetPastEvent(ctx context.Context, slug string) (*pastevent.PastEvent, error) {
	var event pastevent.PastEvent
	if err := c.read(ctx, "/api/past-events/"+url.PathEscape(slug), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListPastEvents lists summaries, narrowed to year when it is set.
func (c *Client) ListPastEvents(ctx context.Context, year *int) ([]pastevent.Summary, error) {
	path := "/api/past-events"
	if year != nil {
		path += "?year=" + strconv.Itoa(*year)
	}
	var summaries []pastevent.Summary
	if err := c.read(ctx, path, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// ListYears returns per-year counts, most recent first.
func (c *Client) ListYears(ctx context.Context) ([]pastevent.YearAggregate, error) {
	var years []pastevent.YearAggregate
	if err := c.read(ctx, "/api/past-events/years", &years); err != nil {
		return nil, err
	}
	return years, nil
}

// Admin calls

// CreatePastEvent posts a document and returns the new id. document is
// marshaled as JSON.
func (c *Client) CreatePastEvent(ctx context.Context, document any) (uuid.UUID, error) {
	var resp api.IDResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/api/past-events", document, &resp); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(resp.ID)
}

// UpdatePastEvent applies a partial update.
func (c *Client) UpdatePastEvent(ctx context.Context, id uuid.UUID, patch any) error {
	return c.sendJSON(ctx, http.MethodPut, "/api/past-events/"+id.String(), patch, nil)
}

// CheckSlug reports whether slug is taken by a record other than excludeID.
func (c *Client) CheckSlug(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	q := url.Values{"slug": {slug}}
	if excludeID != nil {
		q.Set("excludeId", excludeID.String())
	}
	var resp api.SlugCheckResponse
	if err := c.admin(ctx, http.MethodGet, "/api/past-events/check-slug?"+q.Encode(), nil, "", &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// Me returns the identity behind the stored credential.
func (c *Client) Me(ctx context.Context) (*pastevent.Identity, error) {
	var identity pastevent.Identity
	if err := c.admin(ctx, http.MethodGet, "/api/auth/me", nil, "", &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// UploadImage uploads an image as the multipart field "file".
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (*pastevent.UploadedImage, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var uploaded pastevent.UploadedImage
	if err := c.admin(ctx, http.MethodPost, "/api/uploads/images", body.Bytes(), mw.FormDataContentType(), &uploaded); err != nil {
		return nil, err
	}
	return &uploaded, nil
}

// DeleteImage removes an uploaded image.
func (c *Client) DeleteImage(ctx context.Context, filename string) error {
	return c.admin(ctx, http.MethodDelete, "/api/uploads/images/"+url.PathEscape(filename), nil, "", nil)
}

// read performs an unauthenticated GET, retrying transport failures and
// 5xx responses.
func (c *Client) read(ctx context.Context, path string, out any) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.readInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, http.MethodGet, path, nil, "", "", out)
		if err == nil {
			return struct{}{}, nil
		}
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			return struct{}{}, backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		slog.Debug("Retrying read", "path", path, "error", err)
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.readTries))
	return err
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.admin(ctx, method, path, body, "application/json", out)
}

// admin sends an authenticated request once. A 401 clears the stored
// credential.
func (c *Client) admin(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	token, err := c.store.Token()
	if err != nil {
		return err
	}

	err = c.do(ctx, method, path, body, contentType, token, out)
	if errors.Is(err, ErrUnauthorized) {
		if clearErr := c.store.Clear(); clearErr != nil {
			slog.Warn("Failed to clear credential", "error", clearErr)
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType, token string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body api.ErrorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	e := &Error{Status: resp.StatusCode, Code: body.Error.Code, Message: body.Error.Message}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		e.err = &pastevent.ValidationError{Fields: body.Error.Fields}
	case http.StatusUnauthorized:
		e.err = ErrUnauthorized
	case http.StatusNotFound:
		e.err = ErrNotFound
	case http.StatusConflict:
		e.err = ErrConflict
	case http.StatusServiceUnavailable:
		e.err = ErrUnavailable
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}
