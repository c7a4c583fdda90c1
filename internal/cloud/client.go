// Package cloud is the HTTP client for a remote drift-bottle service.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wuyan1003/driftbottle/internal/bottle"
	"github.com/wuyan1003/driftbottle/internal/image"
)

const (
	defaultTimeout  = 30 * time.Second
	requestAttempts = 3
	retryPause      = time.Second
	maxRetryAfter   = 10 * time.Second
)

// StatusError is a non-2xx response from the bottle service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bottle service returned %d: %s", e.Status, e.Body)
}

// Client talks to a remote bottle service over its JSON API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a cloud client for the service at baseURL.
func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  log.With(slog.String("component", "cloud")),
	}
}

type addRequest struct {
	Content  string         `json:"content"`
	Images   []bottle.Image `json:"images"`
	Sender   string         `json:"sender"`
	SenderID string         `json:"sender_id"`
	Picked   bool           `json:"picked"`
}

type addResponse struct {
	ID int64 `json:"id"`
}

// AddBottle uploads a bottle and returns the ID assigned by the service.
// Image payloads are normalized to clean base64 before upload; URL images
// pass through untouched for the service to resolve.
func (c *Client) AddBottle(ctx context.Context, b bottle.Bottle) (int64, error) {
	req := addRequest{
		Content:  b.Content,
		Images:   normalizeImages(b.Images),
		Sender:   b.Sender,
		SenderID: b.SenderID,
	}
	var resp addResponse
	if err := c.do(ctx, http.MethodPost, "/api/bottles", req, &resp); err != nil {
		return 0, fmt.Errorf("add cloud bottle: %w", err)
	}
	if resp.ID == 0 {
		return 0, fmt.Errorf("add cloud bottle: service returned no id")
	}
	c.logger.Info("cloud bottle added", slog.Int64("bottle_id", resp.ID))
	return resp.ID, nil
}

// PickRandom fetches a random bottle. When the service has no unpicked
// bottle left it asks the service to recycle the picked pool once and
// retries; reset reports whether that happened. Returns ErrNoBottles when
// the pool is empty even after the reset.
func (c *Client) PickRandom(ctx context.Context) (bottle.Bottle, bool, error) {
	b, err := c.pickOnce(ctx)
	if err == nil {
		return b, false, nil
	}
	if !isNotFound(err) {
		return bottle.Bottle{}, false, fmt.Errorf("pick cloud bottle: %w", err)
	}

	if err := c.do(ctx, http.MethodPost, "/api/bottles/reset", nil, nil); err != nil {
		return bottle.Bottle{}, false, fmt.Errorf("reset cloud bottles: %w", err)
	}
	b, err = c.pickOnce(ctx)
	if err != nil {
		if isNotFound(err) {
			return bottle.Bottle{}, false, bottle.ErrNoBottles
		}
		return bottle.Bottle{}, false, fmt.Errorf("pick cloud bottle after reset: %w", err)
	}
	return b, true, nil
}

func (c *Client) pickOnce(ctx context.Context) (bottle.Bottle, error) {
	var b bottle.Bottle
	if err := c.do(ctx, http.MethodGet, "/api/bottles/random", nil, &b); err != nil {
		return bottle.Bottle{}, err
	}
	b.Images = normalizeImages(b.Images)
	return b, nil
}

type countsResponse struct {
	Active int `json:"active"`
	Picked int `json:"picked"`
}

// Counts returns the service's active and picked bottle counts.
func (c *Client) Counts(ctx context.Context) (int, int, error) {
	var resp countsResponse
	if err := c.do(ctx, http.MethodGet, "/api/bottles/count", nil, &resp); err != nil {
		return 0, 0, fmt.Errorf("get cloud counts: %w", err)
	}
	return resp.Active, resp.Picked, nil
}

// do performs one API call with bounded retries. Transport failures are
// retried after a short pause; 429 responses wait out Retry-After (capped)
// before retrying. Other non-2xx statuses return a StatusError immediately.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = raw
	}

	var lastErr error
	for attempt := 1; attempt <= requestAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Error("request failed",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			if err := sleep(ctx, retryPause); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = &StatusError{Status: resp.StatusCode}
			c.logger.Warn("rate limited by bottle service",
				slog.String("path", path),
				slog.Duration("wait", wait),
			)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
		if readErr != nil {
			return readErr
		}
		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

func retryAfter(resp *http.Response) time.Duration {
	wait := retryPause
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	if wait > maxRetryAfter {
		wait = maxRetryAfter
	}
	return wait
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func isNotFound(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == http.StatusNotFound
	}
	return false
}

func normalizeImages(images []bottle.Image) []bottle.Image {
	if len(images) == 0 {
		return nil
	}
	out := make([]bottle.Image, 0, len(images))
	for _, img := range images {
		if img.Type == bottle.ImageTypeBase64 {
			data := image.NormalizeBase64(img.Data)
			if data == "" {
				continue
			}
			img.Data = data
		}
		out = append(out, img)
	}
	return out
}
