package image

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/wuyan1003/driftbottle/internal/bottle"
	"github.com/wuyan1003/driftbottle/internal/channel"
)

const (
	fetchTimeout  = 10 * time.Second
	fetchAttempts = 3
	fetchPause    = time.Second
	maxImageBytes = 10 << 20
)

// Handler downloads and encodes images referenced by inbound messages.
type Handler struct {
	client *http.Client
	logger *slog.Logger
}

// NewHandler creates an image handler with its own HTTP client.
func NewHandler(log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		client: &http.Client{Timeout: fetchTimeout},
		logger: log.With(slog.String("component", "image")),
	}
}

// Fetch downloads the image at url, retrying transient failures. Some image
// hosts reject default Go clients, so browser-like headers are sent.
func (h *Handler) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		data, err := h.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		h.logger.Error("download image failed",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if attempt < fetchAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(fetchPause):
			}
		}
	}
	return nil, lastErr
}

func (h *Handler) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Referer", "http://qq.com")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}

// Collect walks the message's attachments and returns every image as a
// base64 bottle image. Unusable entries are skipped with a logged error,
// never failing the whole collection. When no structured attachment yields
// an image, an image URL embedded in the raw payload is tried as fallback.
func (h *Handler) Collect(ctx context.Context, msg channel.Message) []bottle.Image {
	var images []bottle.Image
	for _, att := range msg.Attachments {
		if att.Type != channel.AttachmentImage {
			continue
		}
		img, ok := h.collectOne(ctx, att)
		if ok {
			images = append(images, img)
		}
	}

	if len(images) == 0 {
		if url := ExtractImageURL(msg.RawText); url != "" {
			if data, err := h.Fetch(ctx, url); err == nil {
				images = append(images, encoded(data))
			}
		}
	}
	return images
}

func (h *Handler) collectOne(ctx context.Context, att channel.Attachment) (bottle.Image, bool) {
	switch {
	case att.Data != "":
		data := NormalizeBase64(att.Data)
		if data == "" {
			h.logger.Error("attachment carries empty base64 payload")
			return bottle.Image{}, false
		}
		return bottle.Image{Type: bottle.ImageTypeBase64, Data: data}, true

	case att.URL != "":
		data, err := h.Fetch(ctx, att.URL)
		if err != nil {
			return bottle.Image{}, false
		}
		return encoded(data), true

	case att.Path != "":
		raw, err := os.ReadFile(att.Path)
		if err != nil {
			h.logger.Error("read local image failed",
				slog.String("path", att.Path), slog.Any("error", err))
			return bottle.Image{}, false
		}
		return encoded(raw), true
	}
	h.logger.Error("attachment has no image source")
	return bottle.Image{}, false
}

func encoded(data []byte) bottle.Image {
	return bottle.Image{
		Type: bottle.ImageTypeBase64,
		Data: base64.StdEncoding.EncodeToString(data),
	}
}
