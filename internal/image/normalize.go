// Package image collects and normalizes the images referenced by inbound
// messages into transportable base64 bottle images.
package image

import (
	"strings"
)

// NormalizeBase64 cleans a base64 image payload: the source platform's
// "base64://" prefix and data-URL headers are stripped, and embedded
// whitespace is removed. Returns "" when nothing usable remains.
func NormalizeBase64(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "base64://") {
		value = strings.TrimPrefix(value, "base64://")
	} else if strings.HasPrefix(strings.ToLower(value), "data:") {
		idx := strings.Index(value, ",")
		if idx < 0 {
			return ""
		}
		value = value[idx+1:]
	}
	return strings.Join(strings.Fields(value), "")
}

// IsRemoteURL reports whether raw looks like a fetchable http(s) URL.
func IsRemoteURL(raw string) bool {
	value := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

// ExtractImageURL pulls an embedded image URL out of a raw platform
// payload, e.g. a CQ-style segment "[CQ:image,...,url=...]". Used as a
// fallback when no structured attachment was delivered.
func ExtractImageURL(raw string) string {
	start := strings.Index(raw, "[CQ:image,")
	if start < 0 {
		return ""
	}
	segment := raw[start:]
	end := strings.Index(segment, "]")
	if end < 0 {
		return ""
	}
	segment = segment[:end]
	idx := strings.Index(segment, "url=")
	if idx < 0 {
		return ""
	}
	url := segment[idx+len("url="):]
	if comma := strings.Index(url, ","); comma >= 0 {
		url = url[:comma]
	}
	return strings.TrimSpace(url)
}
