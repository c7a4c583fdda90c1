// Package bottle defines the drift-bottle domain model and the Store
// interface over its backends.
package bottle

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNoBottles is returned by random picks when the pool is empty.
	ErrNoBottles = errors.New("no bottles available")
	// ErrNotFound is returned by ID lookups when no bottle matches.
	ErrNotFound = errors.New("bottle not found")
	// ErrEmptyBottle is returned when a bottle has neither text nor images.
	ErrEmptyBottle = errors.New("bottle has no content")
)

// Image payload kinds.
const (
	ImageTypeBase64 = "base64"
	ImageTypeURL    = "url"
)

// Image is a single image carried by a bottle. Data holds a base64 payload
// or a URL depending on Type.
type Image struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Bottle is one drifting message. ID is assigned by the store on Add and is
// immutable afterwards; IDs are never reused.
type Bottle struct {
	ID        int64     `json:"bottle_id"`
	Content   string    `json:"content"`
	Images    []Image   `json:"images,omitempty"`
	Sender    string    `json:"sender"`
	SenderID  string    `json:"sender_id"`
	CreatedAt time.Time `json:"timestamp"`
	Picked    bool      `json:"picked"`
}

// IsEmpty reports whether the bottle carries neither text nor images.
func (b Bottle) IsEmpty() bool {
	return strings.TrimSpace(b.Content) == "" && len(b.Images) == 0
}

// Store is the bottle collection. A bottle is ACTIVE until picked, then
// PICKED; the pick transition is one-way from the bot's point of view.
// Reset exists only for service mode, where an exhausted pool is recycled.
type Store interface {
	// Add stores a new bottle and returns its assigned ID.
	Add(ctx context.Context, b Bottle) (int64, error)
	// PickRandom moves a uniformly random active bottle to picked and
	// returns it. Returns ErrNoBottles when no active bottle exists.
	PickRandom(ctx context.Context) (Bottle, error)
	// GetPicked returns the picked bottle with the given ID.
	GetPicked(ctx context.Context, id int64) (Bottle, error)
	// RandomPicked returns a random picked bottle.
	RandomPicked(ctx context.Context) (Bottle, error)
	// ListPicked returns picked bottles, newest first.
	ListPicked(ctx context.Context) ([]Bottle, error)
	// Counts returns the active and picked bottle counts.
	Counts(ctx context.Context) (active, picked int, err error)
	// ListUnuploaded returns up to limit bottles, oldest first, for which
	// uploaded reports false. Both active and picked bottles qualify.
	ListUnuploaded(ctx context.Context, uploaded func(id int64) bool, limit int) ([]Bottle, error)
	// Reset moves every picked bottle back to active and reports how many
	// were restored.
	Reset(ctx context.Context) (int, error)
}
