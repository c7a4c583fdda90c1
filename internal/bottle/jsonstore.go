package bottle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const bottlesFileName = "drift_bottles.json"

// fileData is the on-disk layout: the active/picked partition of the pool.
type fileData struct {
	Active []Bottle `json:"active"`
	Picked []Bottle `json:"picked"`
}

// JSONStore keeps the whole collection in one JSON file under the data
// directory. Single-writer: every mutation happens under the mutex and is
// written through to disk before returning.
type JSONStore struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	data fileData
}

// NewJSONStore opens (or creates) the bottle file under dataDir. A missing
// or unreadable file degrades to an empty collection with a logged error.
func NewJSONStore(log *slog.Logger, dataDir string) (*JSONStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &JSONStore{
		path:   filepath.Join(dataDir, bottlesFileName),
		logger: log.With(slog.String("store", "json")),
	}
	s.data = s.load()
	return s, nil
}

func (s *JSONStore) load() fileData {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("read bottle file failed", slog.Any("error", err))
		}
		return fileData{}
	}
	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Error("decode bottle file failed", slog.Any("error", err))
		return fileData{}
	}
	return data
}

// save writes the collection under the mutex held by the caller.
func (s *JSONStore) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bottles: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write bottle file: %w", err)
	}
	return nil
}

// nextID is max-plus-one over the whole collection, so IDs survive picks
// and are never reused while the file lives.
func (s *JSONStore) nextID() int64 {
	var max int64
	for _, b := range s.data.Active {
		if b.ID > max {
			max = b.ID
		}
	}
	for _, b := range s.data.Picked {
		if b.ID > max {
			max = b.ID
		}
	}
	return max + 1
}

func (s *JSONStore) Add(_ context.Context, b Bottle) (int64, error) {
	if b.IsEmpty() {
		return 0, ErrEmptyBottle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = s.nextID()
	b.Picked = false
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.data.Active = append(s.data.Active, b)
	if err := s.save(); err != nil {
		s.data.Active = s.data.Active[:len(s.data.Active)-1]
		return 0, err
	}
	s.logger.Info("bottle added", slog.Int64("bottle_id", b.ID))
	return b.ID, nil
}

func (s *JSONStore) PickRandom(_ context.Context) (Bottle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data.Active) == 0 {
		return Bottle{}, ErrNoBottles
	}
	idx := rand.Intn(len(s.data.Active))
	picked := s.data.Active[idx]
	picked.Picked = true

	// Build the new partition aside and swap only after a successful save,
	// so a write failure leaves memory matching the file.
	active := make([]Bottle, 0, len(s.data.Active)-1)
	active = append(active, s.data.Active[:idx]...)
	active = append(active, s.data.Active[idx+1:]...)

	prevActive, prevPicked := s.data.Active, s.data.Picked
	s.data.Active = active
	s.data.Picked = append(prevPicked, picked)
	if err := s.save(); err != nil {
		s.data.Active = prevActive
		s.data.Picked = prevPicked
		return Bottle{}, err
	}
	s.logger.Info("bottle picked", slog.Int64("bottle_id", picked.ID))
	return picked, nil
}

func (s *JSONStore) GetPicked(_ context.Context, id int64) (Bottle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.data.Picked {
		if b.ID == id {
			return b, nil
		}
	}
	return Bottle{}, ErrNotFound
}

func (s *JSONStore) RandomPicked(_ context.Context) (Bottle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data.Picked) == 0 {
		return Bottle{}, ErrNoBottles
	}
	return s.data.Picked[rand.Intn(len(s.data.Picked))], nil
}

func (s *JSONStore) ListPicked(_ context.Context) ([]Bottle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]Bottle, len(s.data.Picked))
	copy(items, s.data.Picked)
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *JSONStore) Counts(_ context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.Active), len(s.data.Picked), nil
}

func (s *JSONStore) ListUnuploaded(_ context.Context, uploaded func(id int64) bool, limit int) ([]Bottle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []Bottle
	for _, b := range s.data.Active {
		if !uploaded(b.ID) {
			items = append(items, b)
		}
	}
	for _, b := range s.data.Picked {
		if !uploaded(b.ID) {
			items = append(items, b)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *JSONStore) Reset(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := len(s.data.Picked)
	if restored == 0 {
		return 0, nil
	}
	active := make([]Bottle, 0, len(s.data.Active)+restored)
	active = append(active, s.data.Active...)
	for _, b := range s.data.Picked {
		b.Picked = false
		active = append(active, b)
	}

	prevActive, prevPicked := s.data.Active, s.data.Picked
	s.data.Active = active
	s.data.Picked = nil
	if err := s.save(); err != nil {
		s.data.Active = prevActive
		s.data.Picked = prevPicked
		return 0, err
	}
	s.logger.Info("picked bottles restored", slog.Int("count", restored))
	return restored, nil
}
