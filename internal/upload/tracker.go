// Package upload records which local bottles have been pushed to the
// cloud service, so the sync task never re-uploads them.
package upload

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

const trackerFileName = "uploaded_bottles.json"

type trackerData struct {
	UploadedIDs []int64 `json:"uploaded_ids"`
	LastUpload  string  `json:"last_upload"`
}

// Tracker is a one-way set of uploaded bottle IDs backed by a JSON file.
// Marking is monotonic: there is no way to un-upload.
type Tracker struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	ids  map[int64]struct{}
	last time.Time
}

// NewTracker opens (or creates) the tracker file under dataDir. An
// unreadable file degrades to an empty set with a logged error.
func NewTracker(log *slog.Logger, dataDir string) (*Tracker, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	t := &Tracker{
		path:   filepath.Join(dataDir, trackerFileName),
		logger: log.With(slog.String("component", "upload-tracker")),
		ids:    map[int64]struct{}{},
	}
	t.load()
	return t, nil
}

func (t *Tracker) load() {
	raw, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.Error("read tracker file failed", slog.Any("error", err))
		}
		return
	}
	var data trackerData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.logger.Error("decode tracker file failed", slog.Any("error", err))
		return
	}
	for _, id := range data.UploadedIDs {
		t.ids[id] = struct{}{}
	}
	if data.LastUpload != "" {
		if ts, err := time.Parse(time.RFC3339, data.LastUpload); err == nil {
			t.last = ts
		}
	}
}

// save writes the tracker under the mutex held by the caller.
func (t *Tracker) save() error {
	data := trackerData{UploadedIDs: make([]int64, 0, len(t.ids))}
	for id := range t.ids {
		data.UploadedIDs = append(data.UploadedIDs, id)
	}
	// Keep the file diffable.
	slices.Sort(data.UploadedIDs)
	if !t.last.IsZero() {
		data.LastUpload = t.last.Format(time.RFC3339)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tracker: %w", err)
	}
	if err := os.WriteFile(t.path, raw, 0o644); err != nil {
		return fmt.Errorf("write tracker file: %w", err)
	}
	return nil
}

// MarkUploaded records the bottle ID and bumps the last-upload timestamp.
// Marking an already-uploaded ID is a no-op.
func (t *Tracker) MarkUploaded(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.ids[id]; ok {
		return nil
	}
	t.ids[id] = struct{}{}
	t.last = time.Now().UTC()
	return t.save()
}

// IsUploaded reports whether the bottle ID has been uploaded.
func (t *Tracker) IsUploaded(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}

// UploadedCount returns how many bottles have been uploaded.
func (t *Tracker) UploadedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

// LastUpload returns the time of the most recent mark, if any.
func (t *Tracker) LastUpload() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, !t.last.IsZero()
}
