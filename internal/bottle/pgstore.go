package bottle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the PostgreSQL-backed bottle collection. ID assignment keeps
// the max-plus-one scheme of the JSON store so data can move between
// backends without renumbering.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGStore wraps an open pool. The schema is managed by the embedded
// migrations (see the migrate subcommand).
func NewPGStore(log *slog.Logger, pool *pgxpool.Pool) *PGStore {
	if log == nil {
		log = slog.Default()
	}
	return &PGStore{
		pool:   pool,
		logger: log.With(slog.String("store", "postgres")),
	}
}

const bottleColumns = "id, content, images, sender, sender_id, picked, created_at"

func scanBottle(row pgx.Row) (Bottle, error) {
	var b Bottle
	err := row.Scan(&b.ID, &b.Content, &b.Images, &b.Sender, &b.SenderID, &b.Picked, &b.CreatedAt)
	return b, err
}

func (s *PGStore) Add(ctx context.Context, b Bottle) (int64, error) {
	if b.IsEmpty() {
		return 0, ErrEmptyBottle
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.Images == nil {
		b.Images = []Image{}
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bottles (id, content, images, sender, sender_id, picked, created_at)
		SELECT COALESCE(MAX(id), 0) + 1, $1, $2, $3, $4, FALSE, $5 FROM bottles
		RETURNING id`,
		b.Content, b.Images, b.Sender, b.SenderID, b.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert bottle: %w", err)
	}
	s.logger.Info("bottle added", slog.Int64("bottle_id", id))
	return id, nil
}

func (s *PGStore) PickRandom(ctx context.Context) (Bottle, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE bottles SET picked = TRUE
		WHERE id = (
			SELECT id FROM bottles WHERE NOT picked ORDER BY random() LIMIT 1
		)
		RETURNING `+bottleColumns)
	b, err := scanBottle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bottle{}, ErrNoBottles
		}
		return Bottle{}, fmt.Errorf("pick bottle: %w", err)
	}
	s.logger.Info("bottle picked", slog.Int64("bottle_id", b.ID))
	return b, nil
}

func (s *PGStore) GetPicked(ctx context.Context, id int64) (Bottle, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+bottleColumns+" FROM bottles WHERE id = $1 AND picked", id)
	b, err := scanBottle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bottle{}, ErrNotFound
		}
		return Bottle{}, fmt.Errorf("get picked bottle: %w", err)
	}
	return b, nil
}

func (s *PGStore) RandomPicked(ctx context.Context) (Bottle, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+bottleColumns+" FROM bottles WHERE picked ORDER BY random() LIMIT 1")
	b, err := scanBottle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bottle{}, ErrNoBottles
		}
		return Bottle{}, fmt.Errorf("random picked bottle: %w", err)
	}
	return b, nil
}

func (s *PGStore) ListPicked(ctx context.Context) ([]Bottle, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+bottleColumns+" FROM bottles WHERE picked ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list picked bottles: %w", err)
	}
	defer rows.Close()

	var items []Bottle
	for rows.Next() {
		b, err := scanBottle(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (s *PGStore) Counts(ctx context.Context) (int, int, error) {
	var active, picked int
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE NOT picked),
			COUNT(*) FILTER (WHERE picked)
		FROM bottles`).Scan(&active, &picked)
	if err != nil {
		return 0, 0, fmt.Errorf("count bottles: %w", err)
	}
	return active, picked, nil
}

func (s *PGStore) ListUnuploaded(ctx context.Context, uploaded func(id int64) bool, limit int) ([]Bottle, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+bottleColumns+" FROM bottles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list bottles: %w", err)
	}
	defer rows.Close()

	var items []Bottle
	for rows.Next() {
		b, err := scanBottle(rows)
		if err != nil {
			return nil, err
		}
		if uploaded(b.ID) {
			continue
		}
		items = append(items, b)
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, rows.Err()
}

func (s *PGStore) Reset(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, "UPDATE bottles SET picked = FALSE WHERE picked")
	if err != nil {
		return 0, fmt.Errorf("reset bottles: %w", err)
	}
	restored := int(tag.RowsAffected())
	if restored > 0 {
		s.logger.Info("picked bottles restored", slog.Int("count", restored))
	}
	return restored, nil
}
