package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

type PresetRepo struct{ db *sql.DB }

func NewPresetRepo(db *sql.DB) *PresetRepo { return &PresetRepo{db: db} }

func (r *PresetRepo) Upsert(ctx context.Context, ownerID string, p domain.Preset) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO presets (owner_id, name, data, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (owner_id, name) DO UPDATE SET
  data       = EXCLUDED.data,
  updated_at = NOW()
`, ownerID, p.Name, string(data))
	return err
}

func (r *PresetRepo) Get(ctx context.Context, ownerID, name string) (domain.Preset, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT data FROM presets WHERE owner_id = $1 AND name = $2
`, ownerID, name)
	var raw string
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Preset{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Preset{}, err
	}
	var p domain.Preset
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Preset{}, domain.ErrCorrupted
	}
	return p, nil
}

func (r *PresetRepo) Delete(ctx context.Context, ownerID, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM presets WHERE owner_id = $1 AND name = $2
`, ownerID, name)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *PresetRepo) ListNames(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT name FROM presets WHERE owner_id = $1 ORDER BY name
`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PresetRepo) Count(ctx context.Context, ownerID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM presets WHERE owner_id = $1
`, ownerID)
	var n int
	err := row.Scan(&n)
	return n, err
}
