package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/jose-valero/locked-vc-bot/internal/domain"
)

type RoomRepo struct{ db *sql.DB }

func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

// Upsert por id de canal; la sala entera se reescribe.
func (r *RoomRepo) Upsert(ctx context.Context, rm domain.Room) error {
	bans, err := json.Marshal(rm.Bans)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO rooms
  (id, guild_id, owner_id, mode, ban_set, hub_message_id, thread_id, panel_message_id, mute_knock_pings, created_at, last_seen_occupied)
VALUES
  ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  owner_id         = EXCLUDED.owner_id,
  mode             = EXCLUDED.mode,
  ban_set          = EXCLUDED.ban_set,
  hub_message_id   = EXCLUDED.hub_message_id,
  thread_id        = EXCLUDED.thread_id,
  panel_message_id = EXCLUDED.panel_message_id,
  mute_knock_pings = EXCLUDED.mute_knock_pings,
  last_seen_occupied = EXCLUDED.last_seen_occupied
`, rm.ID, rm.GuildID, rm.OwnerID, rm.Mode.String(), string(bans),
		rm.HubMessageID, rm.ThreadID, rm.PanelMessageID, rm.MuteKnockPings,
		rm.CreatedAt, rm.LastSeenOccupied)
	return err
}

func (r *RoomRepo) Get(ctx context.Context, id string) (domain.Room, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, guild_id, owner_id, mode, ban_set, hub_message_id, thread_id,
       panel_message_id, mute_knock_pings, created_at, last_seen_occupied
  FROM rooms
 WHERE id = $1
`, id)
	rm, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrNotFound
	}
	return rm, err
}

func (r *RoomRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	return err
}

// ListAll carga todo el estado persistido. Filas corruptas se descartan
// una por una con warning en vez de tirar el restore completo.
func (r *RoomRepo) ListAll(ctx context.Context) ([]domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, guild_id, owner_id, mode, ban_set, hub_message_id, thread_id,
       panel_message_id, mute_knock_pings, created_at, last_seen_occupied
  FROM rooms
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			log.Printf("[storage] fila de sala corrupta, descartada: %v", err)
			continue
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *RoomRepo) TouchOccupied(ctx context.Context, id string, t time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE rooms SET last_seen_occupied = $1 WHERE id = $2
`, t, id)
	return err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRoom(row rowScanner) (domain.Room, error) {
	var rm domain.Room
	var mode, bans string
	if err := row.Scan(&rm.ID, &rm.GuildID, &rm.OwnerID, &mode, &bans,
		&rm.HubMessageID, &rm.ThreadID, &rm.PanelMessageID, &rm.MuteKnockPings,
		&rm.CreatedAt, &rm.LastSeenOccupied); err != nil {
		return domain.Room{}, err
	}
	m, err := domain.ParseMode(mode)
	if err != nil {
		return domain.Room{}, err
	}
	rm.Mode = m
	if err := json.Unmarshal([]byte(bans), &rm.Bans); err != nil {
		return domain.Room{}, err
	}
	return rm, nil
}
