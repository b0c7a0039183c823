package playlist

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS playlists (
          id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          slug        TEXT NOT NULL UNIQUE,
          name        TEXT NOT NULL,
          description TEXT NOT NULL DEFAULT '',
          is_public   BOOLEAN NOT NULL DEFAULT TRUE,
          host_id     TEXT NOT NULL,
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `)
	if err != nil {
		log.Printf("playlist: migrate playlists: %v", err)
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS playlist_members (
          playlist_id uuid NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
          user_id     TEXT NOT NULL,
          role        TEXT NOT NULL DEFAULT 'member',
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (playlist_id, user_id)
      )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS playlist_bans (
          playlist_id uuid NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
          user_id     TEXT NOT NULL,
          banned_by   TEXT NOT NULL DEFAULT '',
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (playlist_id, user_id)
      )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS banned_song_urls (
          playlist_id uuid NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
          url         TEXT NOT NULL,
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (playlist_id, url)
      )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS songs (
          id           uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          playlist_id  uuid NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
          title        TEXT NOT NULL,
          author       TEXT NOT NULL DEFAULT '',
          url          TEXT NOT NULL,
          submitter_id TEXT NOT NULL,
          score        INT NOT NULL DEFAULT 0,
          submitted_at TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE INDEX IF NOT EXISTS idx_songs_playlist ON songs(playlist_id)
    `); err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS votes (
          song_id  uuid NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
          user_id  TEXT NOT NULL,
          value    SMALLINT NOT NULL CHECK (value IN (-1, 1)),
          voted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (song_id, user_id)
      )
    `); err != nil {
		return err
	}

	return nil
}
