package user

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS users (
          id         uuid PRIMARY KEY,
          username   TEXT NOT NULL UNIQUE,
          is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
          ban_days   INT NOT NULL DEFAULT 0,
          banned_at  TIMESTAMPTZ,
          created_at TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `)
	if err != nil {
		log.Printf("user: migrate users: %v", err)
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS user_follows (
          follower_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
          followee_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (follower_id, followee_id)
      )
    `); err != nil {
		return err
	}

	return nil
}
