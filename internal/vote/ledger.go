// Package vote is the ledger for song votes: at most one active vote
// per (song, user), cast/flip/retract applied as a signed delta to the
// song's cached score inside a single transaction.
package vote

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Guliveer/song-request-sub000/internal/apperr"
	"github.com/Guliveer/song-request-sub000/internal/playlist"
)

// DB is implemented by *pgxpool.Pool and mocked in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Ledger struct {
	db        DB
	members   *playlist.Membership
	scoreMode string
}

func NewLedger(db DB, members *playlist.Membership, scoreMode string) *Ledger {
	if scoreMode != playlist.ScoreModeAggregate {
		scoreMode = playlist.ScoreModeCached
	}
	return &Ledger{db: db, members: members, scoreMode: scoreMode}
}

// Cast records a vote of value (+1 or -1) by userID on songID and
// returns the song's new score. Casting the value already held toggles
// the vote off; casting the opposite value flips it (delta 2*value).
// The vote row and the score update commit together or not at all.
func (l *Ledger) Cast(ctx context.Context, songID, userID string, value int) (int, error) {
	if value != 1 && value != -1 {
		return 0, apperr.InvalidVote(value)
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, apperr.Store("begin tx", err)
	}
	defer tx.Rollback(ctx)

	playlistID, err := lockSong(ctx, tx, songID)
	if err != nil {
		return 0, err
	}

	// Membership is checked before any write lands.
	role, err := l.members.RoleIn(ctx, tx, playlistID, userID)
	if err != nil {
		return 0, err
	}
	if !role.CanVote() {
		return 0, apperr.NotMember(playlistID)
	}

	previous, err := currentVote(ctx, tx, songID, userID)
	if err != nil {
		return 0, err
	}

	var delta int
	switch previous {
	case value:
		// Toggle off.
		if _, err := tx.Exec(ctx, `
			DELETE FROM votes WHERE song_id = $1 AND user_id = $2
		`, songID, userID); err != nil {
			return 0, apperr.Store("delete vote", err)
		}
		delta = -value
	case 0:
		if _, err := tx.Exec(ctx, `
			INSERT INTO votes (song_id, user_id, value)
			VALUES ($1, $2, $3)
		`, songID, userID, value); err != nil {
			return 0, apperr.Store("insert vote", err)
		}
		delta = value
	default:
		// Flip: remove the old effect and apply the new one.
		if _, err := tx.Exec(ctx, `
			UPDATE votes SET value = $3, voted_at = now()
			WHERE song_id = $1 AND user_id = $2
		`, songID, userID, value); err != nil {
			return 0, apperr.Store("update vote", err)
		}
		delta = 2 * value
	}

	newScore, err := l.applyDelta(ctx, tx, songID, delta)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, apperr.Store("commit cast", err)
	}
	return newScore, nil
}

// Retract removes the caller's vote on songID, if any, and returns the
// resulting score. Retracting a vote that does not exist is a no-op.
func (l *Ledger) Retract(ctx context.Context, songID, userID string) (int, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, apperr.Store("begin tx", err)
	}
	defer tx.Rollback(ctx)

	playlistID, err := lockSong(ctx, tx, songID)
	if err != nil {
		return 0, err
	}

	role, err := l.members.RoleIn(ctx, tx, playlistID, userID)
	if err != nil {
		return 0, err
	}
	if !role.CanVote() {
		return 0, apperr.NotMember(playlistID)
	}

	previous, err := currentVote(ctx, tx, songID, userID)
	if err != nil {
		return 0, err
	}
	if previous == 0 {
		score, err := l.currentScore(ctx, tx, songID)
		if err != nil {
			return 0, err
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, apperr.Store("commit retract", err)
		}
		return score, nil
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM votes WHERE song_id = $1 AND user_id = $2
	`, songID, userID); err != nil {
		return 0, apperr.Store("delete vote", err)
	}

	newScore, err := l.applyDelta(ctx, tx, songID, -previous)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, apperr.Store("commit retract", err)
	}
	return newScore, nil
}

// lockSong pins the song row for the rest of the transaction so two
// concurrent casts on the same song serialize at the store.
func lockSong(ctx context.Context, tx pgx.Tx, songID string) (string, error) {
	var playlistID string
	err := tx.QueryRow(ctx, `
		SELECT playlist_id FROM songs WHERE id = $1 FOR UPDATE
	`, songID).Scan(&playlistID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.NotFound("song")
	}
	if err != nil {
		return "", apperr.Store("lock song", err)
	}
	return playlistID, nil
}

func currentVote(ctx context.Context, tx pgx.Tx, songID, userID string) (int, error) {
	var value int
	err := tx.QueryRow(ctx, `
		SELECT value FROM votes WHERE song_id = $1 AND user_id = $2 FOR UPDATE
	`, songID, userID).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Store("read vote", err)
	}
	return value, nil
}

func (l *Ledger) applyDelta(ctx context.Context, tx pgx.Tx, songID string, delta int) (int, error) {
	if l.scoreMode == playlist.ScoreModeAggregate {
		// Fallback for stores without multi-write transactions: the
		// cache column is not maintained, reads sum the vote rows.
		var score int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(value), 0) FROM votes WHERE song_id = $1
		`, songID).Scan(&score); err != nil {
			return 0, apperr.Store("aggregate score", err)
		}
		return score, nil
	}

	var score int
	if err := tx.QueryRow(ctx, `
		UPDATE songs SET score = score + $2 WHERE id = $1 RETURNING score
	`, songID, delta).Scan(&score); err != nil {
		return 0, apperr.Store("apply score delta", err)
	}
	return score, nil
}

func (l *Ledger) currentScore(ctx context.Context, tx pgx.Tx, songID string) (int, error) {
	if l.scoreMode == playlist.ScoreModeAggregate {
		var score int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(value), 0) FROM votes WHERE song_id = $1
		`, songID).Scan(&score); err != nil {
			return 0, apperr.Store("aggregate score", err)
		}
		return score, nil
	}
	var score int
	if err := tx.QueryRow(ctx, `
		SELECT score FROM songs WHERE id = $1
	`, songID).Scan(&score); err != nil {
		return 0, apperr.Store("read score", err)
	}
	return score, nil
}

// Reconcile rewrites every cached score that drifted from the sum of
// its vote rows and reports how many songs were fixed. Zero means the
// score invariant held.
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	tag, err := l.db.Exec(ctx, `
		UPDATE songs s
		SET score = v.total
		FROM (SELECT song_id, SUM(value) AS total FROM votes GROUP BY song_id) v
		WHERE v.song_id = s.id AND s.score <> v.total
	`)
	if err != nil {
		return 0, apperr.Store("reconcile voted songs", err)
	}
	fixed := int(tag.RowsAffected())

	tag, err = l.db.Exec(ctx, `
		UPDATE songs s
		SET score = 0
		WHERE s.score <> 0
		  AND NOT EXISTS (SELECT 1 FROM votes v WHERE v.song_id = s.id)
	`)
	if err != nil {
		return 0, apperr.Store("reconcile unvoted songs", err)
	}
	return fixed + int(tag.RowsAffected()), nil
}

// SongTally is one song's aggregate in a playlist-wide tally.
type SongTally struct {
	SongID    string `json:"songId"`
	Score     int    `json:"score"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}

// TallyPlaylist aggregates the vote rows of every song in playlistID.
// Songs without votes appear with all-zero counts.
func (l *Ledger) TallyPlaylist(ctx context.Context, playlistID string) ([]SongTally, error) {
	rows, err := l.db.Query(ctx, `
		SELECT s.id,
		       COALESCE(SUM(v.value), 0),
		       COUNT(v.value) FILTER (WHERE v.value = 1),
		       COUNT(v.value) FILTER (WHERE v.value = -1)
		FROM songs s
		LEFT JOIN votes v ON v.song_id = s.id
		WHERE s.playlist_id = $1
		GROUP BY s.id
		ORDER BY s.id
	`, playlistID)
	if err != nil {
		return nil, apperr.Store("tally playlist", err)
	}
	defer rows.Close()

	tallies := []SongTally{}
	for rows.Next() {
		var t SongTally
		if err := rows.Scan(&t.SongID, &t.Score, &t.Upvotes, &t.Downvotes); err != nil {
			return nil, apperr.Store("scan tally", err)
		}
		tallies = append(tallies, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("tally playlist rows", err)
	}
	return tallies, nil
}

// Tally returns the score plus up/down counts for one song.
func (l *Ledger) Tally(ctx context.Context, songID string) (score, up, down int, err error) {
	err = l.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(value), 0),
		       COUNT(*) FILTER (WHERE value = 1),
		       COUNT(*) FILTER (WHERE value = -1)
		FROM votes
		WHERE song_id = $1
	`, songID).Scan(&score, &up, &down)
	if err != nil {
		return 0, 0, 0, apperr.Store("tally votes", err)
	}
	return score, up, down, nil
}
