// Package playlist holds the membership/role engine and the queue
// lifecycle for voting rooms: who may act in a playlist, and how songs
// enter and leave its queue.
package playlist

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/Guliveer/song-request-sub000/internal/metadata"
)

// Score read strategy. Cached reads the denormalized songs.score
// column kept in step by the vote ledger; aggregate recomputes the sum
// of vote rows on every read, for stores that cannot make the
// vote-row + score writes one transaction.
const (
	ScoreModeCached    = "cached"
	ScoreModeAggregate = "aggregate"
)

// DB is implemented by *pgxpool.Pool and mocked in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Server struct {
	db        DB
	rdb       *redis.Client
	members   *Membership
	resolver  metadata.Resolver
	scoreMode string
}

func NewServer(db DB, rdb *redis.Client, resolver metadata.Resolver, scoreMode string) *Server {
	if scoreMode != ScoreModeAggregate {
		scoreMode = ScoreModeCached
	}
	return &Server{
		db:        db,
		rdb:       rdb,
		members:   NewMembership(),
		resolver:  resolver,
		scoreMode: scoreMode,
	}
}

// Members exposes the role engine so the vote ledger authorizes
// through the same code path.
func (s *Server) Members() *Membership { return s.members }

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	s.Routes(r)
	return r
}

// Routes registers the playlist endpoints on r, so several servers can
// share one top-level router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/playlists", s.handleListPlaylists)
	r.Post("/playlists", s.handleCreatePlaylist)
	r.Get("/playlists/{id}", s.handleGetPlaylist)
	r.Patch("/playlists/{id}", s.handlePatchPlaylist)
	r.Delete("/playlists/{id}", s.handleDeletePlaylist)

	r.Get("/playlists/{id}/members", s.handleListMembers)
	r.Post("/playlists/{id}/members", s.handleJoin)
	r.Post("/playlists/{id}/members/{userId}", s.handleAddMember)
	r.Delete("/playlists/{id}/members/me", s.handleLeave)
	r.Delete("/playlists/{id}/members/{userId}", s.handleKick)

	r.Post("/playlists/{id}/bans/{userId}", s.handleBanUser)
	r.Delete("/playlists/{id}/bans/{userId}", s.handleUnbanUser)

	r.Put("/playlists/{id}/moderators/{userId}", s.handlePromote)
	r.Delete("/playlists/{id}/moderators/{userId}", s.handleDemote)
	r.Post("/playlists/{id}/host", s.handleTransferHost)
	r.Post("/playlists/{id}/moderation/bulk", s.handleBulkModeration)

	r.Get("/playlists/{id}/queue", s.handleGetQueue)
	r.Post("/playlists/{id}/songs", s.handleSubmitSong)
	r.Delete("/songs/{songId}", s.handleRemoveSong)
	r.Post("/playlists/{id}/queue/clear", s.handleClearQueue)
	r.Post("/playlists/{id}/banned-urls", s.handleBanSongURL)
	r.Get("/playlists/{id}/banned-urls", s.handleListBannedURLs)
}
