// Package user manages accounts: registration, platform-level bans,
// follow relations and the joined-playlists view.
package user

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/Guliveer/song-request-sub000/internal/apperr"
)

// DB is implemented by *pgxpool.Pool and mocked with pgxmock in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AdminChecker answers whether a user holds platform admin rights.
// Implemented by the identity gateway client.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type Server struct {
	db     DB
	rdb    *redis.Client
	admins AdminChecker
}

func NewServer(db DB, rdb *redis.Client, admins AdminChecker) *Server {
	return &Server{db: db, rdb: rdb, admins: admins}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	s.Routes(r)
	return r
}

// Routes registers the user endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/users", s.handleRegister)
	r.Get("/users/{id}", s.handleGetUser)
	r.Post("/users/{id}/ban", s.handleBanUser)
	r.Delete("/users/{id}/ban", s.handleUnbanUser)
	r.Post("/users/{id}/follow", s.handleFollow)
	r.Delete("/users/{id}/follow", s.handleUnfollow)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("user: %v", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) publishEvent(ctx context.Context, eventType string, payload any) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(map[string]any{"type": eventType, "payload": payload})
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, "broadcast", string(data)).Err(); err != nil {
		log.Printf("user: publish event: %v", err)
	}
}
