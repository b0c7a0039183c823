package vote

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/Guliveer/song-request-sub000/internal/apperr"
	"github.com/Guliveer/song-request-sub000/internal/identity"
)

type Server struct {
	ledger *Ledger
	rdb    *redis.Client
}

func NewServer(ledger *Ledger, rdb *redis.Client) *Server {
	return &Server{ledger: ledger, rdb: rdb}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	s.Routes(r)
	return r
}

// Routes registers the vote endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/songs/{songId}/vote", s.handleCastVote)
	r.Delete("/songs/{songId}/vote", s.handleRetractVote)
	r.Get("/songs/{songId}/votes", s.handleTally)
	// Param name matches the playlist routes sharing the router in main.
	r.Get("/playlists/{id}/votes", s.handlePlaylistTally)
	r.Post("/internal/votes/reconcile", s.handleReconcile)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	songID := chi.URLParam(r, "songId")

	var body struct {
		Value int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	newScore, err := s.ledger.Cast(ctx, songID, userID, body.Value)
	if err != nil {
		writeAppError(w, err)
		return
	}

	s.publishEvent(ctx, "vote.cast", map[string]any{
		"songId": songID,
		"userId": userID,
		"value":  body.Value,
		"score":  newScore,
	})

	writeJSON(w, http.StatusOK, map[string]any{"songId": songID, "score": newScore})
}

func (s *Server) handleRetractVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	songID := chi.URLParam(r, "songId")

	newScore, err := s.ledger.Retract(ctx, songID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	s.publishEvent(ctx, "vote.retracted", map[string]any{
		"songId": songID,
		"userId": userID,
		"score":  newScore,
	})

	writeJSON(w, http.StatusOK, map[string]any{"songId": songID, "score": newScore})
}

func (s *Server) handleTally(w http.ResponseWriter, r *http.Request) {
	songID := chi.URLParam(r, "songId")

	score, up, down, err := s.ledger.Tally(r.Context(), songID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"songId":    songID,
		"score":     score,
		"upvotes":   up,
		"downvotes": down,
	})
}

func (s *Server) handlePlaylistTally(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "id")

	tallies, err := s.ledger.TallyPlaylist(r.Context(), playlistID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"playlistId": playlistID,
		"songs":      tallies,
	})
}

// handleReconcile is the internal consistency check: it forces every
// cached score back to the sum of its vote rows.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	fixed, err := s.ledger.Reconcile(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if fixed > 0 {
		log.Printf("vote: reconcile fixed %d song scores", fixed)
	}
	writeJSON(w, http.StatusOK, map[string]any{"fixed": fixed})
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
		log.Printf("vote: %v", err)
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
		log.Printf("vote: publish event: %v", err)
	}
}
