package playlist

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Guliveer/song-request-sub000/internal/apperr"
)

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
		log.Printf("playlist: %v", err)
		msg = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// resolvePlaylist loads a playlist addressed by either its uuid or its
// slug. Private playlists are gated identically on both paths; this
// only resolves the row.
func (s *Server) resolvePlaylist(ctx context.Context, idOrSlug string) (*Playlist, error) {
	column := "slug"
	if _, err := uuid.Parse(idOrSlug); err == nil {
		column = "id"
	}

	var pl Playlist
	err := s.db.QueryRow(ctx, `
		SELECT id, slug, name, description, is_public, host_id, created_at
		FROM playlists
		WHERE `+column+` = $1
	`, idOrSlug).Scan(
		&pl.ID,
		&pl.Slug,
		&pl.Name,
		&pl.Description,
		&pl.IsPublic,
		&pl.HostID,
		&pl.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("playlist")
	}
	if err != nil {
		return nil, apperr.Store("resolve playlist", err)
	}
	return &pl, nil
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a url slug from a playlist name, with a short random
// suffix so renames of same-named playlists do not collide constantly.
func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugCleaner.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "playlist"
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s + "-" + uuid.NewString()[:8]
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Server) publishEvent(ctx context.Context, event map[string]any) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("playlist: marshal event: %v", err)
		return
	}
	if err := s.rdb.Publish(ctx, "broadcast", string(data)).Err(); err != nil {
		log.Printf("playlist: publish event: %v", err)
	}
}
