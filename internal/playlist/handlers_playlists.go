package playlist

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/Guliveer/song-request-sub000/internal/apperr"
	"github.com/Guliveer/song-request-sub000/internal/identity"
)

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := identity.UserID(r)

	// Public playlists, plus anything the caller hosts or joined.
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.slug, p.name, p.description, p.is_public, p.host_id, p.created_at
		FROM playlists p
		LEFT JOIN playlist_members pm ON p.id = pm.playlist_id AND pm.user_id = $1
		WHERE p.is_public = TRUE
		   OR ($1 <> '' AND p.host_id = $1)
		   OR ($1 <> '' AND pm.user_id IS NOT NULL)
		ORDER BY p.created_at DESC
		LIMIT 200
	`, userID)
	if err != nil {
		log.Printf("playlist: list playlists: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	playlists := []Playlist{}
	for rows.Next() {
		var pl Playlist
		if err := rows.Scan(&pl.ID, &pl.Slug, &pl.Name, &pl.Description, &pl.IsPublic, &pl.HostID, &pl.CreatedAt); err != nil {
			log.Printf("playlist: list playlists scan: %v", err)
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		playlists = append(playlists, pl)
	}
	if err := rows.Err(); err != nil {
		log.Printf("playlist: list playlists rows: %v", err)
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, playlists)
}

// handleCreatePlaylist creates a playlist. The creator becomes host and
// is auto-joined as a member in the same transaction.
func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hostID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}

	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Slug        string `json:"url"`
		IsPublic    *bool  `json:"isPublic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	body.Description = strings.TrimSpace(body.Description)
	body.Slug = strings.TrimSpace(body.Slug)

	if body.Name == "" || len(body.Name) > 200 {
		writeError(w, http.StatusBadRequest, "name must be between 1 and 200 characters")
		return
	}
	if len(body.Description) > 1000 {
		writeError(w, http.StatusBadRequest, "description is too long")
		return
	}
	if body.Slug == "" {
		body.Slug = slugify(body.Name)
	}

	isPublic := true
	if body.IsPublic != nil {
		isPublic = *body.IsPublic
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		writeAppError(w, apperr.Store("begin tx", err))
		return
	}
	defer tx.Rollback(ctx)

	var pl Playlist
	err = tx.QueryRow(ctx, `
		INSERT INTO playlists (slug, name, description, is_public, host_id)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, slug, name, description, is_public, host_id, created_at
	`, body.Slug, body.Name, body.Description, isPublic, hostID).Scan(
		&pl.ID, &pl.Slug, &pl.Name, &pl.Description, &pl.IsPublic, &pl.HostID, &pl.CreatedAt,
	)
	if isUniqueViolation(err) {
		writeAppError(w, apperr.Conflict("playlist url is already taken"))
		return
	}
	if err != nil {
		writeAppError(w, apperr.Store("create playlist", err))
		return
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO playlist_members (playlist_id, user_id, role)
		VALUES ($1, $2, 'member')
	`, pl.ID, hostID); err != nil {
		writeAppError(w, apperr.Store("auto-join host", err))
		return
	}

	if err := tx.Commit(ctx); err != nil {
		writeAppError(w, apperr.Store("commit create playlist", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "playlist.created",
		"payload": map[string]any{"playlist": pl},
	})

	writeJSON(w, http.StatusCreated, pl)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := identity.UserID(r)

	pl, err := s.resolvePlaylist(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}

	role, err := s.members.RoleIn(ctx, s.db, pl.ID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	// Private playlists require membership no matter how they were
	// addressed; reaching one by numeric id grants nothing extra.
	if !pl.IsPublic && !role.CanVote() {
		writeAppError(w, apperr.NotMember(pl.ID))
		return
	}

	songs, err := s.rankedQueue(ctx, pl.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"playlist": pl,
		"queue":    songs,
		"role":     role.String(),
	})
}

// handlePatchPlaylist updates name/description/visibility/url. Host only.
func (s *Server) handlePatchPlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}

	pl, err := s.resolvePlaylist(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if pl.HostID != userID {
		writeAppError(w, apperr.NotAuthorized("only the host may change playlist settings"))
		return
	}

	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Slug        *string `json:"url"`
		IsPublic    *bool   `json:"isPublic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" || len(name) > 200 {
			writeError(w, http.StatusBadRequest, "name must be between 1 and 200 characters")
			return
		}
		pl.Name = name
	}
	if body.Description != nil {
		desc := strings.TrimSpace(*body.Description)
		if len(desc) > 1000 {
			writeError(w, http.StatusBadRequest, "description is too long")
			return
		}
		pl.Description = desc
	}
	if body.Slug != nil {
		slug := strings.TrimSpace(*body.Slug)
		if slug == "" || len(slug) > 80 {
			writeError(w, http.StatusBadRequest, "url must be between 1 and 80 characters")
			return
		}
		pl.Slug = slug
	}
	if body.IsPublic != nil {
		pl.IsPublic = *body.IsPublic
	}

	_, err = s.db.Exec(ctx, `
		UPDATE playlists
		SET name = $2, description = $3, slug = $4, is_public = $5
		WHERE id = $1
	`, pl.ID, pl.Name, pl.Description, pl.Slug, pl.IsPublic)
	if isUniqueViolation(err) {
		writeAppError(w, apperr.Conflict("playlist url is already taken"))
		return
	}
	if err != nil {
		writeAppError(w, apperr.Store("update playlist", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "playlist.updated",
		"payload": map[string]any{"playlist": pl},
	})

	writeJSON(w, http.StatusOK, pl)
}

// handleDeletePlaylist removes the playlist; songs and votes go with it.
func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}

	pl, err := s.resolvePlaylist(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if pl.HostID != userID {
		writeAppError(w, apperr.NotAuthorized("only the host may delete the playlist"))
		return
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, pl.ID); err != nil {
		writeAppError(w, apperr.Store("delete playlist", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "playlist.deleted",
		"payload": map[string]any{"playlistId": pl.ID},
	})

	w.WriteHeader(http.StatusNoContent)
}
