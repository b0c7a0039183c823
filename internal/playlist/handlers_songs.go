package playlist

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/Guliveer/song-request-sub000/internal/apperr"
	"github.com/Guliveer/song-request-sub000/internal/identity"
	"github.com/Guliveer/song-request-sub000/internal/rank"
)

// rankedQueue loads the playlist's songs and orders them. Rank is
// computed fresh on every read, never persisted.
func (s *Server) rankedQueue(ctx context.Context, playlistID string) ([]Song, error) {
	scoreExpr := "sg.score"
	if s.scoreMode == ScoreModeAggregate {
		scoreExpr = "COALESCE((SELECT SUM(v.value) FROM votes v WHERE v.song_id = sg.id), 0)"
	}

	rows, err := s.db.Query(ctx, `
		SELECT sg.id, sg.playlist_id, sg.title, sg.author, sg.url, sg.submitter_id,
		       `+scoreExpr+` AS score, sg.submitted_at
		FROM songs sg
		WHERE sg.playlist_id = $1
	`, playlistID)
	if err != nil {
		return nil, apperr.Store("list songs", err)
	}
	defer rows.Close()

	byID := map[string]Song{}
	entries := []rank.Entry{}
	for rows.Next() {
		var sg Song
		if err := rows.Scan(&sg.ID, &sg.PlaylistID, &sg.Title, &sg.Author, &sg.URL, &sg.SubmitterID, &sg.Score, &sg.SubmittedAt); err != nil {
			return nil, apperr.Store("scan song", err)
		}
		byID[sg.ID] = sg
		entries = append(entries, rank.Entry{ID: sg.ID, Score: sg.Score, SubmittedAt: sg.SubmittedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list songs rows", err)
	}

	ordered := rank.Order(entries)
	songs := make([]Song, 0, len(ordered))
	for _, r := range ordered {
		sg := byID[r.ID]
		sg.Rank = r.Rank
		songs = append(songs, sg)
	}
	return songs, nil
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
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
	if !pl.IsPublic && !role.CanVote() {
		writeAppError(w, apperr.NotMember(pl.ID))
		return
	}

	songs, err := s.rankedQueue(ctx, pl.ID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"queue": songs})
}

// handleSubmitSong adds a song to the queue. Members only; URLs on the
// playlist's ban list are rejected before any write. The metadata
// service fills in missing title/author but never blocks a submission.
func (s *Server) handleSubmitSong(w http.ResponseWriter, r *http.Request) {
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

	role, err := s.members.RoleIn(ctx, s.db, pl.ID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !role.CanVote() {
		writeAppError(w, apperr.NotMember(pl.ID))
		return
	}

	var body struct {
		Title  string `json:"title"`
		Author string `json:"author"`
		URL    string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	body.Title = strings.TrimSpace(body.Title)
	body.Author = strings.TrimSpace(body.Author)

	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if u, err := url.Parse(body.URL); err != nil || u.Scheme == "" || u.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be absolute")
		return
	}

	var banned bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM banned_song_urls WHERE playlist_id = $1 AND url = $2)
	`, pl.ID, body.URL).Scan(&banned); err != nil {
		writeAppError(w, apperr.Store("check banned url", err))
		return
	}
	if banned {
		writeAppError(w, apperr.SongBanned(body.URL))
		return
	}

	if (body.Title == "" || body.Author == "") && s.resolver != nil {
		if tr, err := s.resolver.ResolveTrack(ctx, body.URL); err != nil {
			log.Printf("playlist: resolve track %s: %v", body.URL, err)
		} else if tr != nil {
			if body.Title == "" {
				body.Title = tr.Title
			}
			if body.Author == "" {
				body.Author = tr.Author
			}
		}
	}
	if body.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required when the url cannot be resolved")
		return
	}

	var sg Song
	err = s.db.QueryRow(ctx, `
		INSERT INTO songs (playlist_id, title, author, url, submitter_id)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, playlist_id, title, author, url, submitter_id, score, submitted_at
	`, pl.ID, body.Title, body.Author, body.URL, userID).Scan(
		&sg.ID, &sg.PlaylistID, &sg.Title, &sg.Author, &sg.URL, &sg.SubmitterID, &sg.Score, &sg.SubmittedAt,
	)
	if err != nil {
		writeAppError(w, apperr.Store("insert song", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "song.submitted",
		"payload": map[string]any{"playlistId": pl.ID, "song": sg},
	})

	writeJSON(w, http.StatusCreated, sg)
}

// handleRemoveSong deletes one queue entry; its votes cascade with it.
// Allowed for the submitter, moderators and the host.
func (s *Server) handleRemoveSong(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	songID := chi.URLParam(r, "songId")

	var playlistID, submitterID string
	err := s.db.QueryRow(ctx, `
		SELECT playlist_id, submitter_id FROM songs WHERE id = $1
	`, songID).Scan(&playlistID, &submitterID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeAppError(w, apperr.NotFound("song"))
		return
	}
	if err != nil {
		writeAppError(w, apperr.Store("load song", err))
		return
	}

	role, err := s.members.RoleIn(ctx, s.db, playlistID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if userID != submitterID && !role.CanModerate() {
		writeAppError(w, apperr.NotAuthorized("only the submitter, a moderator or the host may remove a song"))
		return
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM songs WHERE id = $1`, songID); err != nil {
		writeAppError(w, apperr.Store("delete song", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "song.removed",
		"payload": map[string]any{"playlistId": playlistID, "songId": songID},
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleClearQueue wipes the playlist's queue. Votes cascade with the
// songs, so no orphaned vote rows survive.
func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
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

	role, err := s.members.RoleIn(ctx, s.db, pl.ID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !role.CanModerate() {
		writeAppError(w, apperr.NotAuthorized("moderator or host role required"))
		return
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM songs WHERE playlist_id = $1`, pl.ID); err != nil {
		writeAppError(w, apperr.Store("clear queue", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "queue.cleared",
		"payload": map[string]any{"playlistId": pl.ID, "by": userID},
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleBanSongURL puts a URL on the playlist's ban list and removes
// matching queue entries in the same transaction; both effects land
// together or not at all.
func (s *Server) handleBanSongURL(w http.ResponseWriter, r *http.Request) {
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

	role, err := s.members.RoleIn(ctx, s.db, pl.ID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !role.CanModerate() {
		writeAppError(w, apperr.NotAuthorized("moderator or host role required"))
		return
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		writeAppError(w, apperr.Store("begin tx", err))
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO banned_song_urls (playlist_id, url)
		VALUES ($1, $2)
		ON CONFLICT (playlist_id, url) DO NOTHING
	`, pl.ID, body.URL); err != nil {
		writeAppError(w, apperr.Store("insert banned url", err))
		return
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM songs WHERE playlist_id = $1 AND url = $2
	`, pl.ID, body.URL); err != nil {
		writeAppError(w, apperr.Store("delete banned songs", err))
		return
	}

	if err := tx.Commit(ctx); err != nil {
		writeAppError(w, apperr.Store("commit ban url", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "song.url_banned",
		"payload": map[string]any{"playlistId": pl.ID, "url": body.URL, "by": userID},
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBannedURLs(w http.ResponseWriter, r *http.Request) {
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
	if !role.CanModerate() {
		writeAppError(w, apperr.NotAuthorized("moderator or host role required"))
		return
	}

	rows, err := s.db.Query(ctx, `
		SELECT url FROM banned_song_urls WHERE playlist_id = $1 ORDER BY created_at ASC
	`, pl.ID)
	if err != nil {
		writeAppError(w, apperr.Store("list banned urls", err))
		return
	}
	defer rows.Close()

	urls := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			writeAppError(w, apperr.Store("scan banned url", err))
			return
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		writeAppError(w, apperr.Store("banned urls rows", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"urls": urls})
}
