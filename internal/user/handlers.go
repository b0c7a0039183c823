package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Guliveer/song-request-sub000/internal/apperr"
	"github.com/Guliveer/song-request-sub000/internal/identity"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

// handleRegister creates an account. Usernames are unique; the check is
// enforced by the store's unique index, not a racy pre-read.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.Username = strings.TrimSpace(body.Username)
	if !usernameRe.MatchString(body.Username) {
		writeError(w, http.StatusBadRequest, "username must be 3-32 chars of letters, digits, _ . -")
		return
	}

	var u User
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (id, username)
		VALUES ($1, $2)
		RETURNING id, username, is_admin, ban_days, created_at
	`, uuid.NewString(), body.Username).Scan(&u.ID, &u.Username, &u.IsAdmin, &u.BanDays, &u.CreatedAt)
	if isUniqueViolation(err) {
		writeAppError(w, apperr.Conflict("username is already taken"))
		return
	}
	if err != nil {
		writeAppError(w, apperr.Store("insert user", err))
		return
	}

	s.publishEvent(ctx, "user.registered", map[string]any{"userId": u.ID, "username": u.Username})

	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var p Profile
	err := s.db.QueryRow(ctx, `
		SELECT id, username, is_admin, ban_days, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Username, &p.IsAdmin, &p.BanDays, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeAppError(w, apperr.NotFound("user"))
		return
	}
	if err != nil {
		writeAppError(w, apperr.Store("load user", err))
		return
	}

	p.FollowedUsers, err = s.collectIDs(ctx, `
		SELECT followee_id FROM user_follows WHERE follower_id = $1 ORDER BY created_at
	`, id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	p.JoinedPlaylists, err = s.collectIDs(ctx, `
		SELECT playlist_id::text FROM playlist_members WHERE user_id = $1 ORDER BY created_at
	`, id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *Server) collectIDs(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, apperr.Store("collect ids", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Store("scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("collect ids rows", err)
	}
	return ids, nil
}

// handleBanUser sets a platform-level ban of N days. Admin only; the
// identity gateway is the authority on who is an admin.
func (s *Server) handleBanUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}

	isAdmin, err := s.admins.IsAdmin(ctx, actorID)
	if err != nil {
		writeAppError(w, apperr.Store("admin check", err))
		return
	}
	if !isAdmin {
		writeAppError(w, apperr.NotAuthorized("admin rights required"))
		return
	}

	var body struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Days <= 0 || body.Days > 3650 {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 3650")
		return
	}

	target := strings.TrimSpace(chi.URLParam(r, "id"))
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET ban_days = $2, banned_at = now() WHERE id = $1
	`, target, body.Days)
	if err != nil {
		writeAppError(w, apperr.Store("ban user", err))
		return
	}
	if tag.RowsAffected() == 0 {
		writeAppError(w, apperr.NotFound("user"))
		return
	}

	s.publishEvent(ctx, "user.banned", map[string]any{"userId": target, "days": body.Days, "by": actorID})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnbanUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}

	isAdmin, err := s.admins.IsAdmin(ctx, actorID)
	if err != nil {
		writeAppError(w, apperr.Store("admin check", err))
		return
	}
	if !isAdmin {
		writeAppError(w, apperr.NotAuthorized("admin rights required"))
		return
	}

	target := strings.TrimSpace(chi.URLParam(r, "id"))
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET ban_days = 0, banned_at = NULL WHERE id = $1
	`, target)
	if err != nil {
		writeAppError(w, apperr.Store("unban user", err))
		return
	}
	if tag.RowsAffected() == 0 {
		writeAppError(w, apperr.NotFound("user"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	target := strings.TrimSpace(chi.URLParam(r, "id"))
	if target == "" || target == me {
		writeError(w, http.StatusBadRequest, "invalid target user")
		return
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO user_follows (follower_id, followee_id)
		SELECT $1, $2 WHERE EXISTS (SELECT 1 FROM users WHERE id = $2)
		ON CONFLICT (follower_id, followee_id) DO NOTHING
	`, me, target)
	if err != nil {
		writeAppError(w, apperr.Store("follow user", err))
		return
	}
	if tag.RowsAffected() == 0 {
		// Either the target does not exist or the follow already does;
		// distinguish for the caller.
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, target).Scan(&exists); err != nil {
			writeAppError(w, apperr.Store("check user", err))
			return
		}
		if !exists {
			writeAppError(w, apperr.NotFound("user"))
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	target := strings.TrimSpace(chi.URLParam(r, "id"))

	tag, err := s.db.Exec(ctx, `
		DELETE FROM user_follows WHERE follower_id = $1 AND followee_id = $2
	`, me, target)
	if err != nil {
		writeAppError(w, apperr.Store("unfollow user", err))
		return
	}
	if tag.RowsAffected() == 0 {
		writeAppError(w, apperr.NotFound("follow"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
