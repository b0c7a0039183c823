package playlist

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/Guliveer/song-request-sub000/internal/apperr"
	"github.com/Guliveer/song-request-sub000/internal/identity"
)

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
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

	rows, err := s.db.Query(ctx, `
		SELECT user_id, role, created_at
		FROM playlist_members
		WHERE playlist_id = $1
		ORDER BY created_at ASC
	`, pl.ID)
	if err != nil {
		writeAppError(w, apperr.Store("list members", err))
		return
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Role, &m.CreatedAt); err != nil {
			writeAppError(w, apperr.Store("scan member", err))
			return
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		writeAppError(w, apperr.Store("list members rows", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hostId":  pl.HostID,
		"members": members,
	})
}

// handleJoin lets the caller join a public playlist. Private playlists
// are never joinable by discovery; the host adds members explicitly.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
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
	switch {
	case role == RoleBanned:
		writeAppError(w, apperr.NotAuthorized("you are banned from this playlist"))
		return
	case role.CanVote():
		writeAppError(w, apperr.AlreadyMember(userID))
		return
	case !pl.IsPublic:
		writeAppError(w, apperr.NotAuthorized("playlist is private"))
		return
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO playlist_members (playlist_id, user_id, role)
		VALUES ($1, $2, 'member')
		ON CONFLICT (playlist_id, user_id) DO NOTHING
	`, pl.ID, userID); err != nil {
		writeAppError(w, apperr.Store("join playlist", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "member.joined",
		"payload": map[string]any{"playlistId": pl.ID, "userId": userID},
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleAddMember lets the host add a user directly, the only path
// into a private playlist.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	target := strings.TrimSpace(chi.URLParam(r, "userId"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	pl, err := s.resolvePlaylist(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if pl.HostID != userID {
		writeAppError(w, apperr.NotAuthorized("only the host may add members"))
		return
	}

	targetRole, err := s.members.RoleIn(ctx, s.db, pl.ID, target)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if targetRole == RoleBanned {
		writeAppError(w, apperr.AlreadyBanned(target))
		return
	}
	if targetRole.CanVote() {
		writeAppError(w, apperr.AlreadyMember(target))
		return
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO playlist_members (playlist_id, user_id, role)
		VALUES ($1, $2, 'member')
		ON CONFLICT (playlist_id, user_id) DO NOTHING
	`, pl.ID, target); err != nil {
		writeAppError(w, apperr.Store("add member", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "member.joined",
		"payload": map[string]any{"playlistId": pl.ID, "userId": target},
	})

	w.WriteHeader(http.StatusNoContent)
}

// removeUserFromPlaylist cascades a departure inside tx: the user's
// submitted songs go away (their votes with them via FK), the user's
// votes on remaining songs are backed out of the cached scores, then
// the membership row is dropped.
func removeUserFromPlaylist(ctx context.Context, tx pgx.Tx, playlistID, userID string) error {
	if _, err := tx.Exec(ctx, `
		DELETE FROM songs WHERE playlist_id = $1 AND submitter_id = $2
	`, playlistID, userID); err != nil {
		return apperr.Store("delete member songs", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE songs s
		SET score = s.score - v.value
		FROM votes v
		WHERE v.song_id = s.id AND v.user_id = $2 AND s.playlist_id = $1
	`, playlistID, userID); err != nil {
		return apperr.Store("back out member votes", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM votes v
		USING songs s
		WHERE v.song_id = s.id AND v.user_id = $2 AND s.playlist_id = $1
	`, playlistID, userID); err != nil {
		return apperr.Store("delete member votes", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM playlist_members WHERE playlist_id = $1 AND user_id = $2
	`, playlistID, userID); err != nil {
		return apperr.Store("delete membership", err)
	}

	return nil
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
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
	if pl.HostID == userID {
		writeAppError(w, apperr.Conflict("host must transfer the playlist before leaving"))
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

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		writeAppError(w, apperr.Store("begin tx", err))
		return
	}
	defer tx.Rollback(ctx)

	if err := removeUserFromPlaylist(ctx, tx, pl.ID, userID); err != nil {
		writeAppError(w, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeAppError(w, apperr.Store("commit leave", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "member.left",
		"payload": map[string]any{"playlistId": pl.ID, "userId": userID},
	})

	w.WriteHeader(http.StatusNoContent)
}

// moderationGate resolves both parties' roles and applies the ladder:
// the actor must be moderator+, moderators cannot touch moderators or
// the host, nobody touches the host.
func (s *Server) moderationGate(ctx context.Context, playlistID, actorID, targetID string) (Role, error) {
	actor, err := s.members.RoleIn(ctx, s.db, playlistID, actorID)
	if err != nil {
		return RoleNone, err
	}
	if !actor.CanModerate() {
		return RoleNone, apperr.NotAuthorized("moderator or host role required")
	}
	target, err := s.members.RoleIn(ctx, s.db, playlistID, targetID)
	if err != nil {
		return RoleNone, err
	}
	if !actor.CanModerateTarget(target) {
		return RoleNone, apperr.NotAuthorized("cannot moderate this user")
	}
	return target, nil
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	target := strings.TrimSpace(chi.URLParam(r, "userId"))

	pl, err := s.resolvePlaylist(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}

	targetRole, err := s.moderationGate(ctx, pl.ID, userID, target)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !targetRole.CanVote() {
		writeAppError(w, apperr.NotMember(pl.ID))
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		writeAppError(w, apperr.Store("begin tx", err))
		return
	}
	defer tx.Rollback(ctx)

	if err := removeUserFromPlaylist(ctx, tx, pl.ID, target); err != nil {
		writeAppError(w, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeAppError(w, apperr.Store("commit kick", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "member.kicked",
		"payload": map[string]any{"playlistId": pl.ID, "userId": target, "by": userID},
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleBanUser cascades like a kick and additionally blocks re-join.
func (s *Server) handleBanUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	target := strings.TrimSpace(chi.URLParam(r, "userId"))

	pl, err := s.resolvePlaylist(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}

	targetRole, err := s.moderationGate(ctx, pl.ID, userID, target)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if targetRole == RoleBanned {
		writeAppError(w, apperr.AlreadyBanned(target))
		return
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		writeAppError(w, apperr.Store("begin tx", err))
		return
	}
	defer tx.Rollback(ctx)

	if err := removeUserFromPlaylist(ctx, tx, pl.ID, target); err != nil {
		writeAppError(w, err)
		return
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO playlist_bans (playlist_id, user_id, banned_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (playlist_id, user_id) DO NOTHING
	`, pl.ID, target, userID); err != nil {
		writeAppError(w, apperr.Store("insert ban", err))
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeAppError(w, apperr.Store("commit ban", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "member.banned",
		"payload": map[string]any{"playlistId": pl.ID, "userId": target, "by": userID},
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnbanUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	target := strings.TrimSpace(chi.URLParam(r, "userId"))

	pl, err := s.resolvePlaylist(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}

	actor, err := s.members.RoleIn(ctx, s.db, pl.ID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !actor.CanModerate() {
		writeAppError(w, apperr.NotAuthorized("moderator or host role required"))
		return
	}

	tag, err := s.db.Exec(ctx, `
		DELETE FROM playlist_bans WHERE playlist_id = $1 AND user_id = $2
	`, pl.ID, target)
	if err != nil {
		writeAppError(w, apperr.Store("delete ban", err))
		return
	}
	if tag.RowsAffected() == 0 {
		writeAppError(w, apperr.NotFound("ban"))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "member.unbanned",
		"payload": map[string]any{"playlistId": pl.ID, "userId": target, "by": userID},
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	target := strings.TrimSpace(chi.URLParam(r, "userId"))

	pl, err := s.resolvePlaylist(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if pl.HostID != userID {
		writeAppError(w, apperr.NotAuthorized("only the host may manage moderators"))
		return
	}

	targetRole, err := s.members.RoleIn(ctx, s.db, pl.ID, target)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if targetRole != RoleMember {
		writeAppError(w, apperr.Conflict("user must be a plain member to be promoted"))
		return
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE playlist_members SET role = 'moderator'
		WHERE playlist_id = $1 AND user_id = $2
	`, pl.ID, target); err != nil {
		writeAppError(w, apperr.Store("promote member", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "member.promoted",
		"payload": map[string]any{"playlistId": pl.ID, "userId": target},
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := identity.UserID(r)
	if !ok {
		writeAppError(w, apperr.AuthRequired())
		return
	}
	target := strings.TrimSpace(chi.URLParam(r, "userId"))

	pl, err := s.resolvePlaylist(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	if pl.HostID != userID {
		writeAppError(w, apperr.NotAuthorized("only the host may manage moderators"))
		return
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE playlist_members SET role = 'member'
		WHERE playlist_id = $1 AND user_id = $2 AND role = 'moderator'
	`, pl.ID, target)
	if err != nil {
		writeAppError(w, apperr.Store("demote moderator", err))
		return
	}
	if tag.RowsAffected() == 0 {
		writeAppError(w, apperr.NotFound("moderator"))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "member.demoted",
		"payload": map[string]any{"playlistId": pl.ID, "userId": target},
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleTransferHost reassigns ownership. The new host must already be
// a member; the old host stays on as a plain member.
func (s *Server) handleTransferHost(w http.ResponseWriter, r *http.Request) {
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
		writeAppError(w, apperr.NotAuthorized("only the host may transfer ownership"))
		return
	}

	var body struct {
		NewHostID string `json:"newHostId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.NewHostID = strings.TrimSpace(body.NewHostID)
	if body.NewHostID == "" || body.NewHostID == userID {
		writeError(w, http.StatusBadRequest, "newHostId must name another user")
		return
	}

	newRole, err := s.members.RoleIn(ctx, s.db, pl.ID, body.NewHostID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !newRole.CanVote() {
		writeAppError(w, apperr.NotMember(pl.ID))
		return
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE playlists SET host_id = $2 WHERE id = $1
	`, pl.ID, body.NewHostID); err != nil {
		writeAppError(w, apperr.Store("transfer host", err))
		return
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "playlist.host_transferred",
		"payload": map[string]any{"playlistId": pl.ID, "from": userID, "to": body.NewHostID},
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleBulkModeration kicks or bans a whole scope of users in one
// request. Host only. Each target runs in its own transaction; one
// failure never aborts the rest, the response lists per-item results.
func (s *Server) handleBulkModeration(w http.ResponseWriter, r *http.Request) {
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
		writeAppError(w, apperr.NotAuthorized("only the host may bulk-moderate"))
		return
	}

	var body struct {
		Action string `json:"action"` // "kick" | "ban"
		Scope  string `json:"scope"`  // "members" | "moderators" | "all"
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Action != "kick" && body.Action != "ban" {
		writeError(w, http.StatusBadRequest, `action must be "kick" or "ban"`)
		return
	}

	var roleFilter string
	switch body.Scope {
	case "members":
		roleFilter = memberRoleMember
	case "moderators":
		roleFilter = memberRoleModerator
	case "all":
		roleFilter = ""
	default:
		writeError(w, http.StatusBadRequest, `scope must be "members", "moderators" or "all"`)
		return
	}

	rows, err := s.db.Query(ctx, `
		SELECT user_id FROM playlist_members
		WHERE playlist_id = $1
		  AND user_id <> $2
		  AND ($3 = '' OR role = $3)
		ORDER BY created_at ASC
	`, pl.ID, pl.HostID, roleFilter)
	if err != nil {
		writeAppError(w, apperr.Store("list bulk targets", err))
		return
	}
	targets := []string{}
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			rows.Close()
			writeAppError(w, apperr.Store("scan bulk target", err))
			return
		}
		targets = append(targets, uid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		writeAppError(w, apperr.Store("bulk targets rows", err))
		return
	}

	results := make([]BulkResult, 0, len(targets))
	for _, target := range targets {
		if err := s.bulkRemoveOne(ctx, pl.ID, target, userID, body.Action == "ban"); err != nil {
			log.Printf("playlist: bulk %s %s: %v", body.Action, target, err)
			results = append(results, BulkResult{UserID: target, OK: false, Error: err.Error()})
			continue
		}
		results = append(results, BulkResult{UserID: target, OK: true})
	}

	s.publishEvent(ctx, map[string]any{
		"type":    "playlist.bulk_moderation",
		"payload": map[string]any{"playlistId": pl.ID, "action": body.Action, "count": len(results)},
	})

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) bulkRemoveOne(ctx context.Context, playlistID, target, actorID string, ban bool) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.Store("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := removeUserFromPlaylist(ctx, tx, playlistID, target); err != nil {
		return err
	}
	if ban {
		if _, err := tx.Exec(ctx, `
			INSERT INTO playlist_bans (playlist_id, user_id, banned_by)
			VALUES ($1, $2, $3)
			ON CONFLICT (playlist_id, user_id) DO NOTHING
		`, playlistID, target, actorID); err != nil {
			return apperr.Store("insert ban", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Store("commit bulk removal", err)
	}
	return nil
}
