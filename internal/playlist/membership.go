package playlist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Guliveer/song-request-sub000/internal/apperr"
)

// Role is a user's standing in one playlist, ascending privilege.
type Role int

const (
	RoleBanned Role = iota
	RoleNone
	RoleMember
	RoleModerator
	RoleHost
)

func (r Role) String() string {
	switch r {
	case RoleBanned:
		return "banned"
	case RoleMember:
		return "member"
	case RoleModerator:
		return "moderator"
	case RoleHost:
		return "host"
	default:
		return "none"
	}
}

// CanVote reports whether the role may vote or submit songs.
func (r Role) CanVote() bool { return r >= RoleMember }

// CanModerate reports whether the role may kick/ban ordinary members.
func (r Role) CanModerate() bool { return r >= RoleModerator }

// CanModerateTarget applies the moderation ladder: moderators reach
// only plain members, the host reaches everyone but themselves.
func (r Role) CanModerateTarget(target Role) bool {
	if target == RoleHost {
		return false
	}
	if r == RoleHost {
		return true
	}
	return r == RoleModerator && target < RoleModerator
}

// Querier is the subset of pgx both pools and transactions satisfy.
// Role checks run against it so they compose into callers' transactions.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Membership is the role engine for playlists. All authorization
// decisions funnel through RoleIn so ban/member/moderator/host state
// is read in one place.
type Membership struct{}

func NewMembership() *Membership { return &Membership{} }

// RoleIn resolves the role of userID in playlistID. Returns NotFound
// if the playlist does not exist. The ban row wins over any leftover
// membership row.
func (m *Membership) RoleIn(ctx context.Context, q Querier, playlistID, userID string) (Role, error) {
	var (
		hostID     string
		banned     bool
		memberRole string
	)
	err := q.QueryRow(ctx, `
		SELECT p.host_id,
		       EXISTS(SELECT 1 FROM playlist_bans b WHERE b.playlist_id = p.id AND b.user_id = $2),
		       COALESCE((SELECT m.role FROM playlist_members m WHERE m.playlist_id = p.id AND m.user_id = $2), '')
		FROM playlists p
		WHERE p.id = $1
	`, playlistID, userID).Scan(&hostID, &banned, &memberRole)
	if errors.Is(err, pgx.ErrNoRows) {
		return RoleNone, apperr.NotFound("playlist")
	}
	if err != nil {
		return RoleNone, apperr.Store("resolve role", err)
	}

	switch {
	case banned:
		return RoleBanned, nil
	case userID != "" && userID == hostID:
		return RoleHost, nil
	case memberRole == memberRoleModerator:
		return RoleModerator, nil
	case memberRole == memberRoleMember:
		return RoleMember, nil
	default:
		return RoleNone, nil
	}
}
