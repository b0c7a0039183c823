package playlist

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/song-request-sub000/internal/apperr"
)

func TestRolePrivileges(t *testing.T) {
	assert.False(t, RoleBanned.CanVote())
	assert.False(t, RoleNone.CanVote())
	assert.True(t, RoleMember.CanVote())
	assert.True(t, RoleModerator.CanVote())
	assert.True(t, RoleHost.CanVote())

	assert.False(t, RoleMember.CanModerate())
	assert.True(t, RoleModerator.CanModerate())
	assert.True(t, RoleHost.CanModerate())
}

func TestCanModerateTarget(t *testing.T) {
	cases := []struct {
		name   string
		actor  Role
		target Role
		want   bool
	}{
		{"moderator over member", RoleModerator, RoleMember, true},
		{"moderator over outsider", RoleModerator, RoleNone, true},
		{"moderator over moderator", RoleModerator, RoleModerator, false},
		{"moderator over host", RoleModerator, RoleHost, false},
		{"host over moderator", RoleHost, RoleModerator, true},
		{"host over member", RoleHost, RoleMember, true},
		{"host over host", RoleHost, RoleHost, false},
		{"member over member", RoleMember, RoleMember, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.actor.CanModerateTarget(tc.target))
		})
	}
}

func TestRoleInResolution(t *testing.T) {
	cases := []struct {
		name       string
		userID     string
		hostID     string
		banned     bool
		memberRole string
		want       Role
	}{
		{"host", "u1", "u1", false, "", RoleHost},
		{"moderator", "u2", "u1", false, "moderator", RoleModerator},
		{"member", "u2", "u1", false, "member", RoleMember},
		{"outsider", "u2", "u1", false, "", RoleNone},
		{"anonymous", "", "u1", false, "", RoleNone},
		{"banned wins over member row", "u2", "u1", true, "member", RoleBanned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := &MockDB{
				QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
					return &MockRow{ScanFunc: scanVals(tc.hostID, tc.banned, tc.memberRole)}
				},
			}

			got, err := NewMembership().RoleIn(context.Background(), db, "pl1", tc.userID)

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRoleInPlaylistMissing(t *testing.T) {
	db := &MockDB{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &MockRow{ScanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}

	_, err := NewMembership().RoleIn(context.Background(), db, "missing", "u1")

	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, kind)
}
