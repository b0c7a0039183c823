package playlist

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	got := slugify("  Friday Night MIX!! ")
	parts := strings.Split(got, "-")
	require.GreaterOrEqual(t, len(parts), 4)
	assert.True(t, strings.HasPrefix(got, "friday-night-mix-"), got)
	assert.Len(t, parts[len(parts)-1], 8)

	assert.True(t, strings.HasPrefix(slugify("!!!"), "playlist-"))
}

func TestCreatePlaylistAutoJoinsHost(t *testing.T) {
	db := &MockDB{}
	created := time.Unix(1700000000, 0).UTC()
	var joined, committed bool
	tx := &MockTx{
		QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			require.Contains(t, sql, "INSERT INTO playlists")
			return &MockRow{ScanFunc: scanVals(
				"7f1c9a4e-1111-4c3a-9d2b-000000000001", args[0].(string), "Friday Mix", "", true, "host-1", created,
			)}
		},
		ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if strings.Contains(sql, "INSERT INTO playlist_members") {
				joined = true
				assert.Equal(t, "host-1", args[1])
			}
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
		CommitFunc: func(ctx context.Context) error {
			committed = true
			return nil
		},
	}
	db.BeginTxFunc = func(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
		return tx, nil
	}
	srv := NewServer(db, nil, nil, ScoreModeCached)

	rec := doRequest(t, srv, http.MethodPost, "/playlists", "host-1",
		map[string]string{"name": "Friday Mix"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, joined)
	assert.True(t, committed)

	var pl Playlist
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pl))
	assert.Equal(t, "host-1", pl.HostID)
	assert.NotEmpty(t, pl.Slug)
}

func TestCreatePlaylistSlugTaken(t *testing.T) {
	db := &MockDB{}
	db.BeginTxFunc = func(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
		return &MockTx{
			QueryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
				return &MockRow{ScanFunc: func(dest ...any) error {
					return &pgconn.PgError{Code: "23505"}
				}}
			},
		}, nil
	}
	srv := NewServer(db, nil, nil, ScoreModeCached)

	rec := doRequest(t, srv, http.MethodPost, "/playlists", "host-1",
		map[string]string{"name": "Friday Mix", "url": "friday-mix"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreatePlaylistRequiresName(t *testing.T) {
	srv := NewServer(&MockDB{}, nil, nil, ScoreModeCached)

	rec := doRequest(t, srv, http.MethodPost, "/playlists", "host-1",
		map[string]string{"name": "   "})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPrivatePlaylistForMember(t *testing.T) {
	pl := testPlaylist(false)
	db := newFixtureDB(pl, map[string]string{"m-1": "member"})
	srv := NewServer(db, nil, nil, ScoreModeCached)

	rec := doRequest(t, srv, http.MethodGet, "/playlists/friday-mix", "m-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Playlist Playlist `json:"playlist"`
		Role     string   `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, pl.ID, body.Playlist.ID)
	assert.Equal(t, "member", body.Role)
}

func TestGetPrivatePlaylistForOutsider(t *testing.T) {
	db := newFixtureDB(testPlaylist(false), map[string]string{})
	srv := NewServer(db, nil, nil, ScoreModeCached)

	rec := doRequest(t, srv, http.MethodGet, "/playlists/friday-mix", "u-outside", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPatchPlaylistHostOnly(t *testing.T) {
	db := newFixtureDB(testPlaylist(true), map[string]string{"m-1": "member"})
	srv := NewServer(db, nil, nil, ScoreModeCached)

	rec := doRequest(t, srv, http.MethodPatch, "/playlists/friday-mix", "m-1",
		map[string]string{"name": "Hijacked"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPatchPlaylist(t *testing.T) {
	db := newFixtureDB(testPlaylist(true), map[string]string{})
	var updated bool
	db.ExecFunc = func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		if strings.Contains(sql, "UPDATE playlists") {
			updated = true
			assert.Equal(t, "Saturday Mix", args[1])
		}
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	srv := NewServer(db, nil, nil, ScoreModeCached)

	rec := doRequest(t, srv, http.MethodPatch, "/playlists/friday-mix", "host-1",
		map[string]string{"name": "Saturday Mix"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, updated)
	var pl Playlist
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pl))
	assert.Equal(t, "Saturday Mix", pl.Name)
}

func TestDeletePlaylistHostOnly(t *testing.T) {
	db := newFixtureDB(testPlaylist(true), map[string]string{"mod-1": "moderator"})
	srv := NewServer(db, nil, nil, ScoreModeCached)

	rec := doRequest(t, srv, http.MethodDelete, "/playlists/friday-mix", "mod-1", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListPlaylists(t *testing.T) {
	created := time.Unix(1700000000, 0).UTC()
	db := &MockDB{
		QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return NewMockRows([][]any{
				{"7f1c9a4e-1111-4c3a-9d2b-000000000001", "friday-mix", "Friday Mix", "", true, "host-1", created},
			}), nil
		},
	}
	srv := NewServer(db, nil, nil, ScoreModeCached)

	rec := doRequest(t, srv, http.MethodGet, "/playlists", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var playlists []Playlist
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &playlists))
	require.Len(t, playlists, 1)
	assert.Equal(t, "friday-mix", playlists[0].Slug)
}
