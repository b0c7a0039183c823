package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTrack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/resolve", r.URL.Path)
		switch r.URL.Query().Get("url") {
		case "https://youtu.be/abc":
			w.Write([]byte(`{"title":"Bohemian Rhapsody","author":"Queen"}`))
		case "https://youtu.be/empty":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	tr, err := c.ResolveTrack(ctx, "https://youtu.be/abc")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "Bohemian Rhapsody", tr.Title)
	assert.Equal(t, "Queen", tr.Author)

	tr, err = c.ResolveTrack(ctx, "https://youtu.be/unknown")
	require.NoError(t, err)
	assert.Nil(t, tr)

	// An empty body counts as "not resolved".
	tr, err = c.ResolveTrack(ctx, "https://youtu.be/empty")
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestResolveTrackServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ResolveTrack(context.Background(), "https://youtu.be/abc")
	assert.Error(t, err)
}
