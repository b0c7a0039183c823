// Package metadata consumes the external track-metadata service.
// Lookups are best-effort: a failed or empty resolution never blocks a
// submission, it only leaves title/author to the submitter.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Track is a resolved title/author pair for a submitted URL.
type Track struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Resolver resolves a track URL to its metadata. Implemented by Client;
// handlers accept the interface so tests can stub it.
type Resolver interface {
	ResolveTrack(ctx context.Context, trackURL string) (*Track, error)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ResolveTrack returns (nil, nil) when the service does not know the
// URL; callers treat that the same as a lookup failure.
func (c *Client) ResolveTrack(ctx context.Context, trackURL string) (*Track, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/resolve"
	q := u.Query()
	q.Set("url", trackURL)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata service returned %d", resp.StatusCode)
	}

	var tr Track
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	if tr.Title == "" && tr.Author == "" {
		return nil, nil
	}
	return &tr, nil
}
