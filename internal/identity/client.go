// Package identity consumes the external identity gateway: it resolves
// the current caller from request headers and answers admin checks.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the identity gateway over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// UserExists asks the gateway whether userID is a known user.
func (c *Client) UserExists(ctx context.Context, userID string) (bool, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false, err
	}
	u.Path = "/internal/users/" + url.PathEscape(userID) + "/exists"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("identity gateway returned %d", resp.StatusCode)
	}
}

// IsAdmin asks the gateway whether userID has platform admin rights.
func (c *Client) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false, err
	}
	u.Path = "/internal/users/" + url.PathEscape(userID) + "/admin"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("identity gateway returned %d", resp.StatusCode)
	}

	var body struct {
		Admin bool `json:"admin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Admin, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
