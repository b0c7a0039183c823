package playlist

import (
	"time"
)

// Playlist is a shared voting room. Exactly one host owns it; the host
// is also always a member row so auto-join holds by construction.
type Playlist struct {
	ID          string    `json:"id"`
	Slug        string    `json:"url"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"isPublic"`
	HostID      string    `json:"hostId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Song is a queue entry. Score is the cached net vote total; rank is
// derived at read time and never stored.
type Song struct {
	ID          string    `json:"id"`
	PlaylistID  string    `json:"playlistId"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	URL         string    `json:"url"`
	SubmitterID string    `json:"submitterId"`
	Score       int       `json:"score"`
	SubmittedAt time.Time `json:"submittedAt"`
	Rank        int       `json:"rank,omitempty"`
}

// Member is one (user, playlist) membership row.
type Member struct {
	UserID    string    `json:"userId"`
	Role      string    `json:"role"` // "member" | "moderator"
	CreatedAt time.Time `json:"createdAt"`
}

// BulkResult reports one target of a bulk kick/ban. Bulk moderation is
// best-effort: one failed removal never aborts the rest.
type BulkResult struct {
	UserID string `json:"userId"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

const (
	memberRoleMember    = "member"
	memberRoleModerator = "moderator"
)
