package user

import "time"

// User is a registered account. BanDays follows the stored convention:
// 0 means active, N>0 means banned for N days from BannedAt.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"isAdmin"`
	BanDays   int       `json:"banDays"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is the read model returned by the user endpoints: the account
// plus its follow and playlist relations.
type Profile struct {
	User
	FollowedUsers   []string `json:"followedUsers"`
	JoinedPlaylists []string `json:"joinedPlaylists"`
}
