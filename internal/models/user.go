package models

// User is the public profile embedded in posts and comments.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"` // avatar id (1-6) or URL
	Bio      string `json:"bio,omitempty"`
}

// Me is what GET /api/me returns for the current session.
type Me struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
