package types

// User represents a platform user as returned by the REST API.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
	IsActive bool   `json:"is_active"`

	// CreatedAt and LastSeen are ISO 8601 timestamps as emitted by the
	// server. They are display-only on this side and kept as strings.
	CreatedAt string `json:"created_at,omitempty"`
	LastSeen  string `json:"last_seen,omitempty"`
}

// Channel represents a PTT channel as returned by the REST API.
type Channel struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
	MaxUsers    int    `json:"max_users"`
	CreatedBy   int64  `json:"created_by"`
	CreatedAt   string `json:"created_at,omitempty"`
	MemberCount int    `json:"member_count"`
	OnlineUsers int    `json:"online_users,omitempty"`
}

// LoginRequest is the POST /api/auth/login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the POST /api/auth/login response body.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// RefreshResponse is the POST /api/auth/refresh response body.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// MeResponse is the GET /api/auth/me response body.
type MeResponse struct {
	User User `json:"user"`
}

// UsersResponse is the GET /api/users response body.
type UsersResponse struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}

// ChannelsResponse is the GET /api/channels response body.
type ChannelsResponse struct {
	Channels []Channel `json:"channels"`
	Total    int       `json:"total"`
}
