// Package types defines the wire types shared between the Chatty API client
// and the session manager.
package types

// User is the authenticated user record as returned by the Chatty backend.
type User struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	ProfilePic string `json:"profilePic,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// AuthPayload is the signup/login response body: the user document with the
// bearer token minted for this session at the top level.
//
// The embedded User is the "payload minus credential" that becomes client
// state; Token goes to the credential store and nowhere else. In cookie mode
// the server sets the credential out of band and Token may be empty.
type AuthPayload struct {
	User
	Token string `json:"token,omitempty"`
}

// SignupRequest is the request body for POST /api/auth/signup.
type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest is the request body for PUT /api/auth/update-profile.
// Zero-valued fields are omitted so partial updates stay partial.
type UpdateProfileRequest struct {
	FullName   string `json:"fullName,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}
