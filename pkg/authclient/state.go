// Package authclient is the importable client SDK for the auth service:
// an in-memory credential store with durable persistence, a single-flight
// refresh coordinator, and an authenticated request pipeline that retries
// a 401 exactly once after refreshing the access token.
package authclient

// UserProfile is the read-only projection of the authenticated user.
// It never carries the password hash.
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AuthState is the client's view of the session. IsAuthenticated is true
// iff both tokens and the user profile are present.
type AuthState struct {
	AccessToken     string
	RefreshToken    string
	User            *UserProfile
	IsAuthenticated bool
}

// LoggedOut reports whether the state is the empty, logged-out state.
func (state AuthState) LoggedOut() bool {
	return state.AccessToken == "" && state.RefreshToken == "" && state.User == nil && !state.IsAuthenticated
}
