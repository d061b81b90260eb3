package authclient

import "errors"

var (
	// ErrNoRefreshToken indicates a refresh was requested with no refresh token in the store.
	ErrNoRefreshToken = errors.New("auth_client.refresh.no_refresh_token")
	// ErrRefreshRejected indicates the server refused the refresh token (expired or invalid).
	ErrRefreshRejected = errors.New("auth_client.refresh.rejected")
	// ErrRefreshNetwork indicates the refresh endpoint could not be reached.
	ErrRefreshNetwork = errors.New("auth_client.refresh.network")
	// ErrSessionExpired indicates the retried request was rejected again; the caller must re-login.
	ErrSessionExpired = errors.New("auth_client.session_expired")
	// ErrNotAuthenticated indicates an authenticated call was attempted while logged out.
	ErrNotAuthenticated = errors.New("auth_client.not_authenticated")
	// ErrRequestNotReplayable indicates a bodied request without GetBody cannot be retried.
	ErrRequestNotReplayable = errors.New("auth_client.request_not_replayable")
)
