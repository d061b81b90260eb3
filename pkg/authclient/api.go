package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIError is a structured error response from the server.
type APIError struct {
	Status  int
	Label   string
	Message string
}

// Error renders the server's label and message.
func (apiError *APIError) Error() string {
	return fmt.Sprintf("auth_client.api: %d %s: %s", apiError.Status, apiError.Label, apiError.Message)
}

// Config configures the auth client.
type Config struct {
	BaseURL        string
	Storage        StateStorage
	HTTPClient     *http.Client
	Logger         *zap.Logger
	RefreshTimeout time.Duration
}

// Client is the high-level auth API client. It owns the CredentialStore,
// the RefreshCoordinator, and the authenticated Pipeline, and exposes the
// auth endpoints as methods.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	store      *CredentialStore
	refresher  *RefreshCoordinator
	pipeline   *Pipeline
}

// NewClient wires the store, coordinator, and pipeline from the config.
func NewClient(ctx context.Context, configuration Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("auth_client.new: base URL must be provided")
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, storeErr := NewCredentialStore(ctx, configuration.Storage)
	if storeErr != nil {
		return nil, storeErr
	}

	client := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		store:      store,
	}
	client.refresher = NewRefreshCoordinator(store, client, configuration.RefreshTimeout)
	client.pipeline = NewPipeline(store, client.refresher, httpClient)
	return client, nil
}

// Store exposes the credential store for state inspection.
func (client *Client) Store() *CredentialStore {
	return client.store
}

// Pipeline exposes the authenticated request pipeline for arbitrary calls.
func (client *Client) Pipeline() *Pipeline {
	return client.pipeline
}

// SignupResult reports the outcome of a signup call.
type SignupResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	User    UserProfile `json:"user"`
}

// Signup registers a new user. It does not log the user in.
func (client *Client) Signup(ctx context.Context, email string, password string, name string) (SignupResult, error) {
	payload := map[string]string{"email": email, "password": password, "name": name}
	var result SignupResult
	if err := client.postJSON(ctx, "/api/auth/signup", payload, http.StatusCreated, &result); err != nil {
		return SignupResult{}, err
	}
	return result, nil
}

type loginResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         UserProfile `json:"user"`
}

// Login authenticates and atomically populates the credential store.
func (client *Client) Login(ctx context.Context, email string, password string) (UserProfile, error) {
	payload := map[string]string{"email": email, "password": password}
	var result loginResponse
	if err := client.postJSON(ctx, "/api/auth/login", payload, http.StatusOK, &result); err != nil {
		return UserProfile{}, err
	}
	if setErr := client.store.SetAuth(ctx, result.AccessToken, result.RefreshToken, result.User); setErr != nil {
		return UserProfile{}, setErr
	}
	return result.User, nil
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// RefreshAccessToken exchanges the refresh token for a new access token.
// It implements RenewalClient for the RefreshCoordinator and does not
// touch the store itself.
func (client *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	payload := map[string]string{"refreshToken": refreshToken}
	body, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		return "", fmt.Errorf("auth_client.refresh: %w", encodeErr)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/api/auth/refresh", bytes.NewReader(body))
	if requestErr != nil {
		return "", fmt.Errorf("auth_client.refresh: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")

	response, sendErr := client.httpClient.Do(request)
	if sendErr != nil {
		return "", fmt.Errorf("auth_client.refresh: %w: %s", ErrRefreshNetwork, sendErr)
	}
	defer drainAndClose(response)

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth_client.refresh: %w", ErrRefreshRejected)
	}
	var result refreshResponse
	if decodeErr := json.NewDecoder(response.Body).Decode(&result); decodeErr != nil {
		return "", fmt.Errorf("auth_client.refresh: %w", decodeErr)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("auth_client.refresh: %w", ErrRefreshRejected)
	}
	return result.AccessToken, nil
}

// CurrentUser fetches the authenticated profile through the pipeline, so
// an expired access token is refreshed and the call retried transparently.
func (client *Client) CurrentUser(ctx context.Context) (UserProfile, error) {
	snapshot := client.store.Read()
	if !snapshot.IsAuthenticated {
		return UserProfile{}, fmt.Errorf("auth_client.me: %w", ErrNotAuthenticated)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/api/auth/me", nil)
	if requestErr != nil {
		return UserProfile{}, fmt.Errorf("auth_client.me: %w", requestErr)
	}
	response, sendErr := client.pipeline.Do(request)
	if sendErr != nil {
		return UserProfile{}, sendErr
	}
	defer drainAndClose(response)

	if response.StatusCode != http.StatusOK {
		return UserProfile{}, decodeAPIError(response)
	}
	var profile UserProfile
	if decodeErr := json.NewDecoder(response.Body).Decode(&profile); decodeErr != nil {
		return UserProfile{}, fmt.Errorf("auth_client.me: %w", decodeErr)
	}
	return profile, nil
}

// Logout tells the server best-effort and always clears local state,
// whatever the server says.
func (client *Client) Logout(ctx context.Context) error {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/api/auth/logout", nil)
	if requestErr == nil {
		snapshot := client.store.Read()
		if snapshot.AccessToken != "" {
			request.Header.Set("Authorization", "Bearer "+snapshot.AccessToken)
		}
		response, sendErr := client.httpClient.Do(request)
		if sendErr != nil {
			client.logger.Info("logout request failed",
				zap.String("code", "auth_client.logout.network"),
				zap.Error(sendErr))
		} else {
			drainAndClose(response)
		}
	}
	return client.store.Clear(ctx)
}

func (client *Client) postJSON(ctx context.Context, path string, payload any, wantStatus int, out any) error {
	body, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		return fmt.Errorf("auth_client.api: %w", encodeErr)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+path, bytes.NewReader(body))
	if requestErr != nil {
		return fmt.Errorf("auth_client.api: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")

	response, sendErr := client.httpClient.Do(request)
	if sendErr != nil {
		return fmt.Errorf("auth_client.api: %w", sendErr)
	}
	defer drainAndClose(response)

	if response.StatusCode != wantStatus {
		return decodeAPIError(response)
	}
	if out == nil {
		return nil
	}
	if decodeErr := json.NewDecoder(response.Body).Decode(out); decodeErr != nil {
		return fmt.Errorf("auth_client.api: %w", decodeErr)
	}
	return nil
}

func decodeAPIError(response *http.Response) error {
	var payload struct {
		Label   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(response.Body).Decode(&payload)
	if payload.Label == "" {
		payload.Label = http.StatusText(response.StatusCode)
	}
	return &APIError{
		Status:  response.StatusCode,
		Label:   payload.Label,
		Message: payload.Message,
	}
}
