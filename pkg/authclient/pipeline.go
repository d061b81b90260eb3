package authclient

import (
	"fmt"
	"io"
	"net/http"
)

// Pipeline sends authenticated requests: it attaches the current access
// token as a bearer credential, and on a 401 refreshes the token and
// retries the original request exactly once. A request is never retried
// more than once no matter how many further 401s it receives.
type Pipeline struct {
	store      *CredentialStore
	refresher  *RefreshCoordinator
	httpClient *http.Client
}

// NewPipeline constructs a pipeline over the store and coordinator.
func NewPipeline(store *CredentialStore, refresher *RefreshCoordinator, httpClient *http.Client) *Pipeline {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Pipeline{
		store:      store,
		refresher:  refresher,
		httpClient: httpClient,
	}
}

// Do executes the request with bearer authorization. Requests with a body
// must carry GetBody (http.NewRequest sets it for common reader types) so
// the single retry can replay the payload.
func (pipeline *Pipeline) Do(request *http.Request) (*http.Response, error) {
	if request.Body != nil && request.GetBody == nil {
		return nil, fmt.Errorf("pipeline.send: %w", ErrRequestNotReplayable)
	}

	snapshot := pipeline.store.Read()
	if snapshot.AccessToken != "" {
		request.Header.Set("Authorization", "Bearer "+snapshot.AccessToken)
	}

	response, sendErr := pipeline.httpClient.Do(request)
	if sendErr != nil {
		return nil, fmt.Errorf("pipeline.send: %w", sendErr)
	}
	if response.StatusCode != http.StatusUnauthorized {
		return response, nil
	}
	drainAndClose(response)

	newAccessToken, refreshErr := pipeline.refresher.EnsureRefreshed(request.Context())
	if refreshErr != nil {
		return nil, fmt.Errorf("pipeline.refresh: %w", refreshErr)
	}

	retry, cloneErr := replayableClone(request)
	if cloneErr != nil {
		return nil, fmt.Errorf("pipeline.retry: %w", cloneErr)
	}
	retry.Header.Set("Authorization", "Bearer "+newAccessToken)

	retryResponse, retryErr := pipeline.httpClient.Do(retry)
	if retryErr != nil {
		return nil, fmt.Errorf("pipeline.retry: %w", retryErr)
	}
	if retryResponse.StatusCode == http.StatusUnauthorized {
		drainAndClose(retryResponse)
		return nil, fmt.Errorf("pipeline.retry: %w", ErrSessionExpired)
	}
	return retryResponse, nil
}

func replayableClone(request *http.Request) (*http.Request, error) {
	clone := request.Clone(request.Context())
	if request.GetBody != nil {
		body, bodyErr := request.GetBody()
		if bodyErr != nil {
			return nil, bodyErr
		}
		clone.Body = body
	}
	return clone, nil
}

func drainAndClose(response *http.Response) {
	if response == nil || response.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, response.Body)
	_ = response.Body.Close()
}
