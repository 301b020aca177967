package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kherry/ofw-client/pkg/config"
)

// claimResponse is the claim endpoint's reply.
type claimResponse struct {
	Token string `json:"token"`
}

// Exchange trades the ephemeral auth token from the localStorage snapshot
// for a long-lived JWT at the claim endpoint. The request carries the raw
// auth token as the bearer; the returned record carries the JWT and its
// base64 form.
//
// The auth token is single use. Exchange never retries, and on any failure
// the caller must obtain a fresh token through a new browser login rather
// than call Exchange again with the same snapshot.
func Exchange(ctx context.Context, client *http.Client, cfg *config.Config, snapshot LocalStorageSnapshot, account string) (*TokenRecord, error) {
	authToken, ok := snapshot.AuthToken()
	if !ok {
		keys := make([]string, 0, len(snapshot))
		for k := range snapshot {
			keys = append(keys, k)
		}
		return nil, &MissingAuthTokenError{Keys: keys}
	}

	claimURL := cfg.ClaimURL(cfg.ClaimTarget(account))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claimURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build claim request: %w", err)
	}
	// The auth token goes on the wire raw. Only the JWT it buys is ever
	// base64-encoded.
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ClaimFailedError{Reason: "claim request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ClaimFailedError{Status: resp.StatusCode, Reason: "failed to read claim response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ClaimFailedError{Status: resp.StatusCode, Reason: "claim endpoint rejected the auth token"}
	}

	var claim claimResponse
	if err := json.Unmarshal(body, &claim); err != nil {
		return nil, &ClaimFailedError{Status: resp.StatusCode, Reason: "unparsable claim response", Err: err}
	}
	if claim.Token == "" {
		return nil, &ClaimFailedError{Status: resp.StatusCode, Reason: "claim response has no token field"}
	}

	return NewTokenRecord(claim.Token), nil
}
