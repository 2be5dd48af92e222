package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"adpilot/internal/config"
	"adpilot/internal/types"
)

// PixelClient reads the latest pixel-health snapshot per ad account from the
// ingestion collaborator.
type PixelClient struct {
	base    *BaseClient
	baseURL string
	token   types.SecretString
}

// NewPixelClient creates a PixelClient from the ingestion configuration.
func NewPixelClient(cfg config.IngestionConfig, opts ...BaseClientOption) *PixelClient {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &PixelClient{
		base:    NewBaseClient(httpClient, "pixel-health", DefaultRetryPolicy(), cfg.UserAgent, opts...),
		baseURL: cfg.PixelHealthURL,
		token:   cfg.APIToken,
	}
}

// LatestPixelHealth fetches the account's most recent pixel-health snapshot.
//
// A 401/403 maps to ErrCodeUpstreamCredential: the stored token is unusable
// and the caller must stop processing the account rather than retrying the
// rest of its work with the same credential. A 404 maps to
// ErrCodeNotFoundAccount, which scorers treat as "no pixel installed".
func (c *PixelClient) LatestPixelHealth(ctx context.Context, ref types.AccountRef) (*types.PixelHealth, error) {
	endpoint := fmt.Sprintf("%s/v1/pixel-health/%s?user_id=%s",
		c.baseURL, url.PathEscape(ref.AdAccountID), url.QueryEscape(ref.UserID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build pixel health request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token.Unmask())
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var health types.PixelHealth
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode pixel health response", err)
		}
		return &health, nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamCredential,
			"ingestion API rejected the stored credential",
			nil,
			map[string]any{"ad_account_id": ref.AdAccountID, "status": resp.StatusCode},
		)
	case resp.StatusCode == http.StatusNotFound:
		return nil, types.NewAppError(types.ErrCodeNotFoundAccount,
			fmt.Sprintf("no pixel health data for account %s", ref.AdAccountID), nil)
	default:
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("pixel health request returned %d", resp.StatusCode), nil)
	}
}
