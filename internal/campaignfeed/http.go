package campaignfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"airdrop-optimizer/internal/domain"
)

// DefaultHTTPTimeout bounds one feed request.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPSource reads campaigns from a JSON endpoint. The body is either an
// array of campaigns or an object with a "campaigns" array.
type HTTPSource struct {
	client *resty.Client
	url    string
}

// NewHTTPSource creates a feed client for url. Transient failures are
// retried up to retries times.
func NewHTTPSource(url string, timeout time.Duration, retries int) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Accept", "application/json")
	return &HTTPSource{client: client, url: url}
}

// Fetch requests the feed and decodes it.
func (s *HTTPSource) Fetch(ctx context.Context) ([]domain.RawCampaign, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch campaigns: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("campaign feed returned %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return decodeFeed(resp.Body())
}

func decodeFeed(body []byte) ([]domain.RawCampaign, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	if body[0] == '[' {
		var list []domain.RawCampaign
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode campaign list: %w", err)
		}
		return list, nil
	}

	var wrapped struct {
		Campaigns []domain.RawCampaign `json:"campaigns"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode campaign feed: %w", err)
	}
	return wrapped.Campaigns, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
