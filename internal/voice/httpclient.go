package voice

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/hr-voice-lab/internal/logging"
)

// PostForm posts form-encoded values to endpoint with basic auth and returns
// the response. Caller must close resp.Body.
func PostForm(ctx context.Context, client *http.Client, endpoint string, form url.Values, user, pass, correlationID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		logging.Debugw("postForm: new request error", "err", err, "correlation_id", correlationID)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logging.Debugw("postForm: request failed", "url", endpoint, "err", err, "correlation_id", correlationID)
		return nil, err
	}
	return resp, nil
}
