package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hr-voice-lab/internal/logging"
)

// Dialer places outbound calls. answerURL is fetched by the provider when
// the callee picks up.
type Dialer interface {
	Dial(ctx context.Context, to, answerURL string) (callSID string, err error)
}

// TwilioDialer places calls through the Twilio REST API.
type TwilioDialer struct {
	AccountSID string
	AuthToken  string
	From       string
	// APIBase defaults to https://api.twilio.com.
	APIBase string
	Client  *http.Client
}

func NewTwilioDialer(accountSID, authToken, from, apiBase string) *TwilioDialer {
	if apiBase == "" {
		apiBase = "https://api.twilio.com"
	}
	return &TwilioDialer{
		AccountSID: accountSID,
		AuthToken:  authToken,
		From:       from,
		APIBase:    strings.TrimRight(apiBase, "/"),
		Client:     &http.Client{Timeout: 15 * time.Second},
	}
}

type twilioCall struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (d *TwilioDialer) Dial(ctx context.Context, to, answerURL string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", d.APIBase, url.PathEscape(d.AccountSID))
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", d.From)
	form.Set("Url", answerURL)

	resp, err := PostForm(ctx, d.Client, endpoint, form, d.AccountSID, d.AuthToken, "")
	if err != nil {
		return "", fmt.Errorf("twilio: create call: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("twilio: read response: %w", err)
	}
	var call twilioCall
	_ = json.Unmarshal(body, &call)
	if resp.StatusCode >= 300 {
		msg := call.Message
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("twilio: status %d: %s", resp.StatusCode, msg)
	}
	if call.SID == "" {
		return "", fmt.Errorf("twilio: response without call sid")
	}
	logging.Infow("twilio: call created", "call.sid", call.SID, "status", call.Status)
	return call.SID, nil
}

// DryRunDialer fabricates call sids without contacting a provider. Used
// when no telephony credentials are configured.
type DryRunDialer struct{}

func (DryRunDialer) Dial(ctx context.Context, to, answerURL string) (string, error) {
	sid := "CA" + shortuuid.New()
	logging.Infow("dry-run: call not placed", "call.sid", sid, "to", to, "answer_url", answerURL)
	return sid, nil
}
