package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioSender sends through the Twilio Messages API.
type TwilioSender struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

func NewTwilioSender(baseURL, accountSID, authToken, from string, client *http.Client) (*TwilioSender, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, errors.New("twilio configuration incomplete")
	}
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	return &TwilioSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     client,
	}, nil
}

type twilioMessage struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
}

func (s *TwilioSender) Send(ctx context.Context, to, text string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", text)

	endpoint := s.baseURL + "/2010-04-01/Accounts/" + url.PathEscape(s.accountSID) + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out twilioMessage
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := out.Message
		if reason == "" {
			reason = truncate(string(body), defaultErrorBody)
		}
		return "", statusError("twilio", resp.StatusCode, reason)
	}
	return out.SID, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
