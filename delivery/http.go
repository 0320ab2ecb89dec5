package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

const defaultErrorBody = 512

// HTTPSender posts messages to a generic JSON SMS gateway:
//
//	POST <url>  {"to": "...", "text": "...", "from": "..."}
//	Authorization: Bearer <key>
//
// A 2xx reply may carry {"id": "..."}, used as the provider reference.
type HTTPSender struct {
	url    string
	apiKey string
	from   string
	client *http.Client
}

func NewHTTPSender(url, apiKey, from string, client *http.Client) (*HTTPSender, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("http provider requires a base url")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	return &HTTPSender{url: url, apiKey: apiKey, from: from, client: client}, nil
}

type gatewayRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
	From string `json:"from,omitempty"`
}

type gatewayResponse struct {
	ID string `json:"id"`
}

func (s *HTTPSender) Send(ctx context.Context, to, text string) (string, error) {
	raw, err := json.Marshal(gatewayRequest{To: to, Text: text, From: s.from})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, defaultErrorBody))
		return "", statusError("http", resp.StatusCode, string(b))
	}

	var out gatewayResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out)
	return out.ID, nil
}
