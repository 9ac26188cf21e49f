package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/cdp-messenger/internal/pkg/httpretry"
)

const (
	createCampaignPath = "/campaigns/create"
	maxResponseBytes   = 1 << 20
)

// HTTPTransport posts the envelope to <endpoint>/campaigns/create with
// bearer authentication.
type HTTPTransport struct {
	client httpretry.HTTPDoer
}

// NewHTTPTransport creates a transport. Wrap client in a
// httpretry.RetryClient to retry 429 and 5xx responses.
func NewHTTPTransport(client httpretry.HTTPDoer) *HTTPTransport {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 0)
	}
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Send(ctx context.Context, creds Credentials, env Envelope) (json.RawMessage, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: encode envelope: %v", ErrTransport, err)
	}

	url := strings.TrimRight(creds.Endpoint, "/") + createCampaignPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: delivery service returned %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return asJSON(data), nil
}

// asJSON keeps a JSON body as-is and quotes anything else.
func asJSON(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(string(trimmed))
	return quoted
}
