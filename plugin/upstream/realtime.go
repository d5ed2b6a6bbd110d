package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// RealtimeClient negotiates realtime voice sessions: the browser's SDP offer
// is exchanged for the provider's SDP answer over plain HTTP.
type RealtimeClient struct {
	client  *Client
	baseURL string
}

// NewRealtimeClient wraps client for the realtime negotiation endpoint at
// baseURL (e.g. "https://api.openai.com/v1").
func NewRealtimeClient(client *Client, baseURL string) *RealtimeClient {
	return &RealtimeClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Negotiate posts the SDP offer for the given model and returns the raw SDP
// answer text.
func (rc *RealtimeClient) Negotiate(ctx context.Context, credential, model, offerSDP string) (string, error) {
	resp, err := rc.client.Do(ctx, &Request{
		Method:      http.MethodPost,
		URL:         rc.baseURL + "/realtime?model=" + url.QueryEscape(model),
		Body:        []byte(offerSDP),
		Credential:  credential,
		ContentType: "application/sdp",
		Accept:      "application/sdp",
	})
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	return string(resp.Body), nil
}
