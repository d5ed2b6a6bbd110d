package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ChatMessage is one turn of a completions-style request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the decoded reply of a completions call.
type Completion struct {
	Content          string
	PromptTokens     int32
	CompletionTokens int32
}

// CompletionClient calls the provider's chat-completions endpoint through
// the resilient client.
type CompletionClient struct {
	client  *Client
	baseURL string
}

// NewCompletionClient wraps client for the completions endpoint at baseURL
// (e.g. "https://api.openai.com/v1").
func NewCompletionClient(client *Client, baseURL string) *CompletionClient {
	return &CompletionClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Complete sends the messages to the model and returns the first choice.
func (cc *CompletionClient) Complete(ctx context.Context, credential, model string, messages []ChatMessage) (*Completion, error) {
	payload, err := json.Marshal(map[string]any{
		"model":    model,
		"messages": messages,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	resp, err := cc.client.Do(ctx, &Request{
		Method:      http.MethodPost,
		URL:         cc.baseURL + "/chat/completions",
		Body:        payload,
		Credential:  credential,
		ContentType: "application/json",
	})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int32 `json:"prompt_tokens"`
			CompletionTokens int32 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("empty choices in response")
	}
	return &Completion{
		Content:          decoded.Choices[0].Message.Content,
		PromptTokens:     decoded.Usage.PromptTokens,
		CompletionTokens: decoded.Usage.CompletionTokens,
	}, nil
}
