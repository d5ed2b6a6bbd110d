// Package scoring turns a captured transcript into a bounded numeric score
// and free-text feedback, and persists the evaluation atomically with its
// audit records.
package scoring

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/dealcoach/dealcoach/plugin/upstream"
	"github.com/dealcoach/dealcoach/store"
)

// ErrUnparseable marks an upstream reply that carried no valid evaluation
// payload. Treated as an upstream error; no persistence happens.
var ErrUnparseable = errors.New("unparseable upstream response")

// DefaultRubric is used when no rubric template is configured.
const DefaultRubric = `You are a sales coach. Evaluate the sales conversation transcript the user provides.
Rate how well the seller handled the conversation on a scale from 0 to 100 and give concise,
actionable feedback in two or three sentences.
Reply with a JSON object of the form {"score": <integer>, "feedback": "<text>"} and nothing else.`

// Evaluation is the outcome of one scoring pass.
type Evaluation struct {
	Score            int32
	Feedback         string
	Raw              string
	PromptTokens     int32
	CompletionTokens int32
}

// Evaluator runs scoring calls through the resilient upstream client and
// writes results through the store.
type Evaluator struct {
	completions *upstream.CompletionClient
	store       *store.Store
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(completions *upstream.CompletionClient, st *store.Store) *Evaluator {
	return &Evaluator{completions: completions, store: st}
}

// Evaluate sends the transcript with the rubric as system prompt and parses
// the reply. The score is clamped to [0, 100] and rounded before it is
// considered valid, even when the model returns an out-of-range value.
func (e *Evaluator) Evaluate(ctx context.Context, transcript, credential, model, rubricPrompt string) (*Evaluation, error) {
	if strings.TrimSpace(rubricPrompt) == "" {
		rubricPrompt = DefaultRubric
	}

	comp, err := e.completions.Complete(ctx, credential, model, []upstream.ChatMessage{
		{Role: "system", Content: rubricPrompt},
		{Role: "user", Content: transcript},
	})
	if err != nil {
		return nil, err
	}

	raw := comp.Content
	payload := extractJSONObject(raw)
	if payload == "" {
		return nil, errors.Wrapf(ErrUnparseable, "no JSON object in reply %q", truncate(raw, 120))
	}

	var decoded struct {
		Score    *float64 `json:"score"`
		Feedback *string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, errors.Wrapf(ErrUnparseable, "invalid JSON in reply: %v", err)
	}
	if decoded.Score == nil || decoded.Feedback == nil {
		return nil, errors.Wrap(ErrUnparseable, "missing score or feedback field")
	}

	score := math.Round(*decoded.Score)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &Evaluation{
		Score:            int32(score),
		Feedback:         *decoded.Feedback,
		Raw:              raw,
		PromptTokens:     comp.PromptTokens,
		CompletionTokens: comp.CompletionTokens,
	}, nil
}

// PersistEvaluation commits the conversation update and both audit records
// as one transaction: all three effects succeed or none do.
func (e *Evaluator) PersistEvaluation(ctx context.Context, conversationUID string, eval *Evaluation) (*store.Conversation, error) {
	var updated *store.Conversation
	err := e.store.RunInTransaction(ctx, func(d store.Driver) error {
		list, err := d.ListConversations(ctx, &store.FindConversation{UID: &conversationUID})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return store.ErrNotFound
		}
		conversation := list[0]

		updated, err = d.UpdateConversation(ctx, &store.UpdateConversation{
			UID:              conversationUID,
			Score:            &eval.Score,
			Feedback:         &eval.Feedback,
			PromptTokens:     &eval.PromptTokens,
			CompletionTokens: &eval.CompletionTokens,
		})
		if err != nil {
			return err
		}

		if _, err := d.CreateConversationLog(ctx, &store.ConversationLog{
			ConversationID: conversation.ID,
			Role:           "assistant",
			Type:           store.LogTypeAIFeedback,
			Content:        eval.Feedback,
		}); err != nil {
			return err
		}
		if _, err := d.CreateConversationLog(ctx, &store.ConversationLog{
			ConversationID: conversation.ID,
			Role:           "system",
			Type:           store.LogTypeScoringContext,
			Content:        eval.Raw,
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// extractJSONObject returns the first top-level JSON object substring: from
// the first '{' through the last '}' (greedy).
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
