// Package session drives the conversation lifecycle: negotiate the realtime
// session, stream status events, finalize, score, persist. Live observers
// watch the event bus; there is no separately queryable state enum.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dealcoach/dealcoach/plugin/cache"
	"github.com/dealcoach/dealcoach/plugin/eventbus"
	"github.com/dealcoach/dealcoach/plugin/upstream"
	"github.com/dealcoach/dealcoach/plugin/vectorstore"
	"github.com/dealcoach/dealcoach/server/scoring"
	"github.com/dealcoach/dealcoach/store"
)

// ErrNoTranscript is returned when finalize is called with no transcript
// supplied and none previously stored. Maps to HTTP 400 at the boundary.
var ErrNoTranscript = errors.New("no transcript available to score")

// Config carries the upstream scalars the orchestrator needs.
type Config struct {
	Credential    string
	RealtimeModel string
	ScoringModel  string
}

// Orchestrator sequences session negotiation, live status emission,
// finalization, and scoring.
type Orchestrator struct {
	store     *store.Store
	bus       *eventbus.Bus
	realtime  *upstream.RealtimeClient
	evaluator *scoring.Evaluator
	cache     *cache.Tiered
	vectors   *vectorstore.Store // optional
	cfg       Config

	// finalize/score is serialized per conversation uid: two concurrent
	// scoring passes racing to persist would break the score-and-feedback-
	// together invariant.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator wires the orchestrator. vectors may be nil when transcript
// search is not configured.
func NewOrchestrator(st *store.Store, bus *eventbus.Bus, realtime *upstream.RealtimeClient, evaluator *scoring.Evaluator, tiered *cache.Tiered, vectors *vectorstore.Store, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:     st,
		bus:       bus,
		realtime:  realtime,
		evaluator: evaluator,
		cache:     tiered,
		vectors:   vectors,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
	}
}

// StartResult is the outcome of a successful session start.
type StartResult struct {
	Conversation *store.Conversation
	AnswerSDP    string
}

// Start creates the conversation record and negotiates the realtime session.
// The quota gate applies before any upstream call; organizations at their
// limit cannot open new sessions.
func (o *Orchestrator) Start(ctx context.Context, creatorID int32, organizationID, offerSDP, model string) (*StartResult, error) {
	if model == "" {
		model = o.cfg.RealtimeModel
	}

	if organizationID != "" {
		quota, err := o.store.CheckQuota(ctx, organizationID)
		if err != nil {
			return nil, err
		}
		if !quota.Unlimited && quota.Used >= quota.MonthlyLimit {
			return nil, store.ErrQuotaExceeded
		}
	}

	conversation, err := o.store.CreateConversation(ctx, &store.Conversation{
		UID:            uuid.New().String()[:8],
		CreatorID:      creatorID,
		OrganizationID: organizationID,
	})
	if err != nil {
		return nil, err
	}

	answer, err := o.realtime.Negotiate(ctx, o.cfg.Credential, model, offerSDP)
	if err != nil {
		o.recordError(ctx, conversation.ID, "session negotiation failed", err)
		o.bus.Emit(conversation.UID, eventbus.Error{Message: err.Error()})
		return nil, errors.Wrap(err, "negotiate session")
	}

	o.bus.Emit(conversation.UID, eventbus.SessionStarted{ConversationUID: conversation.UID})
	o.bus.Emit(conversation.UID, eventbus.Status{
		Code:   "session.negotiated",
		Detail: map[string]string{"model": model},
	})

	return &StartResult{Conversation: conversation, AnswerSDP: answer}, nil
}

// SaveTranscript attaches (or overwrites) the transcript outside of the
// finalize path.
func (o *Orchestrator) SaveTranscript(ctx context.Context, conversationUID, transcript string) (*store.Conversation, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.Wrap(ErrNoTranscript, "empty transcript")
	}
	updated, err := o.store.UpdateConversation(ctx, &store.UpdateConversation{
		UID:        conversationUID,
		Transcript: &transcript,
	})
	if err != nil {
		return nil, err
	}
	o.bus.Emit(conversationUID, eventbus.TranscriptSaved{Length: len(transcript)})
	o.indexTranscript(updated, transcript)
	return updated, nil
}

// Finalize runs the back half of the lifecycle: persist the supplied
// transcript, score it, commit the evaluation, settle quota and caches, and
// complete the event stream. On scoring failure the conversation stays
// non-terminal in storage and the caller may finalize again; the event
// stream for live observers ends with an error event.
func (o *Orchestrator) Finalize(ctx context.Context, conversationUID, transcript, rubricPrompt string) (*store.Conversation, error) {
	unlock := o.lockConversation(conversationUID)
	defer unlock()

	conversation, err := o.store.GetConversation(ctx, &store.FindConversation{UID: &conversationUID})
	if err != nil {
		return nil, err
	}

	o.bus.Emit(conversationUID, eventbus.Status{Code: "finalizing"})

	if strings.TrimSpace(transcript) != "" {
		o.bus.Emit(conversationUID, eventbus.Status{Code: "transcript.saving"})
		conversation, err = o.store.UpdateConversation(ctx, &store.UpdateConversation{
			UID:        conversationUID,
			Transcript: &transcript,
		})
		if err != nil {
			return nil, err
		}
		o.bus.Emit(conversationUID, eventbus.TranscriptSaved{Length: len(transcript)})
	} else if conversation.Transcript == nil || strings.TrimSpace(*conversation.Transcript) == "" {
		o.bus.Emit(conversationUID, eventbus.Error{Message: ErrNoTranscript.Error()})
		return nil, ErrNoTranscript
	} else {
		transcript = *conversation.Transcript
	}

	eval, err := o.evaluator.Evaluate(ctx, transcript, o.cfg.Credential, o.cfg.ScoringModel, rubricPrompt)
	if err != nil {
		o.recordError(ctx, conversation.ID, "scoring failed", err)
		o.bus.Emit(conversationUID, eventbus.Error{Message: err.Error()})
		return nil, err
	}

	updated, err := o.evaluator.PersistEvaluation(ctx, conversationUID, eval)
	if err != nil {
		o.recordError(ctx, conversation.ID, "persist evaluation failed", err)
		o.bus.Emit(conversationUID, eventbus.Error{Message: err.Error()})
		return nil, err
	}

	if updated.OrganizationID != "" {
		if _, err := o.store.IncrementQuota(ctx, updated.OrganizationID, 1); err != nil {
			// The evaluation is already committed; usage accounting must not
			// undo it. Surfaces in logs for reconciliation.
			slog.Warn("quota increment failed after scoring", "organization", updated.OrganizationID, "err", err)
		}
	}

	o.cache.Invalidate(ctx, AnalyticsUserKey(updated.CreatorID))
	if updated.OrganizationID != "" {
		o.cache.Invalidate(ctx, AnalyticsOrgKey(updated.OrganizationID))
	}
	o.indexTranscript(updated, transcript)

	o.bus.Emit(conversationUID, eventbus.ScoreCompleted{Score: eval.Score, Feedback: eval.Feedback})
	o.bus.Emit(conversationUID, eventbus.Status{Code: "session.completed"})
	o.bus.Complete(conversationUID)

	return updated, nil
}

func (o *Orchestrator) lockConversation(uid string) func() {
	o.mu.Lock()
	m, ok := o.locks[uid]
	if !ok {
		m = &sync.Mutex{}
		o.locks[uid] = m
	}
	o.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// recordError appends an ERROR audit record. Best-effort: a failing audit
// write must not mask the original failure.
func (o *Orchestrator) recordError(ctx context.Context, conversationID int32, message string, cause error) {
	if _, err := o.store.CreateConversationLog(ctx, &store.ConversationLog{
		ConversationID: conversationID,
		Role:           "system",
		Type:           store.LogTypeError,
		Content:        fmt.Sprintf("%s: %v", message, cause),
	}); err != nil {
		slog.Warn("failed to record error log", "conversation", conversationID, "err", err)
	}
}

// indexTranscript feeds the transcript to the similarity index when one is
// configured. Failures are logged, never surfaced.
func (o *Orchestrator) indexTranscript(conversation *store.Conversation, transcript string) {
	if o.vectors == nil {
		return
	}
	go func() {
		if err := o.vectors.UpsertTranscript(context.Background(), conversation.CreatorID, conversation.UID, transcript); err != nil {
			slog.Warn("transcript indexing failed", "conversation", conversation.UID, "err", err)
		}
	}()
}
