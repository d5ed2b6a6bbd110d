package store

// Conversation is a single coaching session: the negotiated realtime call,
// its captured transcript, and the evaluation produced from it.
type Conversation struct {
	ID             int32
	UID            string
	CreatorID      int32
	OrganizationID string // empty for legacy per-user flows

	// Transcript is attached once the session ends; overwriting is allowed.
	Transcript *string
	// Score and Feedback are always written together by the scoring
	// pipeline, never independently.
	Score    *int32
	Feedback *string

	PromptTokens     int32
	CompletionTokens int32
	CreatedTs        int64
}

// FindConversation filters for ListConversations and SummarizeConversations.
type FindConversation struct {
	UID            *string
	CreatorID      *int32
	OrganizationID *string
	Scored         *bool // only conversations with a score
	Limit          *int
}

// UpdateConversation carries the mutable conversation fields.
type UpdateConversation struct {
	UID              string
	Transcript       *string
	Score            *int32
	Feedback         *string
	PromptTokens     *int32
	CompletionTokens *int32
}

// LogType enumerates conversation audit record kinds.
type LogType string

const (
	LogTypeAIFeedback     LogType = "AI_FEEDBACK"
	LogTypeScoringContext LogType = "SCORING_CONTEXT"
	LogTypeError          LogType = "ERROR"
)

// ConversationLog is an immutable append-only audit record tied to a
// conversation. The core never mutates or deletes these.
type ConversationLog struct {
	ID             int32
	ConversationID int32
	Role           string
	Type           LogType
	Content        string
	Context        string // JSON blob, "{}" when empty
	CreatedTs      int64
}

// FindConversationLog filters for ListConversationLogs.
type FindConversationLog struct {
	ConversationID int32
	Type           *LogType
}

// AnalyticsSummary is the aggregate served by the analytics endpoint.
type AnalyticsSummary struct {
	ConversationCount int64
	ScoredCount       int64
	AverageScore      float64
	PromptTokens      int64
	CompletionTokens  int64
}
