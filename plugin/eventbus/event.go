package eventbus

// Event is a lifecycle signal broadcast to live observers of a conversation.
// The type is a closed sum: every variant lives in this file and consumers
// switch over all of them.
type Event interface {
	Kind() string
	isEvent()
}

// SessionStarted signals a successful upstream negotiation.
type SessionStarted struct {
	ConversationUID string
}

func (SessionStarted) Kind() string { return "session.started" }
func (SessionStarted) isEvent()     {}

// Status carries a status-code string and an optional detail map.
type Status struct {
	Code   string
	Detail map[string]string
}

func (Status) Kind() string { return "status" }
func (Status) isEvent()     {}

// TranscriptSaved signals the transcript has been persisted.
type TranscriptSaved struct {
	Length int
}

func (TranscriptSaved) Kind() string { return "transcript.saved" }
func (TranscriptSaved) isEvent()     {}

// ScoreCompleted signals a finished scoring pass.
type ScoreCompleted struct {
	Score    int32
	Feedback string
}

func (ScoreCompleted) Kind() string { return "score.completed" }
func (ScoreCompleted) isEvent()     {}

// Error signals a failed lifecycle step. The conversation may still be
// retried by the caller; the event stream for it ends here.
type Error struct {
	Message string
}

func (Error) Kind() string { return "error" }
func (Error) isEvent()     {}
