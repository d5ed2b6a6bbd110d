package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/dealcoach/dealcoach/plugin/eventbus"
	"github.com/dealcoach/dealcoach/server/scoring"
	"github.com/dealcoach/dealcoach/store"
)

// heartbeatInterval paces SSE keep-alive comments; independent of event flow.
const heartbeatInterval = 25 * time.Second

type startSessionRequest struct {
	SDP   string `json:"sdp"`
	Model string `json:"model"`
}

type startSessionResponse struct {
	UID       string `json:"uid"`
	Answer    string `json:"answer"`
	CreatedTs int64  `json:"createdTs"`
}

type transcriptRequest struct {
	Transcript string `json:"transcript"`
}

type finalizeRequest struct {
	Transcript string            `json:"transcript"`
	RubricUID  string            `json:"rubricUid"`
	RubricVars map[string]string `json:"rubricVars"`
}

func (s *APIV1Service) registerSessionRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/conversations")
	g.POST("", s.startSession)
	g.POST("/:uid/transcript", s.saveTranscript)
	g.POST("/:uid/finalize", s.finalizeSession)
	g.GET("/:uid/events", s.streamSessionEvents)
}

func (s *APIV1Service) startSession(c *echo.Context) error {
	claims, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	var req startSessionRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.SDP) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sdp offer required")
	}

	result, err := s.Orchestrator.Start(c.Request().Context(), claims.UserID, claims.OrganizationID, req.SDP, req.Model)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, startSessionResponse{
		UID:       result.Conversation.UID,
		Answer:    result.AnswerSDP,
		CreatedTs: result.Conversation.CreatedTs,
	})
}

func (s *APIV1Service) saveTranscript(c *echo.Context) error {
	claims, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	conversation, err := s.ownedConversation(c, claims.UserID)
	if err != nil {
		return err
	}
	var req transcriptRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Transcript) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "transcript required")
	}

	updated, err := s.Orchestrator.SaveTranscript(c.Request().Context(), conversation.UID, req.Transcript)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(updated))
}

func (s *APIV1Service) finalizeSession(c *echo.Context) error {
	claims, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	conversation, err := s.ownedConversation(c, claims.UserID)
	if err != nil {
		return err
	}
	var req finalizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rubric, err := s.resolveRubric(c, &req)
	if err != nil {
		return err
	}

	updated, err := s.Orchestrator.Finalize(c.Request().Context(), conversation.UID, req.Transcript, rubric)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(updated))
}

// resolveRubric loads the requested (or default) rubric template and renders
// its variables. An empty result lets the scoring pipeline fall back to its
// built-in rubric.
func (s *APIV1Service) resolveRubric(c *echo.Context, req *finalizeRequest) (string, error) {
	ctx := c.Request().Context()
	find := &store.FindPromptTemplate{}
	if req.RubricUID != "" {
		find.UID = &req.RubricUID
	} else {
		isDefault := true
		find.IsDefault = &isDefault
	}
	template, err := s.Store.GetPromptTemplate(ctx, find)
	if err != nil {
		if req.RubricUID != "" {
			return "", httpError(err)
		}
		return "", nil // no default configured
	}

	vars := make(map[string]any, len(req.RubricVars))
	for k, v := range req.RubricVars {
		vars[k] = v
	}
	rendered, err := scoring.RenderRubric(template.Template, vars)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return rendered, nil
}

func (s *APIV1Service) streamSessionEvents(c *echo.Context) error {
	claims, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	conversation, err := s.ownedConversation(c, claims.UserID)
	if err != nil {
		return err
	}

	rw := c.Response()
	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.Header().Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)

	flush := func() {
		if f, ok := rw.(http.Flusher); ok {
			f.Flush()
		}
	}

	// The buffer covers the replayed history plus a burst of live events; a
	// subscriber that cannot drain in time loses the overflow rather than
	// stalling every other listener on the conversation.
	events := make(chan eventbus.Event, 2*eventbus.DefaultHistoryLimit)
	unsubscribe := s.Bus.Subscribe(conversation.UID, func(ev eventbus.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	ctx := c.Request().Context()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			fmt.Fprint(rw, ": heartbeat\n\n")
			flush()
		case ev := <-events:
			data, _ := json.Marshal(sseEventPayload(ev))
			fmt.Fprintf(rw, "data: %s\n\n", data)
			flush()
			if streamEnds(ev) {
				return nil
			}
		}
	}
}

// sseEventPayload maps every event variant onto its wire form. The switch is
// exhaustive over the closed event set.
func sseEventPayload(ev eventbus.Event) map[string]any {
	switch e := ev.(type) {
	case eventbus.SessionStarted:
		return map[string]any{"type": e.Kind(), "conversation": e.ConversationUID}
	case eventbus.Status:
		return map[string]any{"type": e.Kind(), "code": e.Code, "detail": e.Detail}
	case eventbus.TranscriptSaved:
		return map[string]any{"type": e.Kind(), "length": e.Length}
	case eventbus.ScoreCompleted:
		return map[string]any{"type": e.Kind(), "score": e.Score, "feedback": e.Feedback}
	case eventbus.Error:
		return map[string]any{"type": e.Kind(), "message": e.Message}
	}
	return map[string]any{"type": ev.Kind()}
}

// streamEnds reports whether the event terminates the SSE stream: the
// completed status or an error.
func streamEnds(ev eventbus.Event) bool {
	switch e := ev.(type) {
	case eventbus.Status:
		return e.Code == "session.completed"
	case eventbus.Error:
		return true
	}
	return false
}
