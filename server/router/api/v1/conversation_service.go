package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/dealcoach/dealcoach/store"
)

type conversationResponse struct {
	UID              string  `json:"uid"`
	Transcript       *string `json:"transcript,omitempty"`
	Score            *int32  `json:"score,omitempty"`
	Feedback         *string `json:"feedback,omitempty"`
	PromptTokens     int32   `json:"promptTokens"`
	CompletionTokens int32   `json:"completionTokens"`
	CreatedTs        int64   `json:"createdTs"`
}

type conversationLogResponse struct {
	ID        int32  `json:"id"`
	Role      string `json:"role"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Context   string `json:"context"`
	CreatedTs int64  `json:"createdTs"`
}

type searchResultResponse struct {
	UID     string  `json:"uid"`
	Snippet string  `json:"snippet"`
	Score   float32 `json:"score"`
}

func toConversationResponse(c *store.Conversation) conversationResponse {
	return conversationResponse{
		UID:              c.UID,
		Transcript:       c.Transcript,
		Score:            c.Score,
		Feedback:         c.Feedback,
		PromptTokens:     c.PromptTokens,
		CompletionTokens: c.CompletionTokens,
		CreatedTs:        c.CreatedTs,
	}
}

func (s *APIV1Service) registerConversationRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/conversations")
	g.GET("", s.listConversations)
	g.GET("/search", s.searchConversations)
	g.GET("/:uid", s.getConversation)
	g.DELETE("/:uid", s.deleteConversation)
	g.GET("/:uid/logs", s.listConversationLogs)
}

// ownedConversation loads the conversation at :uid and verifies ownership.
// Unknown uids and other users' conversations both read as not found.
func (s *APIV1Service) ownedConversation(c *echo.Context, userID int32) (*store.Conversation, error) {
	uid := c.Param("uid")
	conversation, err := s.Store.GetConversation(c.Request().Context(), &store.FindConversation{UID: &uid})
	if err != nil || conversation == nil || conversation.CreatorID != userID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return conversation, nil
}

func (s *APIV1Service) listConversations(c *echo.Context) error {
	claims, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	find := &store.FindConversation{CreatorID: &claims.UserID}
	if v := c.QueryParam("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			find.Limit = &limit
		}
	}
	list, err := s.Store.ListConversations(c.Request().Context(), find)
	if err != nil {
		return httpError(err)
	}
	resp := make([]conversationResponse, 0, len(list))
	for _, conversation := range list {
		resp = append(resp, toConversationResponse(conversation))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) getConversation(c *echo.Context) error {
	claims, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	conversation, err := s.ownedConversation(c, claims.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toConversationResponse(conversation))
}

func (s *APIV1Service) deleteConversation(c *echo.Context) error {
	claims, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	conversation, err := s.ownedConversation(c, claims.UserID)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteConversation(c.Request().Context(), conversation.UID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) listConversationLogs(c *echo.Context) error {
	claims, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	conversation, err := s.ownedConversation(c, claims.UserID)
	if err != nil {
		return err
	}
	logs, err := s.Store.ListConversationLogs(c.Request().Context(), &store.FindConversationLog{
		ConversationID: conversation.ID,
	})
	if err != nil {
		return httpError(err)
	}
	resp := make([]conversationLogResponse, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, conversationLogResponse{
			ID:        l.ID,
			Role:      l.Role,
			Type:      string(l.Type),
			Content:   l.Content,
			Context:   l.Context,
			CreatedTs: l.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) searchConversations(c *echo.Context) error {
	claims, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	if s.Vectors == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "transcript search is not configured")
	}
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}

	results, err := s.Vectors.SearchSimilar(c.Request().Context(), claims.UserID, query, 5)
	if err != nil {
		return httpError(err)
	}
	resp := make([]searchResultResponse, 0, len(results))
	for _, r := range results {
		snippet := r.Transcript
		if len(snippet) > 300 {
			snippet = snippet[:300] + "..."
		}
		resp = append(resp, searchResultResponse{UID: r.ConversationUID, Snippet: snippet, Score: r.Score})
	}
	return c.JSON(http.StatusOK, resp)
}
