package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/dealcoach/dealcoach/plugin/cache"
	"github.com/dealcoach/dealcoach/server/session"
	"github.com/dealcoach/dealcoach/store"
)

type analyticsSummaryResponse struct {
	ConversationCount int64   `json:"conversationCount"`
	ScoredCount       int64   `json:"scoredCount"`
	AverageScore      float64 `json:"averageScore"`
	PromptTokens      int64   `json:"promptTokens"`
	CompletionTokens  int64   `json:"completionTokens"`
}

func (s *APIV1Service) registerAnalyticsRoutes(e *echo.Echo) {
	e.GET("/api/v1/analytics/summary", s.getAnalyticsSummary)
}

// getAnalyticsSummary serves the caller's aggregate stats. With ?scope=org
// the summary spans the caller's organization instead of just their own
// conversations. Reads go through the tiered cache; scoring invalidates it.
func (s *APIV1Service) getAnalyticsSummary(c *echo.Context) error {
	claims, err := s.requireAuth(c)
	if err != nil {
		return err
	}

	find := &store.FindConversation{CreatorID: &claims.UserID}
	key := session.AnalyticsUserKey(claims.UserID)
	if c.QueryParam("scope") == "org" {
		if claims.OrganizationID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no organization in token")
		}
		find = &store.FindConversation{OrganizationID: &claims.OrganizationID}
		key = session.AnalyticsOrgKey(claims.OrganizationID)
	}

	summary, err := cache.GetOrCompute(c.Request().Context(), s.Cache, key, s.Profile.CacheTTL,
		func(ctx context.Context) (*store.AnalyticsSummary, error) {
			return s.Store.SummarizeConversations(ctx, find)
		})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, analyticsSummaryResponse{
		ConversationCount: summary.ConversationCount,
		ScoredCount:       summary.ScoredCount,
		AverageScore:      summary.AverageScore,
		PromptTokens:      summary.PromptTokens,
		CompletionTokens:  summary.CompletionTokens,
	})
}
