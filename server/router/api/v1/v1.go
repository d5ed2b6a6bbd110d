// Package v1 exposes the REST surface. Handlers stay thin: identity, input
// binding, and error mapping; the lifecycle work lives in server/session and
// server/scoring.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"

	"github.com/dealcoach/dealcoach/plugin/cache"
	"github.com/dealcoach/dealcoach/plugin/eventbus"
	"github.com/dealcoach/dealcoach/plugin/upstream"
	"github.com/dealcoach/dealcoach/plugin/vectorstore"
	"github.com/dealcoach/dealcoach/server/auth"
	"github.com/dealcoach/dealcoach/server/profile"
	"github.com/dealcoach/dealcoach/server/scoring"
	"github.com/dealcoach/dealcoach/server/session"
	"github.com/dealcoach/dealcoach/store"
)

// APIV1Service carries the wired components for the /api/v1 routes.
type APIV1Service struct {
	Profile      *profile.Profile
	Store        *store.Store
	Bus          *eventbus.Bus
	Orchestrator *session.Orchestrator
	Cache        *cache.Tiered
	Vectors      *vectorstore.Store

	authenticator *auth.Authenticator
}

// NewAPIV1Service creates the service.
func NewAPIV1Service(p *profile.Profile, st *store.Store, bus *eventbus.Bus, orchestrator *session.Orchestrator, tiered *cache.Tiered, vectors *vectorstore.Store) *APIV1Service {
	return &APIV1Service{
		Profile:       p,
		Store:         st,
		Bus:           bus,
		Orchestrator:  orchestrator,
		Cache:         tiered,
		Vectors:       vectors,
		authenticator: auth.NewAuthenticator(p.Secret),
	}
}

// Register mounts all /api/v1 routes on e.
func (s *APIV1Service) Register(e *echo.Echo) {
	s.registerSessionRoutes(e)
	s.registerConversationRoutes(e)
	s.registerAnalyticsRoutes(e)
	s.registerPromptTemplateRoutes(e)
}

func (s *APIV1Service) requireAuth(c *echo.Context) (*auth.Claims, error) {
	claims, err := s.authenticator.Authenticate(c.Request().Header.Get("Authorization"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return claims, nil
}

// httpError maps the core error taxonomy onto HTTP statuses. The original
// message travels with the status; masking for display is a UI concern.
func httpError(err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, session.ErrNoTranscript):
		status = http.StatusBadRequest
	case errors.Is(err, scoring.ErrUnparseable):
		status = http.StatusBadGateway
	default:
		var upstreamErr *upstream.Error
		var timeoutErr *upstream.TimeoutError
		if errors.As(err, &upstreamErr) || errors.As(err, &timeoutErr) {
			status = http.StatusBadGateway
		}
	}
	return echo.NewHTTPError(status, err.Error())
}
