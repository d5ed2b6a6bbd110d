package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/lithammer/shortuuid/v4"

	"github.com/dealcoach/dealcoach/store"
)

type promptTemplateResponse struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Template  string `json:"template"`
	IsDefault bool   `json:"isDefault"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

type createPromptTemplateRequest struct {
	Name      string `json:"name"`
	Template  string `json:"template"`
	IsDefault bool   `json:"isDefault"`
}

type updatePromptTemplateRequest struct {
	Name      *string `json:"name"`
	Template  *string `json:"template"`
	IsDefault *bool   `json:"isDefault"`
}

func toPromptTemplateResponse(t *store.PromptTemplate) promptTemplateResponse {
	return promptTemplateResponse{
		UID:       t.UID,
		Name:      t.Name,
		Template:  t.Template,
		IsDefault: t.IsDefault,
		CreatedTs: t.CreatedTs,
		UpdatedTs: t.UpdatedTs,
	}
}

func (s *APIV1Service) registerPromptTemplateRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/prompts")
	g.POST("", s.createPromptTemplate)
	g.GET("", s.listPromptTemplates)
	g.GET("/:uid", s.getPromptTemplate)
	g.PATCH("/:uid", s.updatePromptTemplate)
	g.DELETE("/:uid", s.deletePromptTemplate)
}

func (s *APIV1Service) createPromptTemplate(c *echo.Context) error {
	if _, err := s.requireAuth(c); err != nil {
		return err
	}
	req := &createPromptTemplateRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Template) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name and template are required")
	}
	created, err := s.Store.CreatePromptTemplate(c.Request().Context(), &store.PromptTemplate{
		UID:       shortuuid.New(),
		Name:      req.Name,
		Template:  req.Template,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toPromptTemplateResponse(created))
}

func (s *APIV1Service) listPromptTemplates(c *echo.Context) error {
	if _, err := s.requireAuth(c); err != nil {
		return err
	}
	list, err := s.Store.ListPromptTemplates(c.Request().Context(), &store.FindPromptTemplate{})
	if err != nil {
		return httpError(err)
	}
	resp := make([]promptTemplateResponse, 0, len(list))
	for _, t := range list {
		resp = append(resp, toPromptTemplateResponse(t))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) getPromptTemplate(c *echo.Context) error {
	if _, err := s.requireAuth(c); err != nil {
		return err
	}
	uid := c.Param("uid")
	template, err := s.Store.GetPromptTemplate(c.Request().Context(), &store.FindPromptTemplate{UID: &uid})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toPromptTemplateResponse(template))
}

func (s *APIV1Service) updatePromptTemplate(c *echo.Context) error {
	if _, err := s.requireAuth(c); err != nil {
		return err
	}
	req := &updatePromptTemplateRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == nil && req.Template == nil && req.IsDefault == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nothing to update")
	}
	updated, err := s.Store.UpdatePromptTemplate(c.Request().Context(), &store.UpdatePromptTemplate{
		UID:       c.Param("uid"),
		Name:      req.Name,
		Template:  req.Template,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toPromptTemplateResponse(updated))
}

func (s *APIV1Service) deletePromptTemplate(c *echo.Context) error {
	if _, err := s.requireAuth(c); err != nil {
		return err
	}
	if err := s.Store.DeletePromptTemplate(c.Request().Context(), c.Param("uid")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
