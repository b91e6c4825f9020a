package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"careerlens/internal/domain"
)

type createSessionRequest struct {
	UID         string               `json:"uid"`
	UserProfile *domain.UserProfile  `json:"userProfile"`
	Config      domain.SessionConfig `json:"config"`
}

type sessionView struct {
	domain.Status
	Transcript []domain.TranscriptItem        `json:"transcript"`
	Feedback   map[int]domain.FeedbackReport `json:"feedback,omitempty"`
}

type utteranceRequest struct {
	Text string `json:"text"`
}

func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p := req.UserProfile
	if p == nil && strings.TrimSpace(req.UID) != "" {
		loaded, err := s.deps.Profiles.Get(c.Request().Context(), req.UID)
		if err != nil {
			return err
		}
		p = &loaded
	}

	session, err := s.deps.Registry.Create(req.Config, p)
	if err != nil {
		return err
	}
	s.log.Info("session created", "session", session.ID(), "mode", session.Config().Mode)
	return c.JSON(http.StatusCreated, session.Status())
}

func (s *Server) getSession(c echo.Context) error {
	session, err := s.deps.Registry.Get(c.Param("id"))
	if err != nil {
		return err
	}
	items := session.Transcript()
	if items == nil {
		items = []domain.TranscriptItem{}
	}
	return c.JSON(http.StatusOK, sessionView{
		Status:     session.Status(),
		Transcript: items,
		Feedback:   session.Feedback(),
	})
}

func (s *Server) endSession(c echo.Context) error {
	if err := s.deps.Registry.End(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) submitUtterance(c echo.Context) error {
	var req utteranceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	session, err := s.deps.Registry.Get(c.Param("id"))
	if err != nil {
		return err
	}
	if err := session.SubmitUtterance(c.Request().Context(), req.Text); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, session.Status())
}
