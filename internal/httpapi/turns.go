package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
	"careerlens/internal/usecase"
)

const mimeNDJSON = "application/x-ndjson"

type turnRequest struct {
	UserProfile *domain.UserProfile     `json:"userProfile"`
	Transcript  []domain.TranscriptItem `json:"transcript"`
	Stream      bool                    `json:"stream"`
	domain.SessionConfig
}

type turnResponse struct {
	ResponseText     string                  `json:"responseText"`
	QuestionCategory domain.QuestionCategory `json:"questionCategory,omitempty"`
	Feedback         *domain.FeedbackReport  `json:"feedback,omitempty"`
	IsEndOfSession   bool                    `json:"isEndOfSession"`
	Directive        domain.TurnDirective    `json:"directive"`
	ExchangeCount    int                     `json:"exchangeCount"`
	Avatar           *ports.Handshake        `json:"avatar,omitempty"`
}

type textChunk struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	turnResponse
}

type metaChunk struct {
	Type string `json:"type"`
	ports.Handshake
}

type errorChunk struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (s *Server) postTurn(c echo.Context) error {
	return s.respondTurn(c, "")
}

func (s *Server) postEnglishTurn(c echo.Context) error {
	return s.respondTurn(c, domain.ModeEnglishPractice)
}

func (s *Server) respondTurn(c echo.Context, defaultMode domain.Mode) error {
	var req turnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Mode == "" {
		req.Mode = defaultMode
	}

	ctx := c.Request().Context()
	out, err := s.deps.Turns.Respond(ctx, usecase.TurnRequest{
		Profile:    req.UserProfile,
		Transcript: req.Transcript,
		Config:     req.SessionConfig,
	})
	if err != nil {
		return err
	}
	resp := turnResponse{
		ResponseText:     out.Result.ResponseText,
		QuestionCategory: out.Result.QuestionCategory,
		Feedback:         out.Result.Feedback,
		IsEndOfSession:   out.Result.IsEndOfSession,
		Directive:        out.Directive,
		ExchangeCount:    out.ExchangeCount,
	}

	if !req.Stream && !strings.Contains(c.Request().Header.Get(echo.HeaderAccept), mimeNDJSON) {
		h, err := s.deps.Turns.OpenAvatar(ctx, req.SessionConfig, resp.ResponseText)
		if err != nil {
			return err
		}
		resp.Avatar = h
		return c.JSON(http.StatusOK, resp)
	}

	// The text goes out before the avatar stream is ready so the client can
	// show it immediately.
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, mimeNDJSON)
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	if err := enc.Encode(textChunk{Type: "text", Content: resp.ResponseText, turnResponse: resp}); err != nil {
		return nil
	}
	w.Flush()

	h, err := s.deps.Turns.OpenAvatar(ctx, req.SessionConfig, resp.ResponseText)
	switch {
	case err != nil:
		s.log.Warn("avatar stream failed", "avatar", req.Avatar, "error", err)
		_ = enc.Encode(errorChunk{Type: "error", Code: string(domain.ErrorCodeResources), Message: err.Error()})
	case h != nil:
		_ = enc.Encode(metaChunk{Type: "meta", Handshake: *h})
	}
	w.Flush()
	return nil
}
