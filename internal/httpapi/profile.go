package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type saveProfileRequest struct {
	UID         string         `json:"uid"`
	ProfileData map[string]any `json:"profileData"`
}

func (s *Server) getProfile(c echo.Context) error {
	p, err := s.deps.Profiles.Get(c.Request().Context(), c.QueryParam("uid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) saveProfile(c echo.Context) error {
	var req saveProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.deps.Profiles.Save(c.Request().Context(), req.UID, req.ProfileData); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}
