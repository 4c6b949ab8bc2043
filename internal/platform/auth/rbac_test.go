package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func doRequireRole(t *testing.T, userRoles []string, required ...string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, userRoles)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
	return RequireRole(required...)(handler)(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	if err := doRequireRole(t, []string{"billing"}, "admin", "billing"); err != nil {
		t.Errorf("expected access, got %v", err)
	}
}

func TestRequireRole_AdminAlwaysPasses(t *testing.T) {
	if err := doRequireRole(t, []string{"admin"}, "billing"); err != nil {
		t.Errorf("expected admin access, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	err := doRequireRole(t, []string{"nurse"}, "admin", "billing")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	err := doRequireRole(t, nil, "billing")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}
