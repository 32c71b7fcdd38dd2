package controllers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/craftlane/deliveryhub/controllers"
	"github.com/craftlane/deliveryhub/lib/service"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineEndpoints(t *testing.T) {
	env := newTestEnv(t)
	controller := controllers.NewEngineController(env.svc)

	do := func(method, path string, handler func(echo.Context) error) (int, service.EngineStatus) {
		req := httptest.NewRequest(method, path, nil)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)
		require.NoError(t, handler(c))
		var status service.EngineStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		return rec.Code, status
	}

	code, status := do(http.MethodGet, "/engine/status", controller.Status)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, status.Running)
	assert.ElementsMatch(t, []string{"research", "logo"}, status.ServiceTypes)

	code, status = do(http.MethodPost, "/engine/start", controller.Start)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, status.Running)

	code, status = do(http.MethodGet, "/engine/status", controller.Status)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, status.Running)

	code, status = do(http.MethodPost, "/engine/stop", controller.Stop)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, status.Running)
	assert.Zero(t, status.InFlight)
}
