package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/api/handlers"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func TestRouter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRouter(ctx, Dependencies{
		HealthHandler:  handlers.NewHealthHandler(nil),
		AssetsHandler:  handlers.NewAssetsHandler(nil),
		ImportsHandler: handlers.NewImportsHandler(nil, nil, validator.New()),
		RateLimitRPS:   1,
		RateLimitBurst: 2,
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "req-1", rr.Header().Get("X-Request-ID"))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRouterRecoversPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// a nil service makes the asset handler panic
	r := NewRouter(ctx, Dependencies{
		HealthHandler:  handlers.NewHealthHandler(nil),
		AssetsHandler:  handlers.NewAssetsHandler(nil),
		ImportsHandler: handlers.NewImportsHandler(nil, nil, validator.New()),
	})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/assets/rack-1", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
