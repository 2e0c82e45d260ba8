package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"markov-go/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	s, err := NewServer(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	w := serve(s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestRegisterGenerateAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := serve(s, http.MethodPost, "/api/v1/corpora",
		`{"name":"cats","tokens":["The","cat","sat",".","The","cat","sat",".","The","cat"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(s, http.MethodPost, "/api/v1/corpora/cats/pseudorandom", `{"length":3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "The cat sat.", body["text"])

	w = serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "markov_generations_total")
	assert.Contains(t, w.Body.String(), "markov_corpora")
}

func TestMcpRoute(t *testing.T) {
	enabled := newTestServer(t, func(cfg *config.Config) { cfg.Mcp.Enabled = true })
	w := serve(enabled, http.MethodGet, "/mcp", "")
	assert.NotEqual(t, http.StatusNotFound, w.Code)

	disabled := newTestServer(t, nil)
	w = serve(disabled, http.MethodGet, "/mcp", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCustomRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CustomRecoveryMiddleware(zap.NewNop()))
	router.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}
