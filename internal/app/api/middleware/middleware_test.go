package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fatflowers/rentpay/pkg/config"
	"github.com/fatflowers/rentpay/pkg/logctx"
	"github.com/fatflowers/rentpay/pkg/response"
)

const secret = "test-secret"

func newRouter(cfg *config.Config, log *zap.SugaredLogger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware())
	g := r.Group("/")
	g.Use(RequestLoggerMiddleware(log), AccessLogMiddleware(log), OwnerAuthMiddleware(cfg, log))
	g.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, response.OKT(map[string]string{
			"owner":     OwnerID(c),
			"ctx_owner": logctx.OwnerID(c.Request.Context()),
			"trace":     logctx.TraceID(c.Request.Context()),
		}))
	})
	return r
}

func signed(t *testing.T, key, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   subject,
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func call(r *gin.Engine, header map[string]string) (*httptest.ResponseRecorder, response.APIResponse[map[string]string]) {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body response.APIResponse[map[string]string]
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestOwnerAuth_BearerToken(t *testing.T) {
	cfg := &config.Config{Env: config.EnvProd, Auth: config.AuthConfig{JWTSecret: secret}}
	r := newRouter(cfg, zap.NewNop().Sugar())

	w, body := call(r, map[string]string{"Authorization": "Bearer " + signed(t, secret, "owner-1")})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.APIResponseCodeOK, body.Code)
	assert.Equal(t, "owner-1", body.Data["owner"])
	assert.Equal(t, "owner-1", body.Data["ctx_owner"])

	cases := map[string]map[string]string{
		"missing":      nil,
		"not bearer":   {"Authorization": "Basic abc"},
		"wrong secret": {"Authorization": "Bearer " + signed(t, "other", "owner-1")},
		"no subject":   {"Authorization": "Bearer " + signed(t, secret, "")},
		"dev header":   {HeaderOwnerID: "owner-1"},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			w, body := call(r, h)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, response.APIResponseCodeUnauthorized, body.Code)
		})
	}
}

func TestOwnerAuth_DevHeaderFallback(t *testing.T) {
	r := newRouter(&config.Config{Env: config.EnvDev}, zap.NewNop().Sugar())

	_, body := call(r, map[string]string{HeaderOwnerID: "owner-2"})
	assert.Equal(t, response.APIResponseCodeOK, body.Code)
	assert.Equal(t, "owner-2", body.Data["owner"])

	_, body = call(r, nil)
	assert.Equal(t, response.APIResponseCodeUnauthorized, body.Code)
}

func TestOwnerAuth_ProdWithoutSecretRejects(t *testing.T) {
	r := newRouter(&config.Config{Env: config.EnvProd}, zap.NewNop().Sugar())
	_, body := call(r, map[string]string{HeaderOwnerID: "owner-2"})
	assert.Equal(t, response.APIResponseCodeUnauthorized, body.Code)
}

func TestTraceAndAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := newRouter(&config.Config{Env: config.EnvDev}, zap.New(core).Sugar())

	w, body := call(r, map[string]string{HeaderRequestID: "req-42", HeaderOwnerID: "owner-3"})
	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-42", body.Data["trace"])

	access := logs.FilterMessage("http_access").All()
	require.Len(t, access, 1)
	fields := access[0].ContextMap()
	assert.Equal(t, "req-42", fields["trace_id"])
	assert.Equal(t, "owner-3", fields["owner_id"])
	assert.Equal(t, "/whoami", fields["path"])

	w, _ = call(r, map[string]string{HeaderOwnerID: "owner-3"})
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID), "generated when absent")
}
