package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chicogong/media-compositor/pkg/auth"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}

	h := Chain(func(w http.ResponseWriter, r *http.Request) { order = append(order, "handler") },
		mark("outer"), mark("inner"))
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := Chain(func(w http.ResponseWriter, r *http.Request) { panic("boom") },
		RecoveryMiddleware(zap.New(core)))

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/process", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_server_error")
	assert.Equal(t, 1, logs.FilterMessage("panic in handler").Len())
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := Chain(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Render-ID", "r1")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("hello"))
	}, LoggingMiddleware(zap.New(core)))

	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/process", nil))

	entries := logs.FilterMessage("request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, int64(http.StatusCreated), fields["status"])
		assert.Equal(t, int64(5), fields["bytes"])
		assert.Equal(t, "/process", fields["path"])
		assert.Equal(t, "r1", fields["render_id"])
	}
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	h := Chain(func(w http.ResponseWriter, r *http.Request) { called = true }, CORSMiddleware)

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodOptions, "/process", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
	assert.False(t, called)
}

func TestAuthMiddleware(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	w := httptest.NewRecorder()
	Chain(ok, AuthMiddleware(nil))(w, httptest.NewRequest(http.MethodPost, "/process", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	keys := auth.NewAPIKeyManager()
	assert.NoError(t, keys.Register("sk_test", "ops", "test", nil))
	h := Chain(ok, AuthMiddleware(auth.NewAuthMiddleware(auth.NewJWTManager("secret", time.Hour), keys)))

	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/process", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/process", nil)
	req.Header.Set("X-API-Key", "sk_test")
	w = httptest.NewRecorder()
	h(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
