package middlewares

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/eventpass/internal/auth"
	"github.com/geocoder89/eventpass/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type fakeVerifier struct {
	claims *auth.Claims
	err    error
}

func (f fakeVerifier) VerifyAccessToken(string) (*auth.Claims, error) {
	return f.claims, f.err
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	return r
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		verifier   fakeVerifier
		wantStatus int
	}{
		{"missing header", "", fakeVerifier{}, http.StatusUnauthorized},
		{"not bearer", "Basic abc", fakeVerifier{}, http.StatusUnauthorized},
		{"empty token", "Bearer ", fakeVerifier{}, http.StatusUnauthorized},
		{"invalid token", "Bearer x", fakeVerifier{err: errors.New("bad")}, http.StatusUnauthorized},
		{"ok", "Bearer x", fakeVerifier{claims: &auth.Claims{UserID: "u1", Role: user.RoleStudent}}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAuthMiddleware(tt.verifier)
			r := newEngine()
			r.GET("/me", m.RequireAuth(), func(c *gin.Context) {
				p, ok := PrincipalFromContext(c)
				if !ok || p.ID != "u1" {
					t.Fatalf("expected principal u1, got %+v", p)
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d body=%s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	m := NewAuthMiddleware(fakeVerifier{})

	tests := []struct {
		role       string
		wantStatus int
	}{
		{"", http.StatusUnauthorized},
		{user.RoleStudent, http.StatusForbidden},
		{user.RoleCoordinator, http.StatusOK},
		{user.RoleAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		r := newEngine()
		r.POST("/events", func(c *gin.Context) {
			if tt.role != "" {
				SetPrincipal(c, user.Principal{ID: "u1", Role: tt.role})
			}
			c.Next()
		}, m.RequireRole(user.RoleCoordinator, user.RoleAdmin), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/events", nil))
		if w.Code != tt.wantStatus {
			t.Fatalf("role %q: expected %d, got %d", tt.role, tt.wantStatus, w.Code)
		}
	}
}

func TestRateLimiter_PerKeyBuckets(t *testing.T) {
	rl := NewRateLimiter(LimiterConfig{RPS: 0.001, Burst: 2, IdleTTL: time.Minute})

	r := newEngine()
	r.POST("/r", func(c *gin.Context) {
		SetPrincipal(c, user.Principal{ID: c.GetHeader("X-User")})
		c.Next()
	}, rl.Middleware(KeyByUserOrIP), func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(uid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/r", nil)
		req.Header.Set("X-User", uid)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := send("a"); w.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, w.Code)
		}
	}

	w := send("a")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	if w := send("b"); w.Code != http.StatusCreated {
		t.Fatalf("other user must have its own bucket, got %d", w.Code)
	}

	if removed := rl.Sweep(time.Now().Add(2 * time.Minute)); removed != 2 {
		t.Fatalf("expected 2 idle buckets swept, got %d", removed)
	}
}

func TestRequireJSON(t *testing.T) {
	r := newEngine()
	r.Use(RequireJSON())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name, ct, body string
		want           int
	}{
		{"json", "application/json; charset=utf-8", "{}", http.StatusOK},
		{"text", "text/plain", "hi", http.StatusUnsupportedMediaType},
		{"no body", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(tt.body))
		if tt.ct != "" {
			req.Header.Set("Content-Type", tt.ct)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.name, tt.want, w.Code)
		}
	}
}

func TestMaxBodyBytes(t *testing.T) {
	r := newEngine()
	r.Use(MaxBodyBytes(4))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("too large")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestRequestID_EchoesHeader(t *testing.T) {
	r := newEngine()
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("X-Request-Id") != "abc" || w.Body.String() != "abc" {
		t.Fatalf("request id not propagated: header=%q body=%q", w.Header().Get("X-Request-Id"), w.Body.String())
	}
}

func TestRequestLogger_LevelsAndCause(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		cause     error
		wantLevel string
		wantErr   string
	}{
		{"ok", http.StatusOK, nil, "INFO", ""},
		{"handled failure", http.StatusNoContent, errors.New("purge registrations: mongo timeout"), "WARN", "purge registrations: mongo timeout"},
		{"internal error", http.StatusInternalServerError, errors.New("insert registration: connection reset"), "ERROR", "insert registration: connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, nil))

			r := newEngine()
			r.Use(RequestLogger(log))
			r.GET("/x", func(c *gin.Context) {
				if tt.cause != nil {
					_ = c.Error(tt.cause)
				}
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			var line struct {
				Level  string `json:"level"`
				Msg    string `json:"msg"`
				Status int    `json:"status"`
				Err    string `json:"err"`
			}
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("decode log line %q: %v", buf.String(), err)
			}
			if line.Msg != "http_request" || line.Status != tt.status {
				t.Fatalf("unexpected log line: %s", buf.String())
			}
			if line.Level != tt.wantLevel {
				t.Fatalf("expected level %s, got %s", tt.wantLevel, line.Level)
			}
			if line.Err != tt.wantErr {
				t.Fatalf("expected err %q, got %q", tt.wantErr, line.Err)
			}
		})
	}
}
