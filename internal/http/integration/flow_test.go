package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/geocoder89/eventpass/internal/auth"
	"github.com/geocoder89/eventpass/internal/catalog"
	"github.com/geocoder89/eventpass/internal/config"
	"github.com/geocoder89/eventpass/internal/db"
	"github.com/geocoder89/eventpass/internal/domain/registration"
	apphttp "github.com/geocoder89/eventpass/internal/http"
	"github.com/geocoder89/eventpass/internal/jobs"
	"github.com/geocoder89/eventpass/internal/notifications"
	"github.com/geocoder89/eventpass/internal/queue/redisqueue"
	"github.com/geocoder89/eventpass/internal/queue/worker"
	"github.com/geocoder89/eventpass/internal/repo"
	"github.com/geocoder89/eventpass/internal/service"
	"github.com/geocoder89/eventpass/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password"
)

type apiErrorResponse struct {
	Error struct {
		Code      string          `json:"code"`
		Message   string          `json:"message"`
		RequestID string          `json:"requestId"`
		Details   json.RawMessage `json:"details"`
	} `json:"error"`
}

type recordingNotifier struct {
	mu            sync.Mutex
	confirmations []notifications.SendRegistrationConfirmationInput
	cancellations []notifications.SendCancellationNoticeInput
}

func (n *recordingNotifier) SendRegistrationConfirmation(_ context.Context, in notifications.SendRegistrationConfirmationInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, in)
	return nil
}

func (n *recordingNotifier) SendCancellationNotice(_ context.Context, in notifications.SendCancellationNoticeInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancellations = append(n.cancellations, in)
	return nil
}

type app struct {
	router   *gin.Engine
	queue    *redisqueue.Queue
	worker   *worker.Worker
	notifier *recordingNotifier
}

// newApp wires the whole api over the in-memory store and a miniredis queue.
func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	stores := repo.Memory()
	_, err := db.EnsureAdminUser(ctx, stores.Users, config.Config{
		AdminEmail:    adminEmail,
		AdminPassword: adminPassword,
		AdminName:     "Admin",
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	queue := redisqueue.New(rdb, "it:jobs")

	blobs, err := storage.NewLocalStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	events := catalog.NewCached(stores.Events, time.Minute)
	svc := service.NewRegistrationService(events, stores.Registrations, service.Options{
		Logger: log,
		Queue:  queue,
		Proofs: blobs,
	})

	router := apphttp.NewRouter(apphttp.Deps{
		Log:            log,
		Env:            "test",
		Tokens:         auth.NewManager("integration-secret", time.Hour),
		Users:          stores.Users,
		Events:         stores.Events,
		EventCache:     events,
		Purger:         stores.Registrations,
		Registrations:  svc,
		Blobs:          blobs,
		Jobs:           queue,
		MaxBodyBytes:   1 << 20,
		MaxUploadBytes: 1 << 20,
	})

	notifier := &recordingNotifier{}
	w := worker.New(worker.Config{WorkerID: "it", PollTimeout: time.Second}, queue, notifier, log, nil)

	return &app{router: router, queue: queue, worker: w, notifier: notifier}
}

func (a *app) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *app) signUp(t *testing.T, email, role string) string {
	t.Helper()

	w := a.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"email":    email,
		"password": "correct-horse",
		"name":     "User " + email,
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return tokenFrom(t, w)
}

func (a *app) login(t *testing.T, email, password string) string {
	t.Helper()

	w := a.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return tokenFrom(t, w)
}

func (a *app) createEvent(t *testing.T, token string, capacity int, baseFee float64) string {
	t.Helper()

	w := a.do(t, http.MethodPost, "/events", token, map[string]any{
		"title":                   "Gophers Summit",
		"date":                    time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"location":                "Hall A",
		"capacity":                capacity,
		"baseFee":                 baseFee,
		"lastMinuteFeeMultiplier": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var ev struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	return ev.ID
}

// drain runs the worker until the ready list is empty.
func (a *app) drain(t *testing.T) int {
	t.Helper()

	n := 0
	for {
		processed, err := a.worker.ProcessOne(context.Background())
		require.NoError(t, err)
		if !processed {
			return n
		}
		n++
	}
}

func tokenFrom(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestRegistrationFlow(t *testing.T) {
	a := newApp(t)

	coord := a.signUp(t, "coord@example.com", "coordinator")
	ada := a.signUp(t, "ada@example.com", "")
	grace := a.signUp(t, "grace@example.com", "student")

	eventID := a.createEvent(t, coord, 1, 10)
	regsPath := "/events/" + eventID + "/registrations"

	// students cannot create events
	w := a.do(t, http.MethodPost, "/events", ada, map[string]any{"title": "Nope", "date": time.Now().Add(time.Hour), "capacity": 1})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, regsPath, ada, map[string]any{"ticketType": "Standard"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[registration.Registration](t, w)
	require.Equal(t, 10.0, first.FeeTotal)
	require.False(t, first.IsLastMinute)

	w = a.do(t, http.MethodPost, regsPath, ada, map[string]any{})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "already_registered", decode[apiErrorResponse](t, w).Error.Code)

	require.Equal(t, 1, a.drain(t))
	require.Len(t, a.notifier.confirmations, 1)
	require.Equal(t, first.TicketCode, a.notifier.confirmations[0].TicketCode)
	require.Equal(t, "Gophers Summit", a.notifier.confirmations[0].EventTitle)

	w = a.do(t, http.MethodPost, regsPath, grace, map[string]any{})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "event_full", decode[apiErrorResponse](t, w).Error.Code)

	w = a.do(t, http.MethodPost, regsPath, grace, map[string]any{"lastMinute": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	late := decode[registration.Registration](t, w)
	require.True(t, late.IsLastMinute)
	require.Equal(t, 20.0, late.FeeTotal)

	w = a.do(t, http.MethodGet, regsPath, coord, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Count int `json:"count"`
	}](t, w)
	require.Equal(t, 2, list.Count)

	w = a.do(t, http.MethodGet, regsPath, ada, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, "/registrations/"+first.ID+"/payment", coord, map[string]any{"status": "Paid"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodDelete, "/registrations/"+first.ID, ada, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, registration.StatusCancelled, decode[registration.Registration](t, w).PaymentStatus)

	require.Equal(t, 2, a.drain(t))
	require.Len(t, a.notifier.cancellations, 1)
	require.Equal(t, first.ID, a.notifier.cancellations[0].RegistrationID)

	w = a.do(t, http.MethodGet, "/me/registrations", ada, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[struct {
		Registrations []registration.Registration `json:"registrations"`
	}](t, w)
	require.Len(t, mine.Registrations, 1)
	require.Equal(t, registration.StatusCancelled, mine.Registrations[0].PaymentStatus)
}

func TestUploadThenTeamRegistration(t *testing.T) {
	a := newApp(t)

	coord := a.signUp(t, "coord@example.com", "coordinator")
	lead := a.signUp(t, "lead@example.com", "student")
	eventID := a.createEvent(t, coord, 10, 15)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "receipt.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 receipt"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads/payment-proof", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+lead)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	ref := decode[struct {
		Ref string `json:"ref"`
	}](t, w).Ref
	require.NotEmpty(t, ref)

	team := map[string]any{
		"variant":         "team",
		"teamName":        "Concurrency Crew",
		"memberCount":     3,
		"members":         []map[string]string{{"name": "Lead"}, {"name": "Rob"}, {"name": "Ken"}},
		"paperTitle":      "Channels at scale",
		"paymentProofRef": ref,
	}
	w = a.do(t, http.MethodPost, "/events/"+eventID+"/registrations", lead, team)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	reg := decode[registration.Registration](t, w)
	require.Equal(t, registration.VariantTeam, reg.Variant)
	require.Equal(t, 3, reg.PartySize)
	require.Equal(t, 45.0, reg.FeeTotal)
	require.Equal(t, ref, reg.PaymentProofRef)

	// same team name from another account is the same party
	other := a.signUp(t, "other@example.com", "student")
	w = a.do(t, http.MethodPost, "/events/"+eventID+"/registrations", other, team)
	require.Equal(t, http.StatusConflict, w.Code)

	proofPath := "/registrations/" + reg.ID + "/payment-proof"

	w = a.do(t, http.MethodGet, proofPath, lead, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "%PDF-1.4 receipt", w.Body.String())
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	w = a.do(t, http.MethodGet, proofPath, coord, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, proofPath, other, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// a ref that was never uploaded is not accepted
	ghost := map[string]any{
		"variant":         "team",
		"teamName":        "Ghost Crew",
		"memberCount":     2,
		"members":         []map[string]string{{"name": "A"}, {"name": "B"}},
		"paymentProofRef": "proof_never_uploaded.pdf",
	}
	w = a.do(t, http.MethodPost, "/events/"+eventID+"/registrations", other, ghost)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "missing_payment_proof", decode[apiErrorResponse](t, w).Error.Code)
}

func TestPaymentProofForIndividualIsNotFound(t *testing.T) {
	a := newApp(t)

	coord := a.signUp(t, "coord@example.com", "coordinator")
	ada := a.signUp(t, "ada@example.com", "student")
	eventID := a.createEvent(t, coord, 5, 10)

	w := a.do(t, http.MethodPost, "/events/"+eventID+"/registrations", ada, map[string]any{})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reg := decode[registration.Registration](t, w)

	w = a.do(t, http.MethodGet, "/registrations/"+reg.ID+"/payment-proof", ada, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "file_not_found", decode[apiErrorResponse](t, w).Error.Code)
}

func TestEventDeleteRemovesRegistrations(t *testing.T) {
	a := newApp(t)

	coord := a.signUp(t, "coord@example.com", "coordinator")
	ada := a.signUp(t, "ada@example.com", "student")
	eventID := a.createEvent(t, coord, 5, 0)

	w := a.do(t, http.MethodPost, "/events/"+eventID+"/registrations", ada, map[string]any{})
	require.Equal(t, http.StatusCreated, w.Code)

	other := a.signUp(t, "other-coord@example.com", "coordinator")
	w = a.do(t, http.MethodDelete, "/events/"+eventID, other, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodDelete, "/events/"+eventID, coord, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, "/events/"+eventID, "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/me/registrations", ada, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, decode[struct {
		Count int `json:"count"`
	}](t, w).Count)
}

func TestAdminJobsEndpoints(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	student := a.signUp(t, "ada@example.com", "student")
	admin := a.login(t, adminEmail, adminPassword)

	w := a.do(t, http.MethodGet, "/admin/jobs/stats", student, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	j, err := jobs.Build(jobs.JobSendRegistrationConfirmation, jobs.RegistrationConfirmationPayload{
		RegistrationID: "reg-1",
		EventID:        "evt-1",
		Email:          "ada@example.com",
		TicketCode:     "ABC123-000001",
	})
	require.NoError(t, err)
	require.NoError(t, a.queue.Enqueue(ctx, j))

	d, err := a.queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, a.queue.DeadLetter(ctx, d))

	w = a.do(t, http.MethodGet, "/admin/jobs/dead", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 1, decode[struct {
		Count int `json:"count"`
	}](t, w).Count)

	w = a.do(t, http.MethodPost, "/admin/jobs/dead/"+j.ID+"/requeue", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/admin/jobs/dead/"+j.ID+"/requeue", admin, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/admin/jobs/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	depths := decode[redisqueue.Depths](t, w)
	require.Equal(t, int64(1), depths.Ready)
	require.Zero(t, depths.Dead)
}

func TestAuthEndpoints(t *testing.T) {
	a := newApp(t)

	w := a.do(t, http.MethodGet, "/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token := a.signUp(t, "ada@example.com", "student")

	w = a.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}](t, w)
	require.Equal(t, "ada@example.com", me.Email)
	require.Equal(t, "student", me.Role)

	w = a.do(t, http.MethodPost, "/auth/login", "", map[string]any{"email": "ada@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "invalid_credentials", decode[apiErrorResponse](t, w).Error.Code)

	// admin cannot be claimed through signup
	w = a.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"email": "mallory@example.com", "password": "correct-horse", "name": "M", "role": "admin",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
