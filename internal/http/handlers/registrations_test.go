package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/eventpass/internal/domain/event"
	"github.com/geocoder89/eventpass/internal/domain/registration"
	"github.com/geocoder89/eventpass/internal/domain/user"
	"github.com/geocoder89/eventpass/internal/http/handlers"
	"github.com/geocoder89/eventpass/internal/http/middlewares"
	"github.com/geocoder89/eventpass/internal/repo/memory"
	"github.com/geocoder89/eventpass/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type regFixture struct {
	events *memory.EventsRepo
	ledger *memory.RegistrationsRepo
	router *gin.Engine
	as     *user.Principal
}

// newRegFixture mounts every registration route; the caller is whatever
// f.as points at when the request is served.
func newRegFixture(t *testing.T) *regFixture {
	t.Helper()

	f := &regFixture{
		events: memory.NewEventsRepo(),
		ledger: memory.NewRegistrationsRepo(),
	}

	svc := service.NewRegistrationService(f.events, f.ledger, service.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h := handlers.NewRegistrationHandler(svc)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if f.as != nil {
			middlewares.SetPrincipal(c, *f.as)
		}
		c.Next()
	})
	r.POST("/events/:id/registrations", h.Register)
	r.GET("/events/:id/registrations", h.ListForEvent)
	r.DELETE("/events/:id/registrations/:registrationId", h.DeleteForEvent)
	r.GET("/me/registrations", h.ListMine)
	r.GET("/registrations/:id", h.Get)
	r.PATCH("/registrations/:id", h.Update)
	r.DELETE("/registrations/:id", h.Cancel)
	r.POST("/registrations/:id/payment", h.Payment)
	f.router = r

	return f
}

func (f *regFixture) seedEvent(t *testing.T, capacity int, date time.Time) event.Event {
	t.Helper()

	e := ownedEvent(newUUID(), coordinator.ID)
	e.Capacity = capacity
	e.Date = date
	e.BaseFee = 20
	e.LastMinuteFeeMultiplier = 1.5

	saved, err := f.events.Create(context.Background(), e)
	require.NoError(t, err)
	return saved
}

func (f *regFixture) do(as *user.Principal, method, path, body string, header ...string) *httptest.ResponseRecorder {
	f.as = as

	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeRegistration(t *testing.T, w *httptest.ResponseRecorder) registration.Registration {
	t.Helper()

	var reg registration.Registration
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	return reg
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestRegisterHandler(t *testing.T) {
	f := newRegFixture(t)
	ev := f.seedEvent(t, 10, time.Now().Add(48*time.Hour))
	path := "/events/" + ev.ID + "/registrations"

	w := f.do(&student, http.MethodPost, path, `{"ticketType":"VIP"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	reg := decodeRegistration(t, w)
	require.Equal(t, registration.StatusPending, reg.PaymentStatus)
	require.Equal(t, "VIP", reg.TicketType)
	require.Equal(t, 20.0, reg.FeeTotal)
	require.NotEmpty(t, reg.TicketCode)

	w = f.do(&student, http.MethodPost, path, `{}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "already_registered", errorCode(t, w))
}

func TestRegisterHandler_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		date     time.Duration
		as       *user.Principal
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "anonymous", capacity: 5, date: time.Hour, body: `{}`, wantCode: http.StatusUnauthorized},
		{name: "past_event", capacity: 5, date: -time.Hour, as: &student, body: `{}`, wantCode: http.StatusConflict, wantErr: "event_closed"},
		{name: "unknown_ticket_type", capacity: 5, date: time.Hour, as: &student, body: `{"ticketType":"Gold"}`, wantCode: http.StatusBadRequest, wantErr: "invalid_ticket_type"},
		{
			name: "team_size_mismatch", capacity: 5, date: time.Hour, as: &student,
			body:     `{"variant":"team","teamName":"Gophers","memberCount":3,"members":[{"name":"A"},{"name":"B"}],"paymentProofRef":"proof_1.pdf"}`,
			wantCode: http.StatusUnprocessableEntity, wantErr: "invalid_party_size",
		},
		{
			name: "team_without_proof", capacity: 5, date: time.Hour, as: &student,
			body:     `{"variant":"team","teamName":"Gophers","memberCount":2,"members":[{"name":"A"},{"name":"B"}]}`,
			wantCode: http.StatusUnprocessableEntity, wantErr: "missing_payment_proof",
		},
		{
			name: "team_without_name", capacity: 5, date: time.Hour, as: &student,
			body:     `{"variant":"team","teamName":"  ","memberCount":2,"members":[{"name":"A"},{"name":"B"}],"paymentProofRef":"proof_1.pdf"}`,
			wantCode: http.StatusUnprocessableEntity, wantErr: "invalid_party",
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			f := newRegFixture(t)
			ev := f.seedEvent(t, tt.capacity, time.Now().Add(tt.date))

			w := f.do(tt.as, http.MethodPost, "/events/"+ev.ID+"/registrations", tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr != "" {
				require.Equal(t, tt.wantErr, errorCode(t, w))
			}
		})
	}
}

func TestRegisterHandler_FullThenLastMinute(t *testing.T) {
	f := newRegFixture(t)
	ev := f.seedEvent(t, 1, time.Now().Add(24*time.Hour))
	path := "/events/" + ev.ID + "/registrations"

	w := f.do(&student, http.MethodPost, path, `{}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	late := user.Principal{ID: "stud-2", Name: "Grace", Email: "grace@example.com", Role: user.RoleStudent}
	w = f.do(&late, http.MethodPost, path, `{}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "event_full", errorCode(t, w))

	body := `{"variant":"team","teamName":"Late Gophers","memberCount":2,"members":[{"name":"Grace"},{"name":"Linus"}],"paymentProofRef":"proof_x.pdf","lastMinute":true}`
	w = f.do(&late, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	reg := decodeRegistration(t, w)
	require.True(t, reg.IsLastMinute)
	require.Equal(t, 60.0, reg.FeeTotal)
	require.Equal(t, registration.VariantTeam, reg.Variant)
}

func TestRegistrationLifecycleHandlers(t *testing.T) {
	f := newRegFixture(t)
	ev := f.seedEvent(t, 10, time.Now().Add(48*time.Hour))

	w := f.do(&student, http.MethodPost, "/events/"+ev.ID+"/registrations", `{}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	reg := decodeRegistration(t, w)
	regPath := "/registrations/" + reg.ID

	w = f.do(&student, http.MethodGet, regPath, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(&otherCoord, http.MethodGet, regPath, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(&student, http.MethodGet, "/registrations/"+newUUID(), "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "not_found", errorCode(t, w))

	w = f.do(&student, http.MethodPatch, regPath, `{"dietary":"vegan","ticketType":"Premium"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeRegistration(t, w)
	require.Equal(t, "vegan", updated.Dietary)
	require.Equal(t, "Premium", updated.TicketType)
	require.Equal(t, reg.FeeTotal, updated.FeeTotal)

	w = f.do(&student, http.MethodPost, regPath+"/payment", `{"status":"Paid"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(&coordinator, http.MethodPost, regPath+"/payment", `{"status":"Paid"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, registration.StatusPaid, decodeRegistration(t, w).PaymentStatus)

	w = f.do(&coordinator, http.MethodPost, regPath+"/payment", `{"status":"Settled"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(&student, http.MethodDelete, regPath, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, registration.StatusCancelled, decodeRegistration(t, w).PaymentStatus)

	w = f.do(&student, http.MethodDelete, regPath, "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "invalid_status_transition", errorCode(t, w))

	w = f.do(&student, http.MethodPatch, regPath, `{"dietary":"none"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "registration_inactive", errorCode(t, w))

	// a cancelled party may register again
	w = f.do(&student, http.MethodPost, "/events/"+ev.ID+"/registrations", `{}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(&student, http.MethodGet, "/me/registrations", "")
	require.Equal(t, http.StatusOK, w.Code)
	var mine struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	require.Equal(t, 2, mine.Count)
}

func TestListForEventHandler_ETagAndAccess(t *testing.T) {
	f := newRegFixture(t)
	ev := f.seedEvent(t, 10, time.Now().Add(48*time.Hour))
	path := "/events/" + ev.ID + "/registrations"

	w := f.do(&student, http.MethodPost, path, `{}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(&student, http.MethodGet, path, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(&coordinator, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = f.do(&coordinator, http.MethodGet, path, "", "If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, w.Code)

	w = f.do(&admin, http.MethodGet, "/events/"+newUUID()+"/registrations", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteForEventHandler(t *testing.T) {
	f := newRegFixture(t)
	ev := f.seedEvent(t, 10, time.Now().Add(48*time.Hour))

	w := f.do(&student, http.MethodPost, "/events/"+ev.ID+"/registrations", `{}`)
	require.Equal(t, http.StatusCreated, w.Code)
	reg := decodeRegistration(t, w)
	path := "/events/" + ev.ID + "/registrations/" + reg.ID

	w = f.do(&student, http.MethodDelete, path, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(&coordinator, http.MethodDelete, "/events/"+newUUID()+"/registrations/"+reg.ID, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(&coordinator, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(&admin, http.MethodGet, "/registrations/"+reg.ID, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

type failingLedgerService struct {
	handlers.Registrations
	err error
}

func (s failingLedgerService) Register(context.Context, string, user.Principal, registration.PartyInfo, bool) (registration.Registration, error) {
	return registration.Registration{}, s.err
}

func TestRegisterHandler_InternalErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := handlers.NewRegistrationHandler(failingLedgerService{
		err: errors.New("insert registration: write tcp 10.0.0.7:5432: broken pipe"),
	})

	r := gin.New()
	r.Use(middlewares.RequestID(), middlewares.RequestLogger(log))
	r.Use(func(c *gin.Context) {
		middlewares.SetPrincipal(c, student)
		c.Next()
	})
	r.POST("/events/:id/registrations", h.Register)

	req := httptest.NewRequest(http.MethodPost, "/events/"+newUUID()+"/registrations", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "internal_error", errorCode(t, w))
	require.NotContains(t, w.Body.String(), "broken pipe")

	logged := buf.String()
	require.Contains(t, logged, `"level":"ERROR"`)
	require.Contains(t, logged, "broken pipe")
}
