package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loramulaku/LABcourse-sub002/internal/app"
	"github.com/loramulaku/LABcourse-sub002/internal/payment"
	"github.com/loramulaku/LABcourse-sub002/internal/payment/midtrans"
	"github.com/loramulaku/LABcourse-sub002/internal/store/memstore"
)

const testServerKey = "SB-Mid-server-test"

type localGateway struct{}

func (localGateway) CreateSession(_ context.Context, req payment.SessionRequest) (payment.Session, error) {
	return payment.Session{Reference: req.IdempotencyKey, RedirectURL: "https://pay.test/" + req.IdempotencyKey}, nil
}

func (localGateway) Status(context.Context, string) (payment.Outcome, error) {
	return payment.OutcomePending, nil
}

type testServer struct {
	*httptest.Server
	system uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	svc := app.NewServices(app.Deps{Store: store, Gateway: localGateway{}, Log: zap.NewNop()}, app.Options{
		RequirePaymentForConfirm: true,
	})
	system := uuid.New()
	srv := httptest.NewServer(NewRouter(RouterConfig{
		Allocator:         svc.Allocator,
		Machine:           svc.Machine,
		Reconciler:        svc.Reconciler,
		Care:              svc.Care,
		Reviewer:          svc.Reviewer,
		Ledger:            svc.Ledger,
		Logger:            zap.NewNop(),
		SystemActorID:     system,
		MidtransServerKey: testServerKey,
		Store:             store,
		Env:               "test",
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, system: system}
}

func (s *testServer) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(s.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) createBooking(t *testing.T, doctor uuid.UUID, at time.Time) BookingResponse {
	t.Helper()
	var b BookingResponse
	status := s.post(t, "/bookings", map[string]any{
		"doctor_id":    doctor,
		"requester_id": uuid.New(),
		"scheduled_at": at,
	}, &b)
	require.Equal(t, http.StatusCreated, status)
	return b
}

func futureSlot() time.Time {
	return time.Now().UTC().Add(96 * time.Hour).Truncate(time.Hour)
}

func TestBookingEndpoints(t *testing.T) {
	s := newTestServer(t)
	doctor := uuid.New()
	at := futureSlot()

	b := s.createBooking(t, doctor, at)
	assert.Equal(t, "PENDING", b.Status)
	assert.Equal(t, "unpaid", b.PaymentStatus)

	var errResp ErrorResponse
	status := s.post(t, "/bookings", map[string]any{
		"doctor_id":    doctor,
		"requester_id": uuid.New(),
		"scheduled_at": at,
	}, &errResp)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "slot_conflict", errResp.Error)

	status = s.post(t, "/bookings", map[string]any{
		"doctor_id":    "not-a-uuid",
		"requester_id": uuid.New(),
		"scheduled_at": at,
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)

	status = s.post(t, "/bookings", map[string]any{
		"doctor_id":    doctor,
		"requester_id": uuid.New(),
		"scheduled_at": time.Now().Add(-time.Hour),
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_failed", errResp.Error)

	var got BookingResponse
	assert.Equal(t, http.StatusOK, s.get(t, "/bookings/"+b.ID.String(), &got))
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/bookings/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/bookings/nope", nil))

	var list []BookingResponse
	path := fmt.Sprintf("/doctors/%s/bookings?from=%s&to=%s", doctor,
		at.Add(-time.Hour).Format(time.RFC3339), at.Add(time.Hour).Format(time.RFC3339))
	assert.Equal(t, http.StatusOK, s.get(t, path, &list))
	assert.Len(t, list, 1)
}

func TestTransitionEndpoint(t *testing.T) {
	s := newTestServer(t)
	b := s.createBooking(t, uuid.New(), futureSlot())
	actor := uuid.New()

	var errResp ErrorResponse
	status := s.post(t, "/bookings/"+b.ID.String()+"/transition", map[string]any{
		"target_status": "CONFIRMED",
		"actor_id":      actor,
	}, &errResp)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "payment_required", errResp.Error)

	status = s.post(t, "/bookings/"+b.ID.String()+"/transition", map[string]any{
		"target_status": "APPROVED",
		"actor_id":      actor,
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)

	var tr TransitionResponse
	status = s.post(t, "/bookings/"+b.ID.String()+"/transition", map[string]any{
		"target_status": "CANCELLED",
		"actor_id":      actor,
		"note":          "cannot make it",
	}, &tr)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "PENDING", tr.From)
	assert.Equal(t, "CANCELLED", tr.To)
	entity, ok := tr.Entity.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CANCELLED", entity["status"])

	status = s.post(t, "/bookings/"+b.ID.String()+"/transition", map[string]any{
		"target_status": "CONFIRMED",
		"actor_id":      actor,
	}, &errResp)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid_transition", errResp.Error)

	var history []HistoryRecordResponse
	assert.Equal(t, http.StatusOK, s.get(t, "/entities/booking/"+b.ID.String()+"/history", &history))
	require.Len(t, history, 2)
	assert.Equal(t, "created", history[0].Action)
	assert.Equal(t, "CANCELLED", history[1].NewStatus)

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/entities/invoice/"+b.ID.String()+"/history", nil))
}

func TestPaymentFlow(t *testing.T) {
	s := newTestServer(t)
	b := s.createBooking(t, uuid.New(), futureSlot())

	var intent IntentResponse
	status := s.post(t, "/payments/intents", map[string]any{
		"booking_id": b.ID,
		"amount":     250000,
		"currency":   "IDR",
	}, &intent)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, payment.IdempotencyKey(b.ID), intent.SessionReference)

	status = s.post(t, "/payments/intents", map[string]any{
		"booking_id": b.ID,
		"amount":     250000,
		"currency":   "IDR",
	}, &intent)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, intent.Reused)

	var cb CallbackResponse
	status = s.post(t, "/payments/callback", map[string]any{
		"session_reference": intent.SessionReference,
		"outcome":           "paid",
	}, &cb)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", cb.Result)

	s.post(t, "/payments/callback", map[string]any{
		"session_reference": intent.SessionReference,
		"outcome":           "paid",
	}, &cb)
	assert.Equal(t, "already_applied", cb.Result)

	s.post(t, "/payments/callback", map[string]any{
		"session_reference": "BKG-unknown",
		"outcome":           "paid",
	}, &cb)
	assert.Equal(t, "unknown", cb.Result)

	status = s.post(t, "/payments/callback", map[string]any{
		"session_reference": intent.SessionReference,
		"outcome":           "chargeback",
	}, &cb)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "rejected", cb.Result)

	var tr TransitionResponse
	status = s.post(t, "/bookings/"+b.ID.String()+"/transition", map[string]any{
		"target_status": "CONFIRMED",
		"actor_id":      uuid.New(),
	}, &tr)
	assert.Equal(t, http.StatusOK, status)

	var history []HistoryRecordResponse
	s.get(t, "/entities/booking/"+b.ID.String()+"/history", &history)
	require.Len(t, history, 4)
	assert.Equal(t, "payment_paid", history[2].Action)
	assert.Equal(t, s.system, history[2].PerformedBy)
}

func TestMidtransNotification(t *testing.T) {
	s := newTestServer(t)
	b := s.createBooking(t, uuid.New(), futureSlot())

	var intent IntentResponse
	require.Equal(t, http.StatusCreated, s.post(t, "/payments/intents", map[string]any{
		"booking_id": b.ID,
		"amount":     100000,
		"currency":   "IDR",
	}, &intent))

	notification := func(status, signature string) map[string]any {
		return map[string]any{
			"order_id":           intent.SessionReference,
			"status_code":        "200",
			"gross_amount":       "100000.00",
			"signature_key":      signature,
			"transaction_status": status,
			"fraud_status":       "accept",
			"transaction_id":     uuid.NewString(),
			"payment_type":       "bank_transfer",
		}
	}
	sign := func() string {
		return midtrans.Signature(intent.SessionReference, "200", "100000.00", testServerKey)
	}

	var errResp ErrorResponse
	assert.Equal(t, http.StatusForbidden, s.post(t, "/payments/midtrans/notification", notification("settlement", "forged"), &errResp))
	assert.Equal(t, "invalid_signature", errResp.Error)

	var cb CallbackResponse
	assert.Equal(t, http.StatusOK, s.post(t, "/payments/midtrans/notification", notification("pending", sign()), &cb))
	assert.Equal(t, "ignored", cb.Result)

	assert.Equal(t, http.StatusOK, s.post(t, "/payments/midtrans/notification", notification("settlement", sign()), &cb))
	assert.Equal(t, "ok", cb.Result)

	var got BookingResponse
	s.get(t, "/bookings/"+b.ID.String(), &got)
	assert.Equal(t, "paid", got.PaymentStatus)
}

func TestGatewayBodiesAreAcknowledged(t *testing.T) {
	s := newTestServer(t)
	b := s.createBooking(t, uuid.New(), futureSlot())

	var intent IntentResponse
	require.Equal(t, http.StatusCreated, s.post(t, "/payments/intents", map[string]any{
		"booking_id": b.ID,
		"amount":     100000,
		"currency":   "IDR",
	}, &intent))

	postRaw := func(t *testing.T, path, body string) (int, CallbackResponse) {
		t.Helper()
		resp, err := http.Post(s.URL+path, "application/json", bytes.NewReader([]byte(body)))
		require.NoError(t, err)
		defer resp.Body.Close()
		var cb CallbackResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&cb))
		return resp.StatusCode, cb
	}

	cases := []struct {
		name string
		path string
		body string
	}{
		{"callback empty reference", "/payments/callback", `{"session_reference":"","outcome":"paid"}`},
		{"callback missing outcome", "/payments/callback", `{"session_reference":"BKG-x"}`},
		{"callback broken json", "/payments/callback", `{"session_reference":`},
		{"notification missing signature", "/payments/midtrans/notification", `{"order_id":"BKG-x","transaction_status":"settlement"}`},
		{"notification broken json", "/payments/midtrans/notification", `not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, cb := postRaw(t, tc.path, tc.body)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "rejected", cb.Result)
			assert.NotEmpty(t, cb.Error)
		})
	}

	status, cb := postRaw(t, "/payments/callback", fmt.Sprintf(
		`{"session_reference":%q,"outcome":"paid","transaction_id":"tx-991","gross_amount":"100000.00"}`,
		intent.SessionReference,
	))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", cb.Result)

	var got BookingResponse
	s.get(t, "/bookings/"+b.ID.String(), &got)
	assert.Equal(t, "paid", got.PaymentStatus)
}

func TestCareEndpoints(t *testing.T) {
	s := newTestServer(t)

	var application ApplicationResponse
	status := s.post(t, "/doctor-applications", map[string]any{
		"applicant_id":     uuid.New(),
		"license_number":   "LIC-9",
		"field":            "pediatrics",
		"experience_years": 3,
	}, &application)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pending", application.Status)

	var errResp ErrorResponse
	status = s.post(t, "/doctor-applications/"+application.ID.String()+"/reject", map[string]any{
		"reviewer_id": uuid.New(),
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)

	var tr TransitionResponse
	status = s.post(t, "/doctor-applications/"+application.ID.String()+"/approve", map[string]any{
		"reviewer_id": uuid.New(),
	}, &tr)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "approved", tr.To)

	var plan TherapyPlanResponse
	status = s.post(t, "/therapy-plans", map[string]any{
		"patient_id": uuid.New(),
		"doctor_id":  uuid.New(),
		"priority":   "high",
	}, &plan)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "draft", plan.Status)

	status = s.post(t, "/therapy-plans/"+plan.ID.String()+"/transition", map[string]any{
		"target_status": "overdue",
		"actor_id":      uuid.New(),
	}, &errResp)
	assert.Equal(t, http.StatusConflict, status)

	var order AnalysisOrderResponse
	status = s.post(t, "/analysis-orders", map[string]any{
		"requester_id":     uuid.New(),
		"analysis_type_id": uuid.New(),
		"laboratory_id":    uuid.New(),
	}, &order)
	require.Equal(t, http.StatusCreated, status)

	status = s.post(t, "/analysis-orders/"+order.ID.String()+"/result", map[string]any{
		"actor_id": uuid.New(),
		"result":   map[string]any{"glucose": 90},
	}, &errResp)
	assert.Equal(t, http.StatusConflict, status)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	var live LivenessResponse
	assert.Equal(t, http.StatusOK, s.get(t, "/health/live", &live))
	assert.Equal(t, "ok", live.Status)

	var ready ReadinessResponse
	assert.Equal(t, http.StatusOK, s.get(t, "/health/ready", &ready))
	assert.Equal(t, "ok", ready.Status)

	h := NewHealthHandler(PingFunc(func(context.Context) error { return nil }),
		PingFunc(func(context.Context) error { return errors.New("down") }), "test", "")
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}
