package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "bikeshare/pkg/errors"
	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReservationService struct {
	submitFunc         func(ctx context.Context, input *model.ReservationInput) (*model.ReservationReceipt, error)
	cancelFunc         func(ctx context.Context, userID, ref string) (*model.Booking, error)
	modifyFunc         func(ctx context.Context, userID, ref string, input *model.ModificationInput) (*model.Booking, error)
	accessCodeFunc     func(ctx context.Context, userID, ref string) (*model.AccessCodeView, error)
	historyFunc        func(ctx context.Context, userID string, status model.BookingStatus) ([]*model.BookingView, error)
	getAllFunc         func(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	availableUnitsFunc func(ctx context.Context, location string) ([]*model.Unit, error)
}

func (m *mockReservationService) Submit(ctx context.Context, input *model.ReservationInput) (*model.ReservationReceipt, error) {
	return m.submitFunc(ctx, input)
}

func (m *mockReservationService) Cancel(ctx context.Context, userID, ref string) (*model.Booking, error) {
	return m.cancelFunc(ctx, userID, ref)
}

func (m *mockReservationService) Modify(ctx context.Context, userID, ref string, input *model.ModificationInput) (*model.Booking, error) {
	return m.modifyFunc(ctx, userID, ref, input)
}

func (m *mockReservationService) GetAccessCode(ctx context.Context, userID, ref string) (*model.AccessCodeView, error) {
	return m.accessCodeFunc(ctx, userID, ref)
}

func (m *mockReservationService) History(ctx context.Context, userID string, status model.BookingStatus) ([]*model.BookingView, error) {
	return m.historyFunc(ctx, userID, status)
}

func (m *mockReservationService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	return m.getAllFunc(ctx, limit, offset)
}

func (m *mockReservationService) AvailableUnits(ctx context.Context, location string) ([]*model.Unit, error) {
	return m.availableUnitsFunc(ctx, location)
}

func newRouter(svc *mockReservationService) *httprouter.Router {
	router := httprouter.New()
	NewReservationHandler(svc, logger.NewNop()).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var rider = map[string]string{HeaderUserID: "user-1", HeaderUserEmail: "rider@example.com"}

func TestSubmit_Accepted(t *testing.T) {
	var got *model.ReservationInput
	svc := &mockReservationService{
		submitFunc: func(_ context.Context, input *model.ReservationInput) (*model.ReservationReceipt, error) {
			got = input
			return &model.ReservationReceipt{ReferenceCode: "ref-1", Status: model.BookingStatusSubmitted}, nil
		},
	}

	body := `{"unit_id":"bike-1","start_time":"2026-05-04T10:00:00Z","end_time":"2026-05-04T11:00:00Z"}`
	w := serve(newRouter(svc), http.MethodPost, "/api/v1/reservations", body, rider)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "rider@example.com", got.UserEmail)
	assert.Equal(t, "bike-1", got.UnitID)
	assert.True(t, got.StartTime.Equal(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)))
	assert.Contains(t, w.Body.String(), `"reference_code":"ref-1"`)
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		headers    map[string]string
		serviceErr error
		wantStatus int
		wantReason string
	}{
		{name: "missing requester", body: `{}`, headers: nil, wantStatus: http.StatusUnauthorized},
		{name: "malformed body", body: `{"unit_id":`, headers: rider, wantStatus: http.StatusBadRequest},
		{
			name:       "time conflict",
			body:       `{"unit_id":"bike-1"}`,
			headers:    rider,
			serviceErr: apperrors.Conflict("overlap").WithReason("time_conflict"),
			wantStatus: http.StatusConflict,
			wantReason: "time_conflict",
		},
		{
			name:       "queue down",
			body:       `{"unit_id":"bike-1"}`,
			headers:    rider,
			serviceErr: apperrors.Unavailable("Reservation queue", errors.New("broker")).WithReason("enqueue_failed"),
			wantStatus: http.StatusServiceUnavailable,
			wantReason: "enqueue_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockReservationService{
				submitFunc: func(context.Context, *model.ReservationInput) (*model.ReservationReceipt, error) {
					return nil, tt.serviceErr
				},
			}

			w := serve(newRouter(svc), http.MethodPost, "/api/v1/reservations", tt.body, tt.headers)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantReason != "" {
				var resp struct {
					Details map[string]any `json:"details"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantReason, resp.Details["reason"])
			}
		})
	}
}

func TestReferenceRoutes(t *testing.T) {
	var gotRef, gotUser string
	booking := &model.Booking{ReferenceCode: "ref-7", Status: model.BookingStatusCancelled, AccessCode: "999999"}
	svc := &mockReservationService{
		cancelFunc: func(_ context.Context, userID, ref string) (*model.Booking, error) {
			gotUser, gotRef = userID, ref
			return booking, nil
		},
		modifyFunc: func(_ context.Context, userID, ref string, input *model.ModificationInput) (*model.Booking, error) {
			gotUser, gotRef = userID, ref
			return booking, nil
		},
		accessCodeFunc: func(_ context.Context, userID, ref string) (*model.AccessCodeView, error) {
			gotUser, gotRef = userID, ref
			return &model.AccessCodeView{ReferenceCode: ref, AccessCode: "123456", Duration: "1.00 hours"}, nil
		},
	}
	router := newRouter(svc)

	w := serve(router, http.MethodDelete, "/api/v1/reservations/ref-7", "", rider)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ref-7", gotRef)
	assert.Equal(t, "user-1", gotUser)
	assert.NotContains(t, w.Body.String(), "999999", "access code is never serialised with a booking")

	w = serve(router, http.MethodPatch, "/api/v1/reservations/ref-8", `{"start_time":"2026-05-04T10:00:00Z","end_time":"2026-05-04T12:00:00Z"}`, rider)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ref-8", gotRef)

	w = serve(router, http.MethodGet, "/api/v1/reservations/ref-9/access-code", "", rider)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ref-9", gotRef)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Body.String(), `"access_code":"123456"`)
}

func TestHistory_PassesStatus(t *testing.T) {
	var gotStatus model.BookingStatus
	svc := &mockReservationService{
		historyFunc: func(_ context.Context, _ string, status model.BookingStatus) ([]*model.BookingView, error) {
			gotStatus = status
			return []*model.BookingView{}, nil
		},
	}

	w := serve(newRouter(svc), http.MethodGet, "/api/v1/reservations?status=completed", "", rider)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.BookingStatusCompleted, gotStatus)
}

func TestGetAll_Pagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
		wantOffset int64
	}{
		{"explicit values", "?limit=5&offset=10", http.StatusOK, 5, 10},
		{"invalid limit", "?limit=abc", http.StatusBadRequest, 0, 0},
		{"invalid offset", "?offset=xyz", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit int
			var gotOffset int64
			svc := &mockReservationService{
				getAllFunc: func(_ context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
					gotLimit, gotOffset = limit, offset
					return []*model.Booking{}, 42, nil
				},
			}

			w := serve(newRouter(svc), http.MethodGet, "/api/v1/admin/reservations"+tt.query, "", nil)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantLimit, gotLimit)
				assert.Equal(t, tt.wantOffset, gotOffset)
				assert.Contains(t, w.Body.String(), `"total_count":42`)
			}
		})
	}
}

func TestAvailableUnits(t *testing.T) {
	var gotLocation string
	svc := &mockReservationService{
		availableUnitsFunc: func(_ context.Context, location string) ([]*model.Unit, error) {
			gotLocation = location
			return []*model.Unit{{ID: "bike-1", Status: model.UnitStatusAvailable}}, nil
		},
	}

	w := serve(newRouter(svc), http.MethodGet, "/api/v1/units/available?location=Dock+1", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Dock 1", gotLocation)
	assert.Contains(t, w.Body.String(), `"id":"bike-1"`)
}

func TestServiceInternalErrorIsMasked(t *testing.T) {
	svc := &mockReservationService{
		historyFunc: func(context.Context, string, model.BookingStatus) ([]*model.BookingView, error) {
			return nil, apperrors.Internal("Failed to retrieve bookings", errors.New("mongo: socket closed"))
		},
	}

	w := serve(newRouter(svc), http.MethodGet, "/api/v1/reservations", "", rider)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "socket")
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]check
		wantStatus int
	}{
		{
			name: "all dependencies up",
			checks: map[string]check{
				"database": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "redis down",
			checks: map[string]check{
				"database": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := httprouter.New()
			(&HealthHandler{checks: tt.checks, log: logger.NewNop()}).RegisterRoutes(router)

			w := serve(router, http.MethodGet, "/ready", "", nil)
			assert.Equal(t, tt.wantStatus, w.Code)

			w = serve(router, http.MethodGet, "/health", "", nil)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
