package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/app"
	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
	httptransport "github.com/shawnbeckett/sms-led-display/internal/moderation_service/transport/http"
)

var testNow = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockService is a mock for httptransport.Service.
type MockService struct {
	mock.Mock
}

func (m *MockService) Now() time.Time { return testNow }

func (m *MockService) Get(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockService) ListPending(ctx context.Context) ([]*domain.Message, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockService) ListApproved(ctx context.Context) ([]*domain.Message, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockService) ListLive(ctx context.Context) ([]*domain.Message, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockService) outcome(args mock.Arguments) (*app.Outcome, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*app.Outcome), args.Error(1)
}

func (m *MockService) Approve(ctx context.Context, id string) (*app.Outcome, error) {
	return m.outcome(m.Called(ctx, id))
}

func (m *MockService) Reject(ctx context.Context, id, reason string) (*app.Outcome, error) {
	return m.outcome(m.Called(ctx, id, reason))
}

func (m *MockService) Activate(ctx context.Context, id string) (*app.Outcome, error) {
	return m.outcome(m.Called(ctx, id))
}

func (m *MockService) MarkPlayed(ctx context.Context, id string) (*app.Outcome, error) {
	return m.outcome(m.Called(ctx, id))
}

func (m *MockService) SweepExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockService) GetSettings(ctx context.Context) (*domain.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Settings), args.Error(1)
}

func (m *MockService) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (*domain.Settings, error) {
	args := m.Called(ctx, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Settings), args.Error(1)
}

func newTestRouter(svc *MockService) http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{Service: svc, Logger: discardLogger()})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestMessageHandler_Lists(t *testing.T) {
	svc := new(MockService)
	router := newTestRouter(svc)

	pending := []*domain.Message{
		{ID: "m1", Body: "first", SourceAddress: "+1", Status: domain.StatusPending, CreatedAt: testNow},
		{ID: "m2", Body: "second", SourceAddress: "+2", Status: domain.StatusPending, CreatedAt: testNow},
	}
	svc.On("ListPending", mock.Anything).Return(pending, nil).Once()
	svc.On("ListApproved", mock.Anything).Return([]*domain.Message{}, nil).Once()

	rr := doJSON(t, router, http.MethodGet, "/messages/pending", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	got := decode[httptransport.MessageListResponse](t, rr)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "m1", got.Items[0].ID)
	assert.Equal(t, "+1", got.Items[0].FromNumber)

	rr = doJSON(t, router, http.MethodGet, "/messages/approved", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"items":[]}`, rr.Body.String())

	svc.AssertExpectations(t)
}

func TestMessageHandler_LiveIncludesRemainingSeconds(t *testing.T) {
	svc := new(MockService)
	router := newTestRouter(svc)

	playedAt := testNow.Add(-30 * time.Second)
	expiresAt := playedAt.Add(120 * time.Second)
	live := []*domain.Message{
		{ID: "live", Status: domain.StatusLive, CreatedAt: testNow},
		{ID: "played", Status: domain.StatusPlayed, PlayedAt: &playedAt, ExpiresAt: &expiresAt, CreatedAt: testNow},
	}
	svc.On("ListLive", mock.Anything).Return(live, nil).Once()

	rr := doJSON(t, router, http.MethodGet, "/messages/live", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[httptransport.MessageListResponse](t, rr)
	require.Len(t, got.Items, 2)
	assert.Nil(t, got.Items[0].RemainingSeconds)
	require.NotNil(t, got.Items[1].RemainingSeconds)
	assert.Equal(t, int64(90), *got.Items[1].RemainingSeconds)
}

func TestMessageHandler_Actions(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   any
		setup  func(svc *MockService)
		status int
		check  func(t *testing.T, rr *httptest.ResponseRecorder)
	}{
		{
			name: "approve applied",
			path: "/messages/approve",
			body: map[string]string{"message_id": "m1"},
			setup: func(svc *MockService) {
				svc.On("Approve", mock.Anything, "m1").Return(&app.Outcome{
					Message: &domain.Message{ID: "m1", Status: domain.StatusApproved}, Applied: true}, nil)
			},
			status: http.StatusOK,
			check: func(t *testing.T, rr *httptest.ResponseRecorder) {
				got := decode[httptransport.MessageActionResponse](t, rr)
				assert.True(t, got.Applied)
				assert.Equal(t, domain.StatusApproved, got.Item.Status)
			},
		},
		{
			name: "reject passes reason",
			path: "/messages/reject",
			body: map[string]string{"message_id": "m2", "reason": "spam"},
			setup: func(svc *MockService) {
				reason := "spam"
				svc.On("Reject", mock.Anything, "m2", "spam").Return(&app.Outcome{
					Message: &domain.Message{ID: "m2", Status: domain.StatusRejected, RejectionReason: &reason}, Applied: true}, nil)
			},
			status: http.StatusOK,
			check: func(t *testing.T, rr *httptest.ResponseRecorder) {
				got := decode[httptransport.MessageActionResponse](t, rr)
				require.NotNil(t, got.Item.RejectionReason)
				assert.Equal(t, "spam", *got.Item.RejectionReason)
			},
		},
		{
			name: "reject of rejected is a no-op",
			path: "/messages/reject",
			body: map[string]string{"message_id": "m3"},
			setup: func(svc *MockService) {
				svc.On("Reject", mock.Anything, "m3", "").Return(&app.Outcome{
					Message: &domain.Message{ID: "m3", Status: domain.StatusRejected}, Applied: false}, nil)
			},
			status: http.StatusOK,
			check: func(t *testing.T, rr *httptest.ResponseRecorder) {
				assert.False(t, decode[httptransport.MessageActionResponse](t, rr).Applied)
			},
		},
		{
			name: "activate",
			path: "/messages/activate",
			body: map[string]string{"message_id": "m4"},
			setup: func(svc *MockService) {
				svc.On("Activate", mock.Anything, "m4").Return(&app.Outcome{
					Message: &domain.Message{ID: "m4", Status: domain.StatusLive}, Applied: true}, nil)
			},
			status: http.StatusOK,
		},
		{
			name: "played",
			path: "/messages/played",
			body: map[string]string{"message_id": "m5"},
			setup: func(svc *MockService) {
				expires := testNow.Add(2 * time.Minute)
				svc.On("MarkPlayed", mock.Anything, "m5").Return(&app.Outcome{
					Message: &domain.Message{ID: "m5", Status: domain.StatusPlayed, PlayedAt: &testNow, ExpiresAt: &expires}, Applied: true}, nil)
			},
			status: http.StatusOK,
			check: func(t *testing.T, rr *httptest.ResponseRecorder) {
				got := decode[httptransport.MessageActionResponse](t, rr)
				require.NotNil(t, got.Item.RemainingSeconds)
				assert.Equal(t, int64(120), *got.Item.RemainingSeconds)
			},
		},
		{
			name:   "missing message_id",
			path:   "/messages/approve",
			body:   map[string]string{},
			setup:  func(*MockService) {},
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed json",
			path:   "/messages/approve",
			body:   "{",
			setup:  func(*MockService) {},
			status: http.StatusBadRequest,
		},
		{
			name: "not found",
			path: "/messages/approve",
			body: map[string]string{"message_id": "ghost"},
			setup: func(svc *MockService) {
				svc.On("Approve", mock.Anything, "ghost").Return(nil, fmt.Errorf("%w: ghost", domain.ErrNotFound))
			},
			status: http.StatusNotFound,
		},
		{
			name: "invalid state",
			path: "/messages/played",
			body: map[string]string{"message_id": "pending"},
			setup: func(svc *MockService) {
				svc.On("MarkPlayed", mock.Anything, "pending").Return(nil, fmt.Errorf("%w: pending", domain.ErrInvalidState))
			},
			status: http.StatusConflict,
		},
		{
			name: "store unavailable",
			path: "/messages/approve",
			body: map[string]string{"message_id": "m6"},
			setup: func(svc *MockService) {
				svc.On("Approve", mock.Anything, "m6").Return(nil, fmt.Errorf("%w: get: connection refused", domain.ErrStore))
			},
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, rr *httptest.ResponseRecorder) {
				got := decode[httptransport.ErrorResponse](t, rr)
				assert.NotContains(t, got.Error, "connection refused")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setup(svc)
			rr := doJSON(t, newTestRouter(svc), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			if rr.Code >= 400 {
				assert.NotEmpty(t, decode[httptransport.ErrorResponse](t, rr).Error)
			}
			if tt.check != nil {
				tt.check(t, rr)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestMessageHandler_GetAndSweep(t *testing.T) {
	svc := new(MockService)
	router := newTestRouter(svc)

	svc.On("Get", mock.Anything, "m1").Return(&domain.Message{ID: "m1", Status: domain.StatusExpired}, nil).Once()
	svc.On("SweepExpired", mock.Anything).Return(3, nil).Once()

	rr := doJSON(t, router, http.MethodGet, "/messages/m1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.StatusExpired, decode[httptransport.MessageResponse](t, rr).Status)

	rr = doJSON(t, router, http.MethodPost, "/messages/sweep", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"expired":3}`, rr.Body.String())

	svc.AssertExpectations(t)
}

func TestRouter_PreflightAndHealth(t *testing.T) {
	router := newTestRouter(new(MockService))

	rr := doJSON(t, router, http.MethodOptions, "/messages/approve", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")

	rr = doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = doJSON(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
