package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/lenderinbox/api/middleware"
	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/utils"
)

type mockListener struct {
	mock.Mock
}

func (m *mockListener) RunOnce(ctx context.Context) (*dto.RunSummary, error) {
	args := m.Called(ctx)
	summary, _ := args.Get(0).(*dto.RunSummary)
	return summary, args.Error(1)
}

func (m *mockListener) RunOnceForApplication(ctx context.Context, applicationID string) (*dto.RunSummary, error) {
	args := m.Called(ctx, applicationID)
	summary, _ := args.Get(0).(*dto.RunSummary)
	return summary, args.Error(1)
}

func (m *mockListener) Run(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockListener) Stop() {
	m.Called()
}

func (m *mockListener) Status() map[string]interfaces.MailboxStatus {
	return m.Called().Get(0).(map[string]interfaces.MailboxStatus)
}

const testAPIKey = "test-key"

func newRouter(listener interfaces.ListenerService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(context.Background(), r, listener, testAPIKey, time.Minute)
	return r
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := serve(newRouter(&mockListener{}), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus(t *testing.T) {
	listener := &mockListener{}
	listener.On("Status").Return(map[string]interfaces.MailboxStatus{
		"b|two": {Key: "b|two", Connected: false, LastError: "login failed"},
		"a|one": {Key: "a|one", Connected: true, Processed: 3, ApplicationIDs: []string{"app-1"}},
	})

	w := serve(newRouter(listener), http.MethodGet, "/status", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Mailboxes []interfaces.MailboxStatus `json:"mailboxes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Mailboxes, 2)
	assert.Equal(t, "a|one", body.Mailboxes[0].Key)
	assert.Equal(t, 3, body.Mailboxes[0].Processed)
	assert.Equal(t, "login failed", body.Mailboxes[1].LastError)
}

func TestMetricsEndpoint(t *testing.T) {
	w := serve(newRouter(&mockListener{}), http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}

func TestTriggerRun_RequiresAPIKey(t *testing.T) {
	listener := &mockListener{}
	r := newRouter(listener)

	missing := serve(r, http.MethodPost, "/v1/runs", nil)
	wrong := serve(r, http.MethodPost, "/v1/runs", map[string]string{middleware.APIKeyHeader: "nope"})

	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	listener.AssertNotCalled(t, "RunOnce", mock.Anything)
}

func TestTriggerRun_ReturnsSummary(t *testing.T) {
	listener := &mockListener{}
	listener.On("RunOnce", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return hasDeadline && utils.GetAppSourceFromContext(ctx) == appSourceAPI
	})).Return(&dto.RunSummary{
		RunID:          "run_abc",
		ProcessedCount: 2,
		Mailboxes:      []dto.MailboxSummary{{Key: "a|one", Processed: 2}},
	}, nil).Once()

	w := serve(newRouter(listener), http.MethodPost, "/v1/runs", map[string]string{middleware.APIKeyHeader: testAPIKey})

	require.Equal(t, http.StatusOK, w.Code)
	var summary dto.RunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "run_abc", summary.RunID)
	assert.Equal(t, 2, summary.ProcessedCount)
	listener.AssertExpectations(t)
}

func TestTriggerRun_ConfigurationError(t *testing.T) {
	listener := &mockListener{}
	listener.On("RunOnce", mock.Anything).Return(nil, errors.New("store unreachable")).Once()

	w := serve(newRouter(listener), http.MethodPost, "/v1/runs", map[string]string{middleware.APIKeyHeader: testAPIKey})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "store unreachable")
}

func TestTriggerRun_Deadline(t *testing.T) {
	listener := &mockListener{}
	listener.On("RunOnce", mock.Anything).Return(nil, context.DeadlineExceeded).Once()

	w := serve(newRouter(listener), http.MethodPost, "/v1/runs", map[string]string{middleware.APIKeyHeader: testAPIKey})

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}
