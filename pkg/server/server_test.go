package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/de-tools/variance-atlas/pkg/models/api"
	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/server/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCommentary struct {
	mock.Mock
}

func (m *mockCommentary) Reports() []domain.Report {
	args := m.Called()
	return args.Get(0).([]domain.Report)
}

func (m *mockCommentary) Periods(ctx context.Context, report string) (domain.PeriodSet, error) {
	args := m.Called(ctx, report)
	return args.Get(0).(domain.PeriodSet), args.Error(1)
}

func (m *mockCommentary) Summary(ctx context.Context, report string) (domain.SummaryTable, error) {
	args := m.Called(ctx, report)
	return args.Get(0).(domain.SummaryTable), args.Error(1)
}

func (m *mockCommentary) Attribute(
	ctx context.Context,
	report string,
	selections []domain.Selection,
	columns []string,
	topN int,
) ([]domain.Attribution, error) {
	args := m.Called(ctx, report, selections, columns, topN)
	return args.Get(0).([]domain.Attribution), args.Error(1)
}

func (m *mockCommentary) GenerateInitial(ctx context.Context, report string, hint []domain.Selection) (domain.Commentary, error) {
	args := m.Called(ctx, report, hint)
	return args.Get(0).(domain.Commentary), args.Error(1)
}

func (m *mockCommentary) Refresh(
	ctx context.Context,
	report string,
	selections []domain.Selection,
	columns []string,
	topN int,
) (domain.Commentary, error) {
	args := m.Called(ctx, report, selections, columns, topN)
	return args.Get(0).(domain.Commentary), args.Error(1)
}

func (m *mockCommentary) Modify(ctx context.Context, instruction, current string, selections []domain.Selection) (string, error) {
	args := m.Called(ctx, instruction, current, selections)
	return args.String(0), args.Error(1)
}

func (m *mockCommentary) Ask(ctx context.Context, question string) (domain.Answer, error) {
	args := m.Called(ctx, question)
	return args.Get(0).(domain.Answer), args.Error(1)
}

func TestWebAPI_Endpoints(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	svc := new(mockCommentary)

	config := Config{
		Addr:            ":8080",
		CORSOrigins:     []string{"*"},
		ShutdownTimeout: 10 * time.Second,
		Dependencies: Dependencies{
			Commentary: svc,
			Logger:     logger,
		},
	}
	router := ConfigureRouter(config)
	testServer := httptest.NewServer(router)
	defer testServer.Close()

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		setupMocks     func()
		expectedStatus int
		expected       interface{}
		parseResponse  func([]byte) (interface{}, error)
	}{
		{
			name:           "Health",
			method:         http.MethodGet,
			path:           "/health",
			setupMocks:     func() {},
			expectedStatus: http.StatusOK,
			expected:       api.Health{Status: "ok"},
			parseResponse:  unmarshalResponse[api.Health](),
		},
		{
			name:   "GetPeriods",
			method: http.MethodGet,
			path:   "/api/v1/reports/cmdm/periods",
			setupMocks: func() {
				svc.On("Periods", mock.Anything, "cmdm").Return(domain.PeriodSet{
					Labels: []string{"2024Q2", "2024Q3"}, Current: "2024Q3", Previous: "2024Q2",
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expected: api.PeriodSet{
				Labels: []string{"2024Q2", "2024Q3"}, Current: "2024Q3", Previous: "2024Q2",
			},
			parseResponse: unmarshalResponse[api.PeriodSet](),
		},
		{
			name:   "GetSummary_UnknownReport",
			method: http.MethodGet,
			path:   "/api/v1/reports/missing/summary",
			setupMocks: func() {
				svc.On("Summary", mock.Anything, "missing").Return(domain.SummaryTable{}, domain.ErrReportNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expected:       api.Error{Error: "report not found"},
			parseResponse:  unmarshalResponse[api.Error](),
		},
		{
			name:   "Modify",
			method: http.MethodPost,
			path:   "/api/v1/commentary/modify",
			body:   `{"instruction":"use bullet points","commentary":"Tax rose."}`,
			setupMocks: func() {
				svc.On("Modify", mock.Anything, "use bullet points", "Tax rose.", []domain.Selection{}).
					Return("- Tax rose.", nil)
			},
			expectedStatus: http.StatusOK,
			expected:       api.ModifyResponse{Text: "- Tax rose."},
			parseResponse:  unmarshalResponse[api.ModifyResponse](),
		},
		{
			name:           "IngestRunsNotConfigured",
			method:         http.MethodGet,
			path:           "/api/v1/ingest/runs",
			setupMocks:     func() {},
			expectedStatus: http.StatusNotFound,
			expected:       api.Error{Error: "ingestion is not configured"},
			parseResponse:  unmarshalResponse[api.Error](),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMocks()
			req, err := http.NewRequest(tc.method, testServer.URL+tc.path, bytes.NewBufferString(tc.body))
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err, "Failed to send request")
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "Status code mismatch")
			assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err, "Failed to read response body")

			actual, err := tc.parseResponse(body)
			require.NoError(t, err, "Failed to parse response")

			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestWebAPI_RequestIDAndCORS(t *testing.T) {
	router := ConfigureRouter(Config{
		CORSOrigins: []string{"http://localhost:3000"},
		Dependencies: Dependencies{
			Commentary: new(mockCommentary),
			Logger:     zerolog.Nop(),
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebAPI_StartStopsOnCancel(t *testing.T) {
	webAPI := NewWebAPI(zerolog.Nop(), Config{
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: time.Second,
		Dependencies:    Dependencies{Commentary: new(mockCommentary)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- webAPI.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func unmarshalResponse[T any]() func([]byte) (interface{}, error) {
	return func(data []byte) (interface{}, error) {
		var response T
		err := json.Unmarshal(data, &response)
		return response, err
	}
}
