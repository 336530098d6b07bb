package lms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

type recordingLogger struct {
	errors []string
}

func (l *recordingLogger) Debug(string, ...interface{})       {}
func (l *recordingLogger) Info(string, ...interface{})        {}
func (l *recordingLogger) Warn(string, ...interface{})        {}
func (l *recordingLogger) Error(msg string, _ ...interface{}) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Fatal(string, ...interface{})       {}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *recordingLogger) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conf := &core.Config{LMS: core.LMSConfig{BaseURL: srv.URL, APIKey: "secret", Timeout: 2 * time.Second}}
	logger := &recordingLogger{}
	return NewClient(conf, logger), logger
}

func TestClient_Programs(t *testing.T) {
	client, logger := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get(apiKeyHeader))
		assert.Equal(t, programsPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [{"id": "p1", "code": "BSC", "name": "Computer Science"}]}`))
	})

	progs := client.Programs(context.Background())
	require.Len(t, progs, 1)
	assert.Equal(t, core.LMSProgram{ID: "p1", Code: "BSC", Name: "Computer Science"}, progs[0])
	assert.Empty(t, logger.errors)
}

func TestClient_IntakeNotFoundDegradesToNil(t *testing.T) {
	client, logger := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, intakesPath+"/i9", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "intake not found"}`))
	})

	assert.Nil(t, client.Intake(context.Background(), "i9"))
	assert.Len(t, logger.errors, 1)
}

func TestClient_IntakesUnreachable(t *testing.T) {
	conf := &core.Config{LMS: core.LMSConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}}
	logger := &recordingLogger{}
	client := NewClient(conf, logger)

	intakes := client.Intakes(context.Background())
	assert.NotNil(t, intakes)
	assert.Empty(t, intakes)
	assert.Len(t, logger.errors, 1)
}

func TestClient_CreateStudent(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    core.LMSStudentResult
		wantLog bool
	}{
		{
			name:   "created",
			status: http.StatusCreated,
			body:   `{"user_id": "u1", "student_id": "s1", "student_number": "LMS-001"}`,
			want:   core.LMSStudentResult{Success: true, UserID: "u1", StudentID: "s1", StudentNumber: "LMS-001"},
		},
		{
			name:    "rejected",
			status:  http.StatusUnprocessableEntity,
			body:    `{"error": "email already registered"}`,
			want:    core.LMSStudentResult{Success: false, Error: "email already registered"},
			wantLog: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, logger := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, studentsPath, r.URL.Path)
				var ns core.LMSNewStudent
				require.NoError(t, json.NewDecoder(r.Body).Decode(&ns))
				assert.Equal(t, "jane@example.com", ns.Email)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			got := client.CreateStudent(context.Background(), core.LMSNewStudent{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLog, len(logger.errors) > 0)
		})
	}
}

func TestClient_IssueSSOToken(t *testing.T) {
	expires := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req core.LMSSSORequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, core.LMSSSORequest{LMSUserID: "u1", Email: "jane@example.com", RedirectTo: "/courses"}, req)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok",
			"expires_at":   expires,
			"redirect_to":  "https://lms.local/courses",
		})
	})

	got := client.IssueSSOToken(context.Background(), core.LMSSSORequest{LMSUserID: "u1", Email: "jane@example.com", RedirectTo: "/courses"})
	assert.True(t, got.Success)
	assert.Equal(t, "tok", got.AccessToken)
	assert.True(t, expires.Equal(got.ExpiresAt))
	assert.Equal(t, "https://lms.local/courses", got.RedirectTo)
}
