package jobs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opsdash/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInvocationTimeout(t *testing.T) {
	assert.Equal(t, time.Second, invocationTimeout(0))
	assert.Equal(t, time.Second, invocationTimeout(-5))
	assert.Equal(t, 30*time.Second, invocationTimeout(30))
	assert.Equal(t, 300*time.Second, invocationTimeout(300))
	assert.Equal(t, 300*time.Second, invocationTimeout(9999))
}

func TestBuildHTTPRequest_URLParameterSubstitution(t *testing.T) {
	fn := model.Function{
		APIEndpoint:   "https://api.example.com/users/{user_id}/reset",
		HTTPMethod:    http.MethodPost,
		URLParameters: []string{"user_id"},
	}
	params := map[string]interface{}{
		"user_id": "u-42",
		"notify":  true,
	}

	req, err := buildHTTPRequest(context.Background(), fn, params)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/users/u-42/reset", req.URL.String())
	assert.Equal(t, http.MethodPost, req.Method)

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, map[string]interface{}{"notify": true}, payload)
}

func TestBuildHTTPRequest_MissingURLParameter(t *testing.T) {
	fn := model.Function{
		APIEndpoint:   "https://api.example.com/users/{user_id}",
		HTTPMethod:    http.MethodGet,
		URLParameters: []string{"user_id"},
	}

	_, err := buildHTTPRequest(context.Background(), fn, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_id")
}

func TestBuildHTTPRequest_GetParamsAsQuery(t *testing.T) {
	fn := model.Function{
		APIEndpoint: "https://api.example.com/report",
		HTTPMethod:  http.MethodGet,
	}
	params := map[string]interface{}{"format": "csv", "days": float64(7)}

	req, err := buildHTTPRequest(context.Background(), fn, params)
	require.NoError(t, err)

	assert.Nil(t, req.Body)
	assert.Equal(t, "csv", req.URL.Query().Get("format"))
	assert.Equal(t, "7", req.URL.Query().Get("days"))
}

func TestBuildHTTPRequest_Headers(t *testing.T) {
	fn := model.Function{
		APIEndpoint: "https://api.example.com/backup",
		HTTPMethod:  http.MethodPost,
		RequestHeaders: map[string]string{
			"Authorization": "Bearer secret",
			"X-Source":      "dashboard",
		},
	}

	req, err := buildHTTPRequest(context.Background(), fn, map[string]interface{}{})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
	assert.Equal(t, "dashboard", req.Header.Get("X-Source"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestInvoke_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	es := &ExecServer{httpc: srv.Client(), log: zap.NewNop()}
	fn := model.Function{APIEndpoint: srv.URL, HTTPMethod: http.MethodGet, Timeout: 5}

	result, elapsed, err := es.invoke(context.Background(), fn, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	assert.Equal(t, http.StatusOK, result["status_code"])
	assert.Equal(t, map[string]interface{}{"status": "healthy"}, result["body"])
}

func TestInvoke_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	es := &ExecServer{httpc: srv.Client(), log: zap.NewNop()}
	fn := model.Function{APIEndpoint: srv.URL, HTTPMethod: http.MethodGet, Timeout: 5}

	result, _, err := es.invoke(context.Background(), fn, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", result["body"])
}

func TestInvoke_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	es := &ExecServer{httpc: srv.Client(), log: zap.NewNop()}
	fn := model.Function{APIEndpoint: srv.URL, HTTPMethod: http.MethodPost, Timeout: 5}

	_, _, err := es.invoke(context.Background(), fn, map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestInvoke_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	es := &ExecServer{httpc: srv.Client(), log: zap.NewNop()}
	fn := model.Function{APIEndpoint: srv.URL, HTTPMethod: http.MethodGet, Timeout: 1}

	_, _, err := es.invoke(context.Background(), fn, nil)
	require.Error(t, err)
}
