package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"opsdash/internal/db"
	"opsdash/internal/model"
	"opsdash/internal/service"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TaskExecuteRequest = "request:execute"

// maxResultBody caps how much of a downstream response body is stored
// on the request record.
const maxResultBody = 64 * 1024

// ExecServer runs approved requests in the background: it builds the
// HTTP call described by the target function and records the outcome
// through the workflow engine.
type ExecServer struct {
	server   *asynq.Server
	client   *asynq.Client
	db       *db.Pool
	requests *service.RequestService
	httpc    *http.Client
	log      *zap.Logger
}

func NewExecServer(redisAddr string, dbPool *db.Pool, requests *service.RequestService, log *zap.Logger) (*ExecServer, *asynq.Client) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	client := asynq.NewClient(redisOpt)

	return &ExecServer{
		server:   server,
		client:   client,
		db:       dbPool,
		requests: requests,
		httpc:    &http.Client{},
		log:      log,
	}, client
}

func (es *ExecServer) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskExecuteRequest, es.handleExecuteRequest)
	return es.server.Start(mux)
}

func (es *ExecServer) Stop() {
	es.server.Shutdown()
	es.client.Close()
}

func (es *ExecServer) handleExecuteRequest(ctx context.Context, t *asynq.Task) error {
	requestID := string(t.Payload())

	req, err := es.db.Queries.GetRequestByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to get request: %w", err)
	}

	// Only execute requests still sitting in approved
	if req.Status != model.StatusApproved {
		return nil
	}

	fn, err := es.db.Queries.GetFunctionByID(ctx, req.FunctionID)
	if err != nil {
		_ = es.requests.Fail(ctx, requestID, "function no longer exists")
		return nil
	}

	result, elapsed, err := es.invoke(ctx, fn, req.Parameters)
	if err != nil {
		if failErr := es.requests.Fail(ctx, requestID, err.Error()); failErr != nil {
			return fmt.Errorf("failed to record failure: %w", failErr)
		}
		es.log.Info("Request execution failed",
			zap.String("request_id", requestID),
			zap.String("function_id", fn.ID),
			zap.Error(err))
		return nil
	}

	if err := es.requests.Complete(ctx, requestID, result, elapsed.Milliseconds()); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}

	es.log.Info("Request executed",
		zap.String("request_id", requestID),
		zap.String("function_id", fn.ID),
		zap.Duration("elapsed", elapsed))
	return nil
}

// invoke performs the downstream API call with the function's configured
// timeout. A non-2xx response counts as a failure.
func (es *ExecServer) invoke(ctx context.Context, fn model.Function, params map[string]interface{}) (map[string]interface{}, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, invocationTimeout(fn.Timeout))
	defer cancel()

	httpReq, err := buildHTTPRequest(callCtx, fn, params)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	resp, err := es.httpc.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, fmt.Errorf("invocation failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBody))
	if err != nil {
		return nil, elapsed, fmt.Errorf("failed to read response: %w", err)
	}

	result := map[string]interface{}{
		"status_code": resp.StatusCode,
	}
	var parsed interface{}
	if json.Unmarshal(body, &parsed) == nil {
		result["body"] = parsed
	} else {
		result["body"] = string(body)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, elapsed, fmt.Errorf("invocation returned status %d", resp.StatusCode)
	}
	return result, elapsed, nil
}

// invocationTimeout clamps the per-function timeout to [1s, 300s].
func invocationTimeout(seconds int) time.Duration {
	if seconds < 1 {
		seconds = 1
	}
	if seconds > 300 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}

// buildHTTPRequest assembles the downstream call: declared URL
// parameters fill {name} placeholders in the endpoint, the remaining
// parameters go to the query string for body-less methods and to a JSON
// body otherwise. Configured headers are applied last.
func buildHTTPRequest(ctx context.Context, fn model.Function, params map[string]interface{}) (*http.Request, error) {
	endpoint := fn.APIEndpoint
	remaining := make(map[string]interface{}, len(params))
	for k, v := range params {
		remaining[k] = v
	}

	for _, name := range fn.URLParameters {
		placeholder := "{" + name + "}"
		if !strings.Contains(endpoint, placeholder) {
			continue
		}
		value, ok := remaining[name]
		if !ok {
			return nil, fmt.Errorf("missing URL parameter %q", name)
		}
		endpoint = strings.ReplaceAll(endpoint, placeholder, url.PathEscape(fmt.Sprintf("%v", value)))
		delete(remaining, name)
	}

	method := fn.HTTPMethod
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
		if len(remaining) > 0 {
			u, err := url.Parse(endpoint)
			if err != nil {
				return nil, fmt.Errorf("invalid endpoint: %w", err)
			}
			q := u.Query()
			for k, v := range remaining {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			u.RawQuery = q.Encode()
			endpoint = u.String()
		}
	default:
		payload, err := json.Marshal(remaining)
		if err != nil {
			return nil, fmt.Errorf("failed to encode parameters: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range fn.RequestHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

// ExecClient implements service.ExecutionQueue over asynq.
type ExecClient struct {
	client *asynq.Client
}

func NewExecClient(client *asynq.Client) *ExecClient {
	return &ExecClient{client: client}
}

func (c *ExecClient) EnqueueExecution(requestID string) error {
	task := asynq.NewTask(TaskExecuteRequest, []byte(requestID))
	_, err := c.client.Enqueue(task, asynq.MaxRetry(3))
	return err
}
