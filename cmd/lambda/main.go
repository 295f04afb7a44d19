// Package main provides the Lambda handler for ipranges.
// This is the entry point for AWS Lambda Function URL deployment.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/ipranges/internal/config"
	"github.com/ipranges/internal/controller"
	"github.com/ipranges/internal/logging"
)

var log = logging.Logger("lambda")

// app is a warm Lambda's controller. Background goroutines do not run while
// the sandbox is frozen, so stale data is refreshed inline on the next
// invocation instead of by the refresh loop.
type app struct {
	ctrl     *controller.Controller
	interval time.Duration

	mu sync.Mutex // serializes inline refreshes
}

var (
	initOnce sync.Once
	instance *app
	initErr  error
)

func getApp(ctx context.Context) (*app, error) {
	initOnce.Do(func() {
		cfg, err := config.Load("")
		if err != nil {
			initErr = err
			return
		}
		ctrl, err := controller.New(ctx, cfg)
		if err != nil {
			initErr = err
			return
		}
		instance = &app{ctrl: ctrl, interval: cfg.Refresh.Interval}
	})
	return instance, initErr
}

// refreshIfStale runs a cycle when none has completed within the interval
func (a *app) refreshIfStale(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if last, ok := a.ctrl.LastReport(); ok && time.Since(last.Finished) < a.interval {
		return
	}
	report, err := a.ctrl.Refresh(ctx)
	if err != nil {
		// failed providers keep serving their previous data
		log.Warnw("inline refresh had failures", "execution_id", report.ExecutionID, "error", err)
	}
}

// Handler processes Lambda Function URL requests
func Handler(ctx context.Context, request events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	a, err := getApp(ctx)
	if err != nil {
		log.Errorw("initialization failed", "error", err)
		return events.LambdaFunctionURLResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"status":"error","message":"service unavailable"}`,
		}, nil
	}
	a.refreshIfStale(ctx)
	return serve(ctx, a.ctrl.Handler(), request)
}

// serve runs a Function URL request through an http.Handler
func serve(ctx context.Context, h http.Handler, request events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	req, err := toHTTPRequest(ctx, request)
	if err != nil {
		return events.LambdaFunctionURLResponse{}, err
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	headers := make(map[string]string, len(rec.Header()))
	for k, v := range rec.Header() {
		headers[k] = strings.Join(v, ",")
	}
	return events.LambdaFunctionURLResponse{
		StatusCode: rec.Code,
		Headers:    headers,
		Body:       rec.Body.String(),
	}, nil
}

func toHTTPRequest(ctx context.Context, request events.LambdaFunctionURLRequest) (*http.Request, error) {
	path := request.RawPath
	if path == "" {
		path = "/"
	}
	target := path
	if request.RawQueryString != "" {
		target += "?" + request.RawQueryString
	}

	body := request.Body
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("decode request body: %w", err)
		}
		body = string(decoded)
	}

	method := request.RequestContext.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range request.Headers {
		req.Header.Set(k, v)
	}
	if ip := request.RequestContext.HTTP.SourceIP; ip != "" {
		req.RemoteAddr = ip
	}
	return req, nil
}

func main() {
	lambda.Start(Handler)
}
