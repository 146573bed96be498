package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/vaibhav2408/config-manager/internal/api"
	"github.com/vaibhav2408/config-manager/internal/config"
	"github.com/vaibhav2408/config-manager/internal/service"
	"github.com/vaibhav2408/config-manager/internal/store"
)

// app serves API Gateway HTTP API (v2) events through the regular HTTP
// handler. It is built once per cold start so the DynamoDB client is shared
// across invocations.
type app struct {
	handler http.Handler
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*app, error) {
	s, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc := service.New(s, logger)
	srv := api.NewServer("", logger, svc, api.Options{BasePath: cfg.BasePath})
	return &app{handler: srv.Handler(), logger: logger}, nil
}

func (a *app) handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	httpReq, err := toHTTPRequest(ctx, req)
	if err != nil {
		a.logger.Warn("rejecting malformed API Gateway event", "error", err)
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       "{}",
		}, nil
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httpReq)

	return toResponse(rec), nil
}

// toHTTPRequest converts an API Gateway v2 event into an http.Request.
func toHTTPRequest(ctx context.Context, req events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	method := req.RequestContext.HTTP.Method
	if method == "" {
		return nil, fmt.Errorf("missing request method")
	}

	path := req.RawPath
	if path == "" {
		path = req.RequestContext.HTTP.Path
	}
	if path == "" {
		path = "/"
	}
	target := path
	if req.RawQueryString != "" {
		target += "?" + req.RawQueryString
	}

	body := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 body: %w", err)
		}
		body = string(decoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.RequestContext.DomainName != "" {
		httpReq.Host = req.RequestContext.DomainName
	}
	if req.RequestContext.RequestID != "" && httpReq.Header.Get(api.RequestIDHeader) == "" {
		httpReq.Header.Set(api.RequestIDHeader, req.RequestContext.RequestID)
	}
	return httpReq, nil
}

func toResponse(rec *httptest.ResponseRecorder) events.APIGatewayV2HTTPResponse {
	headers := make(map[string]string, len(rec.Header()))
	for k, v := range rec.Header() {
		headers[k] = strings.Join(v, ",")
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: rec.Code,
		Headers:    headers,
		Body:       rec.Body.String(),
	}
}

func main() {
	cfg, err := config.LoadServerConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialise config-manager", "error", err)
		os.Exit(1)
	}

	lambda.Start(a.handle)
}
