package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/careplus-reminders/cmd/mainconfig"
	"github.com/wolfman30/careplus-reminders/internal/app/bootstrap"
	appconfig "github.com/wolfman30/careplus-reminders/internal/config"
	"github.com/wolfman30/careplus-reminders/internal/dispatch"
	"github.com/wolfman30/careplus-reminders/internal/notify"
	"github.com/wolfman30/careplus-reminders/internal/observability/tracing"
	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()
	otelShutdown, err := tracing.Setup(ctx, cfg.TracingConfig("careplus-notify-lambda"))
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	storage, err := bootstrap.BuildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	opts := cfg.NotifyOptions()
	if cfg.EmailProvider == notify.EmailProviderSES {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		opts.SES = mainconfig.NewSESClient(awsCfg, cfg)
	}

	svc := dispatch.NewService(notify.NewSenders(opts, logger), storage.Appointments, storage.AuditLogger(), logger)
	var handlerOpts []dispatch.HandlerOption
	if guard := bootstrap.BuildIdempotencyGuard(bootstrap.BuildRedisClient(ctx, cfg, logger, true), cfg); guard != nil {
		handlerOpts = append(handlerOpts, dispatch.WithIdempotency(guard))
	}
	handler := otelhttp.NewHandler(dispatch.NewHandler(svc, logger, handlerOpts...), "careplus-notify")

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, handler, evt)
	})
}

// handle replays the API Gateway event against the dispatch handler in-process.
func handle(ctx context.Context, handler http.Handler, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	for k, v := range evt.Headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := events.APIGatewayV2HTTPResponse{
		StatusCode: rec.Code,
		Body:       rec.Body.String(),
		Headers:    map[string]string{},
	}
	for k := range rec.Header() {
		out.Headers[strings.ToLower(k)] = rec.Header().Get(k)
	}
	return out, nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(evt.Body)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
