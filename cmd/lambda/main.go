package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/app/bootstrap"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/tracing"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/config"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New(cfg.ServiceName, logger.ParseLevel(cfg.LogLevel))

	if _, err := tracing.Setup(tracing.Config{ServiceName: cfg.ServiceName, AppName: cfg.AppName, Stdout: cfg.TraceStdout}); err != nil {
		log.Error("failed to configure tracing", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	app, err := bootstrap.Build(ctx, cfg, bootstrap.ModeLambda, prometheus.NewRegistry(), log)
	if err != nil {
		log.Error("failed to start item handler", "error", err)
		os.Exit(1)
	}
	// Lambda freezes the process between invocations; the feed goroutines resume with it.
	app.Start(ctx)

	lambda.Start(app.Handler.HandleAPIGateway)
}
