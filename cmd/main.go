/*
Copyright 2025 DynamicEC2Scaler Contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Main entrypoint for the scaler Lambda. AWS clients and the pricing
// and discount caches are built once at cold start and shared across
// invocations.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/darindeters/DynamicEC2Scaler/internal/report"
	"github.com/darindeters/DynamicEC2Scaler/internal/scaler"
	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
	"github.com/darindeters/DynamicEC2Scaler/pkg/config"
	"github.com/darindeters/DynamicEC2Scaler/pkg/cost"
	"github.com/darindeters/DynamicEC2Scaler/pkg/metrics"
	"github.com/darindeters/DynamicEC2Scaler/pkg/pricing"
)

func newLogger(level string) logr.Logger {
	zapLevel := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		zapLevel = parsed
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		zapLevel,
	)
	return zapr.NewLogger(zap.New(core))
}

func main() {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel).WithName("scaler")

	ctx := context.Background()
	clients, err := aws.NewClients(ctx, aws.ClientConfig{
		Region:        cfg.Region,
		AssumeRoleARN: cfg.AssumeRoleARN,
	})
	if err != nil {
		log.Error(err, "failed to create AWS clients")
		os.Exit(1)
	}

	resolver := pricing.NewResolver(clients.Pricing(), cfg.Region, log)
	discount := cost.NewEstimator(clients.CostExplorer(), cfg.DiscountMode, cfg.DiscountPercent, cfg.CoverageLookbackDays, log)
	publisher := metrics.NewPublisher(clients.Metrics(), cfg.MetricNamespace, log)

	runner := &scaler.Runner{
		NewEC2:   clients.EC2,
		Config:   cfg,
		Pricing:  resolver,
		Discount: discount,
		Recorder: &report.Recorder{
			Storage:     clients.Storage(),
			Publisher:   publisher,
			Bucket:      cfg.SavingsBucket,
			Region:      cfg.Region,
			ScaleUpCron: cfg.ScaleUpCronExpression,
			Log:         log,
		},
		Log: log,
	}

	lambda.Start(func(ctx context.Context, req scaler.Request) (scaler.Response, error) {
		return runner.Handle(ctx, req)
	})
}
