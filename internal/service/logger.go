package service

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide structured logger. Long-lived components
// (marketplace, simulation environment) take a
// *zap.SugaredLogger derived from it, scoped per market with
// .With(zap.String("market", ...)).
var Logger *zap.Logger

// InitLogger builds the production zap config with an ISO8601 time
// encoder and assigns the result to Logger.
func InitLogger() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	built, err := config.Build()
	if err != nil {
		log.Fatalf("service: failed to initialize logger: %v", err)
	}
	Logger = built
}
