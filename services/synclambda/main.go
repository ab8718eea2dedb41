// Command synclambda runs one synchronization of external readings per invocation.
// It is meant to be triggered by a scheduled event.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/relabs-tech/agrigate/core/config"
	"github.com/relabs-tech/agrigate/core/gateway"
	"github.com/relabs-tech/agrigate/core/logger"
	"github.com/relabs-tech/agrigate/core/readings"
)

func handler(ctx context.Context) (readings.Summary, error) {
	cfg, err := config.Load()
	if err != nil {
		return readings.Summary{}, err
	}
	logger.InitLogger(logger.ParseLevel(cfg.LogLevel))

	g, err := gateway.Open(ctx, cfg)
	if err != nil {
		return readings.Summary{}, err
	}
	defer g.Close()

	summary, err := g.Syncer.Sync(ctx)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("synchronization failed")
		return summary, err
	}
	return summary, nil
}

func main() {
	lambda.Start(handler)
}
