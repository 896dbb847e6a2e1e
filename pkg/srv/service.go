package srv

import (
	"context"
	"time"

	"github.com/sandevgo/ctxkeeper/pkg/log"
)

const DefaultShutdownTimeout = 10 * time.Second

type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// StartServices starts every service in its own goroutine. When any Start
// returns, with or without an error, cancel is called so the whole set
// shuts down together.
func StartServices(ctx context.Context, cancel context.CancelFunc, services []Service) {
	logger := log.FromCtx(ctx)
	for _, service := range services {
		go func(service Service) {
			defer cancel()
			if err := service.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msgf("%T stopped with error", service)
			}
		}(service)
	}
}

// ShutdownServices waits for ctx to be done and then shuts services down in
// reverse order, so resources registered first are released last.
func ShutdownServices(ctx context.Context, services []Service) {
	<-ctx.Done()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Shutdown(sctx); err != nil {
			log.FromCtx(ctx).Error().Err(err).Msgf("%T failed to shutdown", services[i])
		}
	}
}
