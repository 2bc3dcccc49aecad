package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xaionaro-go/observability"
)

// Serve exposes the metrics of the gatherer at "/metrics" until ctx is done.
func Serve(
	ctx context.Context,
	listener net.Listener,
	gatherer prometheus.Gatherer,
) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	observability.Go(ctx, func() {
		<-ctx.Done()
		shutdownCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancelFn()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf(ctx, "unable to shut down the metrics server: %v", err)
		}
	})

	logger.Infof(ctx, "serving metrics at http://%s/metrics", listener.Addr())
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("unable to serve metrics: %w", err)
}
