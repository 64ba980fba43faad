package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Temutjin2k/dispatch-core/config"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/handler"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/middleware"
	"github.com/Temutjin2k/dispatch-core/internal/service/authgate"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
)

const serviceName = "dispatch-core"

// API is the dispatch core's single HTTP surface: ride requests, driver
// self-service, offer acceptance and the driver websocket all live
// behind one listener and one auth gate.
type API struct {
	mux    *http.ServeMux
	server *http.Server
	m      *middleware.Middleware

	addr string
	log  logger.Logger
}

func New(
	cfg config.Config,
	rideHandler *handler.Ride,
	driverHandler *handler.Driver,
	verifier authgate.Verifier,
	log logger.Logger,
) *API {
	addr := fmt.Sprintf(":%s", cfg.HTTP.Port)

	api := &API{
		mux:  http.NewServeMux(),
		m:    middleware.NewMiddleware(verifier, log),
		addr: addr,
		log:  log,
	}

	api.setupRoutes(rideHandler, driverHandler)

	api.server = &http.Server{
		Addr:    api.addr,
		Handler: api.withMiddleware(),
	}

	return api
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

// withMiddleware applies the request-wide middleware chain to the mux.
// Metrics wraps everything so even a recovered panic is recorded; Auth
// runs last so handlers see a populated principal in context.
func (a *API) withMiddleware() http.Handler {
	return a.m.Metrics(serviceName)(a.m.Recover(a.m.Logging(a.m.Auth(a.mux))))
}
