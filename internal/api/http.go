package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ferux/trafficsentinel/internal/config"
	"github.com/ferux/trafficsentinel/internal/registry"
)

const MaxHeaderBytes = 256 * (1 << 10) // 256 KiB

// Enforcer applies a device's stored status to the router right away. The
// sentinel engine implements it; handlers call it after status writes so
// admin overrides do not wait for the next cycle.
type Enforcer interface {
	EnforceDevice(ctx context.Context, mac string) error
}

type HTTP struct {
	srv *http.Server

	registry *registry.Registry
	enforcer Enforcer
	logger   zerolog.Logger
	notifier *raven.Client

	logFile string

	bootTime     time.Time
	requestCount int64
}

// NewHTTP prepares new http service
func NewHTTP(cfg config.Application, reg *registry.Registry, enforcer Enforcer, logger zerolog.Logger, notifier *raven.Client) (*HTTP, error) {
	to := cfg.HTTP.Timeout.Std()
	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		ReadTimeout:       to,
		ReadHeaderTimeout: to,
		WriteTimeout:      to,
		IdleTimeout:       to,
		MaxHeaderBytes:    MaxHeaderBytes,
	}

	api := &HTTP{
		srv:      srv,
		registry: reg,
		enforcer: enforcer,
		logger:   logger,
		notifier: notifier,
		logFile:  cfg.LogFile,
		bootTime: time.Now(),
	}
	api.setupRoutes()

	return api, nil
}

func (api *HTTP) setupRoutes() {
	router := mux.NewRouter()

	// api/v1 base path handlers
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(middlewareCounter(api), middlewareRequestID(), middlewareLogger(api.logger))
	v1.HandleFunc("/info", api.handleInfo).Methods(http.MethodGet)
	v1.HandleFunc("/logs", api.handleLogs).Methods(http.MethodGet)
	v1.HandleFunc("/devices", api.handleListDevices).Methods(http.MethodGet)
	v1.HandleFunc("/devices", api.handleAddDevice).Methods(http.MethodPost)
	v1.HandleFunc("/devices/{mac}/status", api.handleSetStatus).Methods(http.MethodPut)
	v1.HandleFunc("/devices/{mac}/comment", api.handleSetComment).Methods(http.MethodPut)
	v1.HandleFunc("/devices/{mac}", api.handleDeleteDevice).Methods(http.MethodDelete)

	api.srv.Handler = router
}

// Serve connections
func (api *HTTP) Serve() {
	go func() {
		api.logger.Info().Str("listen", api.srv.Addr).Msg("serving http")
		err := api.srv.ListenAndServe()
		if err != nil {
			api.logger.Error().Err(err).Msg("interrupted")
		}
	}()
}

// Shutdown the server
func (api *HTTP) Shutdown(ctx context.Context) error {
	return api.srv.Shutdown(ctx)
}

func asJSON(ctx context.Context, w http.ResponseWriter, obj interface{}, code int) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		logger := zerolog.Ctx(ctx)
		logger.Error().Err(err).Msg("encoding json")
	}
}
