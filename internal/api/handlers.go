package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/raven-go"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	ts "github.com/ferux/trafficsentinel"
	"github.com/ferux/trafficsentinel/internal/fcontext"
	"github.com/ferux/trafficsentinel/internal/model"
)

func (api *HTTP) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	devices, err := api.registry.List(ctx)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	if devices == nil {
		devices = []model.Device{}
	}

	asJSON(ctx, w, devices, http.StatusOK)
}

func (api *HTTP) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid := fcontext.RequestID(ctx)

	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   "malformed body",
			RequestID: rid,
			Code:      http.StatusBadRequest,
		})
		return
	}

	mac, err := model.NormalizeMAC(req.MAC)
	if err != nil {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   err.Error(),
			RequestID: rid,
			Code:      http.StatusUnprocessableEntity,
		})
		return
	}

	status := model.Status(req.Status)
	if req.Status == "" {
		status = model.StatusQuarantine
	}
	if !status.Valid() {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   model.ErrInvalidStatus.Error(),
			RequestID: rid,
			Code:      http.StatusUnprocessableEntity,
		})
		return
	}

	now := time.Now().UTC()
	device := model.Device{
		MAC:       mac,
		Status:    status,
		FirstSeen: now,
		LastSeen:  now,
		Comment:   req.Comment,
	}

	if err := api.registry.Put(ctx, device); err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	api.enforceAsync(ctx, mac)

	asJSON(ctx, w, device, http.StatusCreated)
}

func (api *HTTP) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid := fcontext.RequestID(ctx)

	mac, err := model.NormalizeMAC(mux.Vars(r)["mac"])
	if err != nil {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   err.Error(),
			RequestID: rid,
			Code:      http.StatusUnprocessableEntity,
		})
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   "malformed body",
			RequestID: rid,
			Code:      http.StatusBadRequest,
		})
		return
	}

	status := model.Status(req.Status)
	if !status.Valid() {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   model.ErrInvalidStatus.Error(),
			RequestID: rid,
			Code:      http.StatusUnprocessableEntity,
		})
		return
	}

	if err := api.registry.SetStatus(ctx, mac, status, req.Comment); err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	api.enforceAsync(ctx, mac)

	device, err := api.registry.Get(ctx, mac)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	asJSON(ctx, w, device, http.StatusOK)
}

func (api *HTTP) handleSetComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid := fcontext.RequestID(ctx)

	mac, err := model.NormalizeMAC(mux.Vars(r)["mac"])
	if err != nil {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   err.Error(),
			RequestID: rid,
			Code:      http.StatusUnprocessableEntity,
		})
		return
	}

	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   "malformed body",
			RequestID: rid,
			Code:      http.StatusBadRequest,
		})
		return
	}

	if err := api.registry.SetComment(ctx, mac, req.Comment); err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *HTTP) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid := fcontext.RequestID(ctx)

	mac, err := model.NormalizeMAC(mux.Vars(r)["mac"])
	if err != nil {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   err.Error(),
			RequestID: rid,
			Code:      http.StatusUnprocessableEntity,
		})
		return
	}

	if err := api.registry.Delete(ctx, mac); err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	zerolog.Ctx(ctx).Info().Str("mac", mac).Msg("device removed by admin")

	w.WriteHeader(http.StatusNoContent)
}

func (api *HTTP) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	asJSON(ctx, w, InfoResponse{
		Revision:     ts.Revision,
		Branch:       ts.Branch,
		BootTime:     api.bootTime.String(),
		Uptime:       time.Since(api.bootTime).Seconds(),
		RequestCount: int(api.requestCount),
	}, http.StatusOK)
}

// handleLogs serves the tail of the service log file for the admin UI.
func (api *HTTP) handleLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid := fcontext.RequestID(ctx)

	if api.logFile == "" {
		api.serveError(ctx, w, r, model.ServiceError{
			Message:   "no log file configured",
			RequestID: rid,
			Code:      http.StatusNotFound,
		})
		return
	}

	lines := 100
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			api.serveError(ctx, w, r, model.ServiceError{
				Message:   "lines must be a positive number",
				RequestID: rid,
				Code:      http.StatusUnprocessableEntity,
			})
			return
		}
		lines = n
	}
	if lines > 1000 {
		lines = 1000
	}

	data, err := os.ReadFile(api.logFile)
	if err != nil {
		api.serveError(ctx, w, r, err)
		return
	}

	w.Header().Set("content-type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(tailLines(string(data), lines)))
}

// tailLines returns the last n lines of s.
func tailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}

	all := strings.Split(s, "\n")
	if len(all) > n {
		all = all[len(all)-n:]
	}

	return strings.Join(all, "\n") + "\n"
}

// enforceAsync pushes the stored intent to the router without blocking the
// admin response. Enforcement failures are observable in logs only; the
// next cycle re-asserts anyway.
func (api *HTTP) enforceAsync(ctx context.Context, mac string) {
	logger := zerolog.Ctx(ctx).With().Str("mac", mac).Logger()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := api.enforcer.EnforceDevice(ctx, mac); err != nil {
			logger.Warn().Err(err).Msg("immediate enforcement failed, next cycle will retry")
		}
	}()
}

func (api *HTTP) serveError(ctx context.Context, w http.ResponseWriter, r *http.Request, err error) {
	var logger = zerolog.Ctx(ctx)
	var rid = fcontext.RequestID(ctx)

	var responseError model.ServiceError
	switch {
	case errors.As(err, &responseError):
		if responseError.Code == 0 {
			responseError.Code = http.StatusInternalServerError
		}
		if responseError.RequestID == "" {
			responseError.RequestID = rid
		}
	case errors.Is(err, model.ErrNotFound):
		responseError = model.ServiceError{
			Message:   model.ErrNotFound.Error(),
			RequestID: rid,
			Code:      http.StatusNotFound,
		}
	case errors.Is(err, model.ErrInvalidStatus):
		responseError = model.ServiceError{
			Message:   model.ErrInvalidStatus.Error(),
			RequestID: rid,
			Code:      http.StatusUnprocessableEntity,
		}
	default:
		responseError = model.ServiceError{
			Message:   err.Error(),
			RequestID: rid,
			Code:      http.StatusInternalServerError,
		}
	}

	logger.Error().Err(responseError).Msg("captured error")

	if responseError.Code >= http.StatusInternalServerError && api.notifier != nil {
		ravenRequest := raven.NewHttp(r)
		api.notifier.CaptureError(err, nil, ravenRequest)
	}

	asJSON(ctx, w, responseError, responseError.Code)
}
