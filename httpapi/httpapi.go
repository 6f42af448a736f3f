// Copyright 2021 The ols Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package httpapi serves logic analyzer acquisitions over HTTP.
//
// Routes:
//
//	GET  /health           liveness probe
//	GET  /version          module version of the service
//	GET  /profiles         list device profiles
//	GET  /profiles/{name}  describe a device profile
//	POST /identify         query the identifier and metadata of a device
//	POST /acquire          run an acquisition (JSON, or a hex dump with ?format=dump)
package httpapi // import "github.com/lavachemist/ols/httpapi"

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"github.com/lavachemist/ols"
	"github.com/lavachemist/ols/profiledb"
	"github.com/lavachemist/ols/sump"
	"github.com/lavachemist/ols/transport"
	"github.com/rs/zerolog"
)

// API is the HTTP front-end of a set of capture devices.
type API struct {
	router chi.Router
	log    zerolog.Logger
	cat    profiledb.Catalog
	opts   []sump.Option

	dial func(kind, name string, baud int) func() (sump.Channel, error)

	mu    sync.Mutex
	drvs  map[string]*sump.Driver // by profile, transport and port
	bauds map[string]int
}

const defaultBaud = 115200

// New registers the API routes on r.
// A nil catalog selects the built-in device profiles.
func New(r chi.Router, cat profiledb.Catalog, log zerolog.Logger, opts ...sump.Option) *API {
	if cat == nil {
		cat = profiledb.Builtin{}
	}
	api := &API{
		router: r,
		log:    log,
		cat:    cat,
		opts:   opts,
		dial:   transport.Dialer,
		drvs:   make(map[string]*sump.Driver),
		bauds:  make(map[string]int),
	}

	r.Use(middleware.Logger)
	r.Get("/health", api.health)
	r.Get("/version", api.version)
	r.Get("/profiles", api.profiles)
	r.Get("/profiles/{name}", api.profile)
	r.Post("/identify", api.identify)
	r.Post("/acquire", api.acquire)

	return api
}

// Start listens on addr and serves the API.
func (api *API) Start(addr string) error {
	v, _ := ols.Version()
	api.log.Info().Str("addr", addr).Str("version", v).Msg("starting to listen for connections")
	return http.ListenAndServe(addr, api.router)
}

func (api *API) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) version(w http.ResponseWriter, r *http.Request) {
	var v Version
	v.Version, v.Sum = ols.Version()
	api.reply(w, http.StatusOK, v)
}

func (api *API) profiles(w http.ResponseWriter, r *http.Request) {
	ps, err := api.cat.Profiles(r.Context())
	if err != nil {
		api.fail(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]Profile, len(ps))
	for i, p := range ps {
		out[i] = newProfile(p)
	}
	api.reply(w, http.StatusOK, out)
}

func (api *API) profile(w http.ResponseWriter, r *http.Request) {
	p, err := api.cat.Profile(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		api.fail(w, lookupStatus(err), err)
		return
	}
	api.reply(w, http.StatusOK, newProfile(p))
}

func (api *API) identify(w http.ResponseWriter, r *http.Request) {
	var req DeviceRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		api.fail(w, http.StatusBadRequest, fmt.Errorf("could not decode request: %w", err))
		return
	}

	drv, code, err := api.driver(r.Context(), req)
	if err != nil {
		api.fail(w, code, err)
		return
	}

	id, err := drv.Identify(r.Context())
	if err != nil {
		api.fail(w, status(err), err)
		return
	}
	resp := IdentifyResponse{ID: id}

	md, err := drv.Metadata(r.Context())
	if err != nil {
		api.log.Warn().Err(err).Str("port", req.Port).Msg("could not retrieve device metadata")
	} else {
		resp.Metadata = newMetadata(md)
	}

	api.reply(w, http.StatusOK, resp)
}

func (api *API) acquire(w http.ResponseWriter, r *http.Request) {
	var req AcquireRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		api.fail(w, http.StatusBadRequest, fmt.Errorf("could not decode request: %w", err))
		return
	}

	drv, code, err := api.driver(r.Context(), req.DeviceRequest)
	if err != nil {
		api.fail(w, code, err)
		return
	}

	id := uuid.New()
	log := api.log.With().Str("id", id.String()).Str("profile", req.Profile).Logger()
	log.Info().Uint32("rate", req.Rate).Int("samples", req.Samples).Msg("acquisition started")

	res, err := drv.Acquire(r.Context(), req.config())
	if err != nil {
		log.Error().Err(err).Str("state", drv.State().String()).Msg("acquisition failed")
		api.fail(w, status(err), err)
		return
	}
	log.Info().Int("samples", len(res.Samples)).Msg("acquisition completed")

	if r.URL.Query().Get("format") == "dump" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Acquisition-Id", id.String())
		w.WriteHeader(http.StatusOK)
		_, err = res.WriteTo(w)
		if err != nil {
			log.Error().Err(err).Msg("could not write sample dump")
		}
		return
	}

	api.reply(w, http.StatusOK, AcquireResponse{
		ID:       id.String(),
		Rate:     res.Rate,
		Channels: res.Channels,
		Samples:  res.Samples,
	})
}

// driver returns the driver of the requested device, creating it on first use.
// Requests for the same device share a driver, and thus its busy state.
// A device keeps the baud rate it was first opened with.
func (api *API) driver(ctx context.Context, req DeviceRequest) (*sump.Driver, int, error) {
	if req.Transport == "" {
		req.Transport = "serial"
	}
	if req.Baud == 0 {
		req.Baud = defaultBaud
	}
	key := req.Profile + "|" + req.Transport + "|" + req.Port

	api.mu.Lock()
	defer api.mu.Unlock()

	if drv, ok := api.drvs[key]; ok {
		if baud := api.bauds[key]; baud != req.Baud {
			return nil, http.StatusBadRequest, fmt.Errorf(
				"device %s:%q already opened at %d baud (requested %d)",
				req.Transport, req.Port, baud, req.Baud,
			)
		}
		return drv, http.StatusOK, nil
	}

	prof, err := api.cat.Profile(ctx, req.Profile)
	if err != nil {
		return nil, lookupStatus(err), err
	}

	drv := sump.NewDriver(prof, api.dial(req.Transport, req.Port, req.Baud), api.opts...)
	api.drvs[key] = drv
	api.bauds[key] = req.Baud
	return drv, http.StatusOK, nil
}

// lookupStatus maps profile lookup errors to HTTP status codes.
func lookupStatus(err error) int {
	if profiledb.IsNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// status maps acquisition errors to HTTP status codes.
func status(err error) int {
	var (
		cfg *sump.ConfigError
		tmo *sump.TimeoutError
		ch  *sump.ChannelError
		bad *sump.CorruptionError
	)
	switch {
	case errors.As(err, &cfg):
		return http.StatusBadRequest
	case errors.Is(err, sump.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &tmo):
		return http.StatusGatewayTimeout
	case errors.As(err, &ch), errors.As(err, &bad):
		return http.StatusBadGateway
	case errors.Is(err, sump.ErrCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (api *API) reply(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		api.log.Error().Err(err).Msg("could not encode response")
	}
}

func (api *API) fail(w http.ResponseWriter, code int, err error) {
	api.reply(w, code, Error{Error: err.Error()})
}
