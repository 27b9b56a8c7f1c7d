package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kswings/kswingsd/pkg/config"
	"github.com/kswings/kswingsd/pkg/deploy"
	"github.com/kswings/kswingsd/pkg/runtime"
	"github.com/kswings/kswingsd/pkg/store"
)

// Server carries both panel-facing surfaces on one listener: the JSON
// control API and the websocket session channel.
type Server struct {
	Log *logrus.Entry

	Config   *config.AppConfig
	Runtime  runtime.API
	Store    *store.Store
	Deployer *deploy.Deployer

	buffers  *logBuffers
	upgrader websocket.Upgrader
	router   *mux.Router
	httpSrv  *http.Server
}

// NewServer wires the routes over the shared components.
func NewServer(log *logrus.Entry, cfg *config.AppConfig, rt runtime.API, st *store.Store, deployer *deploy.Deployer) *Server {
	s := &Server{
		Log:      log,
		Config:   cfg,
		Runtime:  rt,
		Store:    st,
		Deployer: deployer,
		buffers:  newLogBuffers(cfg.UserConfig.LogBufferSize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the shared secret is the access control, not the Origin header
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.Handle("/instances/create", s.requireAuth(s.handleCreate)).Methods(http.MethodPost)
	r.Handle("/instances/redeploy/{id}/{containerId}", s.requireAuth(s.handleRedeploy(false))).Methods(http.MethodPost)
	r.Handle("/instances/reinstall/{id}/{containerId}", s.requireAuth(s.handleRedeploy(true))).Methods(http.MethodPost)
	r.Handle("/instances/edit/{id}", s.requireAuth(s.handleEdit)).Methods(http.MethodPut)
	r.Handle("/instances/{id}", s.requireAuth(s.handleDelete)).Methods(http.MethodDelete)
	r.Handle("/state/{volumeId}", s.requireAuth(s.handleState)).Methods(http.MethodGet)
	r.Handle("/stats", s.requireAuth(s.handleStats)).Methods(http.MethodGet)

	// session channel; auth happens in-band via the handshake frame
	r.HandleFunc("/{kind}/{containerId}/{volumeId}", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/{kind}/{containerId}", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/{kind}", s.handleSession).Methods(http.MethodGet)

	s.router = r
	return s
}

// Router exposes the handler tree, mainly so tests can mount it on a
// test listener.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe blocks serving the control plane until Close.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Config.UserConfig.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Log.Infof("control plane listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the listener down, giving in-flight requests a grace
// period.
func (s *Server) Close() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) statsInterval() time.Duration {
	seconds := s.Config.UserConfig.StatsIntervalSeconds
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}
