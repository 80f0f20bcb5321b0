package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/camera-recon/internal/delivery"
	"github.com/sells-group/camera-recon/internal/model"
	"github.com/sells-group/camera-recon/internal/monitoring"
	"github.com/sells-group/camera-recon/internal/store"
	"github.com/sells-group/camera-recon/internal/sweep"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for sweep requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSweepEnv(ctx, "serve", "")
		if err != nil {
			return err
		}
		defer env.Close()

		s := newServer(ctx, env.Store, env.Sweeper.Run, env.Sink, env.MapDir)

		if cfg.Monitor.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitor),
				cfg.Monitor,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("map_dir", env.MapDir))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		s.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server handles sweep requests over HTTP. Accepted sweeps run in the
// background on ctx, not on the request context.
type server struct {
	ctx    context.Context
	store  store.Store
	run    sweepFunc
	sink   delivery.Sink
	mapDir string

	inflight sync.WaitGroup
}

func newServer(ctx context.Context, st store.Store, run sweepFunc, sink delivery.Sink, mapDir string) *server {
	return &server{ctx: ctx, store: st, run: run, sink: sink, mapDir: mapDir}
}

// wait blocks until every accepted sweep has finished.
func (s *server) wait() {
	s.inflight.Wait()
}

func (s *server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/sweeps", func(r chi.Router) {
		r.Post("/", s.handleCreateSweep)
		r.Get("/", s.handleListSweeps)
		r.Get("/{id}", s.handleGetSweep)
	})
	r.Get("/maps/{name}", s.handleMap)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sweepRequest struct {
	PostalCode string `json:"postal_code"`
	Mode       string `json:"mode"`
}

func (s *server) handleCreateSweep(w http.ResponseWriter, r *http.Request) {
	var body sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	postal := strings.TrimSpace(body.PostalCode)
	if postal == "" {
		writeError(w, http.StatusBadRequest, "postal_code is required")
		return
	}

	mode := model.ScanModeQuick
	if body.Mode != "" {
		m, err := model.ParseScanMode(body.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, "mode must be quick or full")
			return
		}
		mode = m
	}

	req := sweep.Request{ID: uuid.NewString(), PostalCode: postal, Mode: mode}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		log := zap.L().With(zap.String("sweep_id", req.ID), zap.String("postal_code", req.PostalCode))

		rep, err := s.run(s.ctx, req)
		_ = deliverResult(s.ctx, s.sink, req, rep, err)

		switch {
		case errors.Is(err, sweep.ErrNotFound):
			log.Info("sweep request: postal code not found")
		case err != nil:
			log.Error("sweep request failed", zap.Error(err))
		default:
			log.Info("sweep request complete",
				zap.String("outcome", string(rep.Outcome)),
				zap.Int("devices", len(rep.Records)),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":      "accepted",
		"sweep_id":    req.ID,
		"postal_code": req.PostalCode,
		"mode":        string(req.Mode),
	})
}

func (s *server) handleListSweeps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SweepFilter{
		Status:     model.SweepStatus(q.Get("status")),
		PostalCode: q.Get("zip"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	sweeps, err := s.store.ListSweeps(r.Context(), filter)
	if err != nil {
		zap.L().Error("list sweeps", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list sweeps")
		return
	}
	if sweeps == nil {
		sweeps = []model.Sweep{}
	}
	writeJSON(w, http.StatusOK, sweeps)
}

func (s *server) handleGetSweep(w http.ResponseWriter, r *http.Request) {
	sw, err := s.store.GetSweep(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrSweepNotFound) {
		writeError(w, http.StatusNotFound, "sweep not found")
		return
	}
	if err != nil {
		zap.L().Error("get sweep", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load sweep")
		return
	}
	writeJSON(w, http.StatusOK, sw)
}

// handleMap serves a map artifact by name. Only files named like the
// sweeper's artifacts are served, and never from outside mapDir.
func (s *server) handleMap(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name != filepath.Base(name) || !strings.HasPrefix(name, "camera_map_") || !strings.HasSuffix(name, ".html") {
		writeError(w, http.StatusNotFound, "map not found")
		return
	}
	http.ServeFile(w, r, filepath.Join(s.mapDir, name))
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
