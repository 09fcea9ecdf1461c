package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/enverbisevac/actors/actor"
	"github.com/enverbisevac/actors/httputil"
)

type server struct {
	counters *actor.Client[Counter]
}

func newRouter(log logr.Logger, counters *actor.Client[Counter], gatherer prometheus.Gatherer) http.Handler {
	s := &server{counters: counters}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/update/{name}", s.update)
	r.Post("/update/{name}", s.update)
	r.Get("/get/{name}", s.get)

	return r
}

// withLogger puts a request scoped logger into the request context.
func withLogger(log logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := log.WithValues("request_id", middleware.GetReqID(r.Context()))
			next.ServeHTTP(w, r.WithContext(logr.NewContext(r.Context(), l)))
		})
	}
}

// update holds the counter, increments it and flushes.
func (s *server) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, err := s.counters.Hold(ctx, partition, chi.URLParam(r, "name"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	defer func() {
		if err := sess.Close(ctx); err != nil {
			logr.FromContextOrDiscard(ctx).Error(err, "close session")
		}
	}()

	sess.Record().Payload.Increment()

	if err := sess.Flush(ctx); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, sess.Record())
}

func (s *server) get(w http.ResponseWriter, r *http.Request) {
	rec, err := s.counters.Get(r.Context(), partition, chi.URLParam(r, "name"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, rec)
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != http.ErrServerClosed {
		return err
	}
	return nil
}
