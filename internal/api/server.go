package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/forecasteval/internal/store"
	"github.com/lox/forecasteval/internal/summary"
)

// maxBodyBytes bounds an uploaded forecast table. A full M4 submission in
// CSV form is roughly 20 MB.
const maxBodyBytes = 64 << 20

type Server struct {
	store *store.Store
	eval  *summary.Evaluator
	port  string
}

// NewServer returns a server scoring uploads with eval. eval may be nil
// when the corpus cache is not built; evaluation requests then fail with
// 503 while history stays available.
func NewServer(store *store.Store, eval *summary.Evaluator, port string) *Server {
	return &Server{
		store: store,
		eval:  eval,
		port:  port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/evaluate", s.handleAPIEvaluate)
	mux.HandleFunc("/api/evaluations", s.handleAPIEvaluations)
	mux.HandleFunc("/api/evaluations/", s.handleAPIEvaluation)
	mux.HandleFunc("/api/ingest-runs", s.handleAPIIngestRuns)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
