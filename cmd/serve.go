package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kz-sim/kz-sim/sim"
)

var listenAddr string // HTTP listen address

// defaultMaxRequestBytes caps API request bodies.
const defaultMaxRequestBytes = 8 << 20

// serveCmd exposes kink statistics and theory over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve kink statistics and theory predictions as a JSON API",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadDefaultsConfig(defaultsFilePath)
		srv := &http.Server{
			Addr:              listenAddr,
			Handler:           newAPI(cfg, prometheus.NewRegistry()).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logrus.Warnf("Shutdown: %v", err)
			}
		}()

		logrus.Infof("Listening on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Server failed: %v", err)
		}
	},
}

// api serves the kink and theory endpoints.
type api struct {
	cfg      Config
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	samples  prometheus.Counter
	maxBody  int64
}

func newAPI(cfg Config, reg *prometheus.Registry) *api {
	a := &api{
		cfg:      cfg,
		registry: reg,
		maxBody:  defaultMaxRequestBytes,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kz_api_requests_total",
			Help: "API requests by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kz_api_request_duration_seconds",
			Help:    "API request latency by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kz_kink_samples_total",
			Help: "Samples whose kinks were counted.",
		}),
	}
	reg.MustRegister(a.requests, a.latency, a.samples)
	return a
}

// Handler returns the API routes.
func (a *api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/kinks", a.instrument("kinks", a.handleKinks))
	mux.HandleFunc("POST /api/v1/theory", a.instrument("theory", a.handleTheory))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return mux
}

// instrument records request counts and latency for an endpoint.
func (a *api) instrument(endpoint string, h func(*http.Request) (int, any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r.Body = http.MaxBytesReader(w, r.Body, a.maxBody)
		code, body := h(r)
		writeJSON(w, code, body)
		a.requests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
		a.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Debugf("writing response: %v", err)
	}
}

// decodeRequest reads a JSON body, reporting 413 when it exceeds the body cap.
func decodeRequest(r *http.Request, v any) (int, error) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return http.StatusBadRequest, fmt.Errorf("decoding request: %w", err)
	}
	return http.StatusOK, nil
}

// kinksRequest carries samples either as rows or as a serialized sample set.
type kinksRequest struct {
	Samples   [][]int8 `json:"samples"`
	SampleSet string   `json:"sample_set"`
	Coupling  *float64 `json:"coupling"`
}

type kinksResponse struct {
	Rule    string   `json:"rule"`
	Counts  []int    `json:"counts"`
	Density *float64 `json:"density"`
}

func (a *api) handleKinks(r *http.Request) (int, any) {
	var req kinksRequest
	if code, err := decodeRequest(r, &req); err != nil {
		return code, errorResponse{Error: err.Error()}
	}
	c := a.cfg.Defaults.Coupling
	if req.Coupling != nil {
		c = *req.Coupling
	}
	samples := req.Samples
	if req.SampleSet != "" {
		ss, err := sim.SampleSetFromSerializable(req.SampleSet)
		if err != nil {
			return http.StatusBadRequest, errorResponse{Error: err.Error()}
		}
		samples = ss.Record()
	}
	result, err := sim.KinkStats(samples, c)
	if err != nil {
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	}
	a.samples.Add(float64(len(result.Counts)))
	return http.StatusOK, kinksResponse{
		Rule:    sim.RuleForCoupling(c).Name(),
		Counts:  result.Counts,
		Density: finiteOrNil(result.Density),
	}
}

type theoryRequest struct {
	AnnealTimesNs []float64 `json:"anneal_times_ns"`
	Coupling      *float64  `json:"coupling"`
	Solver        string    `json:"solver"`
	Schedule      string    `json:"schedule"`
}

type theoryResponse struct {
	Schedule     string     `json:"schedule"`
	RateConstant *float64   `json:"rate_constant"`
	Densities    []*float64 `json:"densities"`
}

func (a *api) handleTheory(r *http.Request) (int, any) {
	var req theoryRequest
	if code, err := decodeRequest(r, &req); err != nil {
		return code, errorResponse{Error: err.Error()}
	}
	if len(req.AnnealTimesNs) == 0 {
		return http.StatusBadRequest, errorResponse{Error: "anneal_times_ns is required"}
	}
	c := a.cfg.Defaults.Coupling
	if req.Coupling != nil {
		c = *req.Coupling
	}
	name := req.Schedule
	if name == "" {
		name = a.cfg.ScheduleFor(req.Solver)
	}
	if name != "" && name != filepath.Base(name) {
		return http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid schedule name %q", name)}
	}
	sched, err := a.cfg.ScheduleConfig().Load(name)
	if err != nil {
		return http.StatusNotFound, errorResponse{Error: err.Error()}
	}
	b, err := sim.RateConstant(sched, c)
	if err != nil {
		return http.StatusUnprocessableEntity, errorResponse{Error: err.Error()}
	}
	densities := sim.KinkDensityForRate(req.AnnealTimesNs, b)
	resp := theoryResponse{Schedule: sched.Name, RateConstant: finiteOrNil(b), Densities: make([]*float64, len(densities))}
	for i, d := range densities {
		resp.Densities[i] = finiteOrNil(d)
	}
	return http.StatusOK, resp
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8050", "HTTP listen address")

	rootCmd.AddCommand(serveCmd)
}
