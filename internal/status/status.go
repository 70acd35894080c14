// Package status serves the device's local HTTP status surface.
//
// The handler exposes:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; 200 only when every registered [Checker]
//     passes (typically "link" and "transport").
//   - /statusz: a JSON [Report] of the session and connection state.
//   - /metrics: Prometheus exposition of the OTel metrics, when configured.
//
// Responses from /healthz and /readyz are JSON objects with a top-level
// "status" field ("ok" or "fail") and a "checks" map.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 2 * time.Second

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Report is the /statusz body.
type Report struct {
	DeviceID string `json:"device_id,omitempty"`

	// Session
	State         string    `json:"state"`
	InteractionID string    `json:"interaction_id,omitempty"`
	LastActivity  time.Time `json:"last_activity"`
	Interactions  int       `json:"interactions"`

	// Connection
	Link        string    `json:"link"`
	RetryCount  int       `json:"retry_count"`
	LastContact time.Time `json:"last_contact,omitzero"`
	LastTraffic time.Time `json:"last_traffic,omitzero"`

	Uptime string `json:"uptime"`
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the status endpoints. It is safe for concurrent use; the
// checker list is fixed at construction time.
type Handler struct {
	report   func() Report
	checkers []Checker
	started  time.Time
	metrics  http.Handler
}

// Option configures a [Handler].
type Option func(*Handler)

// WithChecks adds readiness checkers, evaluated in order.
func WithChecks(checkers ...Checker) Option {
	return func(h *Handler) { h.checkers = append(h.checkers, checkers...) }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(mh http.Handler) Option {
	return func(h *Handler) { h.metrics = mh }
}

// New returns a [Handler]. report is called on every /statusz request and
// must be safe for concurrent use; nil serves an empty report.
func New(report func() Report, opts ...Option) *Handler {
	h := &Handler{report: report, started: time.Now()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Paths returns the routes served by h.
func (h *Handler) Paths() []string {
	p := []string{"/healthz", "/readyz", "/statusz"}
	if h.metrics != nil {
		p = append(p, "/metrics")
	}
	return p
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every [Checker] passes.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !allOK {
		res.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// Statusz returns the current [Report].
func (h *Handler) Statusz(w http.ResponseWriter, _ *http.Request) {
	var rep Report
	if h.report != nil {
		rep = h.report()
	}
	rep.Uptime = time.Since(h.started).Round(time.Second).String()
	writeJSON(w, http.StatusOK, rep)
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /statusz", h.Statusz)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
