package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const readyCheckTimeout = 2 * time.Second

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type readyReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewBaseMuxWithReady returns a mux serving /healthz and /readyz. Checks with a nil func are
// skipped, so optional dependencies can be passed unconditionally.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	var active []ReadyCheck
	for _, c := range checks {
		if c.Check != nil {
			active = append(active, c)
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeReport(w, http.StatusOK, readyReport{Status: "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		report, ok := runChecks(r.Context(), active)
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		writeReport(w, code, report)
	})
	return mux
}

// runChecks runs every check concurrently, each under its own timeout.
func runChecks(ctx context.Context, checks []ReadyCheck) (readyReport, bool) {
	results := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
			defer cancel()
			results[i] = c.Check(checkCtx)
		}()
	}
	wg.Wait()

	report := readyReport{Status: "ok", Checks: make(map[string]string, len(checks))}
	ok := true
	for i, c := range checks {
		name := c.Name
		if name == "" {
			name = "dependency"
		}
		if err := results[i]; err != nil {
			report.Checks[name] = err.Error()
			ok = false
			continue
		}
		report.Checks[name] = "ok"
	}
	if !ok {
		report.Status = "unavailable"
	}
	return report, ok
}

func writeReport(w http.ResponseWriter, code int, report readyReport) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
