// Package metrics keeps in-process counters of session activity.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	gometrics "github.com/armon/go-metrics"

	"bingo/internal/session"
)

// Recorder counts committed session events into an in-memory sink that can
// be dumped over HTTP.
type Recorder struct {
	m    *gometrics.Metrics
	sink *gometrics.InmemSink
}

// New returns a Recorder whose keys are prefixed with service.
func New(service string) (*Recorder, error) {
	sink := gometrics.NewInmemSink(10*time.Second, time.Minute)
	cfg := gometrics.DefaultConfig(service)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	m, err := gometrics.New(cfg, sink)
	if err != nil {
		return nil, err
	}
	return &Recorder{m: m, sink: sink}, nil
}

func (r *Recorder) HandleEvent(_ context.Context, ev session.Event) {
	r.m.IncrCounter([]string{"events", ev.Kind()}, 1)

	switch e := ev.(type) {
	case session.NumberDrawn:
		r.m.IncrCounter([]string{"draws"}, 1)
	case session.GameOver:
		r.m.IncrCounter([]string{"games", "finished"}, 1)
		r.m.AddSample([]string{"games", "duration_seconds"}, float32(e.Duration.Seconds()))
		r.m.AddSample([]string{"games", "players"}, float32(e.Players))
	case session.SessionTerminated:
		r.m.IncrCounter([]string{"games", "terminated"}, 1)
	case session.PlayerDisconnected:
		r.m.IncrCounter([]string{"disconnects"}, 1)
	}
}

// SetConnections records the number of live sockets.
func (r *Recorder) SetConnections(n int) {
	r.m.SetGauge([]string{"connections"}, float32(n))
}

// Counter returns the current-interval count for a flattened key such as
// "bingo.draws".
func (r *Recorder) Counter(key string) int {
	data := r.sink.Data()
	if len(data) == 0 {
		return 0
	}
	// Data returns a private copy of the current interval.
	current := data[len(data)-1]
	if v, ok := current.Counters[key]; ok && v.AggregateSample != nil {
		return v.Count
	}
	return 0
}

// Handler serves the sink contents as JSON.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		summary, err := r.sink.DisplayMetrics(w, req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	})
}
