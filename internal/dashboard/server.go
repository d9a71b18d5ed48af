// Package dashboard serves the local status page and monitoring endpoints.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"goatbot/internal/bus"
	"goatbot/internal/command"
	"goatbot/internal/metrics"
	"goatbot/internal/store"
)

// AccountStatus is one account poller's state as shown on the page.
type AccountStatus struct {
	Username string `json:"username"`
	State    string `json:"state"`
}

// Options wires the dashboard to the running bot.
type Options struct {
	Host     string
	Port     int
	Store    *store.SQLiteStore
	Sink     *bus.RecordBus
	Registry *command.Registry
	Accounts func() []AccountStatus
	Version  string
	Logger   *slog.Logger
}

type Server struct {
	opts      Options
	startTime time.Time
	server    *http.Server
	logger    *slog.Logger
}

func New(opts Options) *Server {
	return &Server{opts: opts, startTime: time.Now(), logger: opts.Logger}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/activity", s.handleActivity)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", metrics.Collector.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("dashboard starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("dashboard shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("dashboard server: %w", err)
	}
}

type statsPayload struct {
	Version        string          `json:"version"`
	UptimeSeconds  int64           `json:"uptimeSeconds"`
	Accounts       []AccountStatus `json:"accounts"`
	Commands       int             `json:"commands"`
	Users          int             `json:"users"`
	Threads        int             `json:"threads"`
	AuditRows      int             `json:"auditRows"`
	Dispatches     int64           `json:"dispatches"`
	DispatchErrors int64           `json:"dispatchErrors"`
	Denials        int64           `json:"denials"`
	PollErrors     int64           `json:"pollErrors"`
}

func (s *Server) stats(ctx context.Context) statsPayload {
	p := statsPayload{
		Version:        s.opts.Version,
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		Commands:       s.opts.Registry.Len(),
		Dispatches:     metrics.DispatchTotal.Value(),
		DispatchErrors: metrics.DispatchErrors.Value(),
		Denials:        metrics.PermissionDenied.Value() + metrics.CooldownDenied.Value(),
		PollErrors:     metrics.PollErrors.Value(),
	}
	if s.opts.Accounts != nil {
		p.Accounts = s.opts.Accounts()
	}
	if s.opts.Store != nil {
		users, threads, audits, err := s.opts.Store.Counts(ctx)
		if err != nil {
			s.logger.Warn("stats query failed", "err", err)
		} else {
			p.Users, p.Threads, p.AuditRows = users, threads, audits
		}
	}
	return p
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.stats(r.Context()))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"recent": s.opts.Sink.Recent(50)})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>goatbot</title>
<style>
body { font-family: ui-monospace, monospace; background: #111; color: #ddd; max-width: 900px; margin: 2em auto; padding: 0 1em; }
h1 { color: #7ec8a8; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1.5em; }
th, td { text-align: left; padding: 0.3em 0.8em; border-bottom: 1px solid #333; }
th { color: #888; font-weight: normal; }
.ok { color: #7ec8a8; }
.err { color: #d97878; }
small { color: #666; }
</style>
</head>
<body>
<h1>goatbot</h1>
<p>version {{.Stats.Version}} &middot; up {{.Uptime}}</p>

<h2>Accounts</h2>
<table>
<tr><th>account</th><th>state</th></tr>
{{range .Stats.Accounts}}<tr><td>{{.Username}}</td><td>{{.State}}</td></tr>
{{else}}<tr><td colspan="2"><small>none running</small></td></tr>{{end}}
</table>

<h2>Totals</h2>
<table>
<tr><th>commands</th><th>dispatches</th><th>errors</th><th>denials</th><th>poll errors</th><th>users</th><th>threads</th></tr>
<tr><td>{{.Stats.Commands}}</td><td>{{.Stats.Dispatches}}</td><td>{{.Stats.DispatchErrors}}</td><td>{{.Stats.Denials}}</td><td>{{.Stats.PollErrors}}</td><td>{{.Stats.Users}}</td><td>{{.Stats.Threads}}</td></tr>
</table>

<h2>Recent activity</h2>
<table>
<tr><th>time</th><th>kind</th><th>command</th><th>sender</th><th>outcome</th></tr>
{{range .Recent}}<tr>
<td>{{.Timestamp.Format "15:04:05"}}</td>
<td>{{.Kind}}</td>
<td>{{.Command}}</td>
<td>{{.SenderID}}</td>
<td class="{{if eq .Outcome "ok"}}ok{{else}}err{{end}}">{{.Outcome}}</td>
</tr>{{else}}<tr><td colspan="5"><small>nothing yet</small></td></tr>{{end}}
</table>

<p><small><a href="/metrics">/metrics</a> &middot; <a href="/api/stats">/api/stats</a> &middot; <a href="/api/activity">/api/activity</a></small></p>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	recent := s.opts.Sink.Recent(20)
	// Newest first on the page.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	data := struct {
		Stats  statsPayload
		Uptime string
		Recent []bus.Record
	}{
		Stats:  s.stats(r.Context()),
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
		Recent: recent,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, data); err != nil {
		s.logger.Warn("render failed", "err", err)
	}
}
