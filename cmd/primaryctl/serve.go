package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/signalsfoundry/mlo-primary/core"
	"github.com/signalsfoundry/mlo-primary/internal/logging"
	"github.com/signalsfoundry/mlo-primary/kb"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Allocate the scenario and serve metrics and decisions over HTTP",
		Long: `'serve' allocates every multi-link peer, then exposes Prometheus metrics and
a JSON dump of the decisions and the per-PSOC load until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := setup(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.close(context.Background())

			if listen == "" {
				listen = e.cfg.Metrics.Listen
			}
			st := newDecisionState()
			st.record(e.reg.AllocateAll(ctx, e.eng))
			unsubscribe := e.reg.Subscribe(st.onEvent)
			defer unsubscribe()

			srv := &http.Server{
				Addr:              listen,
				Handler:           newServeMux(e, st),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()
			e.log.Info(ctx, "serving metrics and decisions",
				logging.String("addr", listen),
				logging.String("metrics_path", e.cfg.Metrics.Path),
			)

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (defaults to metrics.listen)")
	return cmd
}

// decisionState keeps the latest decision per multi-link peer for the
// /decisions endpoint.
type decisionState struct {
	mu    sync.RWMutex
	byMLD map[string]kb.Assignment
	order []string
}

func newDecisionState() *decisionState {
	return &decisionState{byMLD: make(map[string]kb.Assignment)}
}

func (s *decisionState) record(as []kb.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range as {
		if _, ok := s.byMLD[a.MLD]; !ok {
			s.order = append(s.order, a.MLD)
		}
		s.byMLD[a.MLD] = a
	}
}

func (s *decisionState) onEvent(ev kb.Event) {
	switch ev.Type {
	case kb.EventPrimaryAssigned, kb.EventPrimaryMigrated:
	default:
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byMLD[ev.MLD]
	if !ok {
		s.order = append(s.order, ev.MLD)
		a.MLD = ev.MLD
	}
	a.Decision.PSOC = ev.PSOC
	switch {
	case ev.Type == kb.EventPrimaryMigrated:
		a.Decision.Policy = core.PolicyRecorded
	case ev.Policy != "":
		a.Decision.Policy = ev.Policy
	}
	s.byMLD[ev.MLD] = a
}

func (s *decisionState) snapshot() []kb.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]kb.Assignment, 0, len(s.order))
	for _, mld := range s.order {
		out = append(out, s.byMLD[mld])
	}
	return out
}

func newServeMux(e *env, st *decisionState) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(e.cfg.Metrics.Path, e.collector.Handler())
	mux.HandleFunc("/decisions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = writeJSON(w, struct {
			Assignments []kb.Assignment `json:"assignments"`
			Load        []loadRow       `json:"load"`
		}{
			Assignments: st.snapshot(),
			Load:        loadRows(e.eng.Load()),
		})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
