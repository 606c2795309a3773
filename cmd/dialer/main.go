// Command dialer runs a power-dialer queue against the API: it dials each lead
// lead-first, one at a time, and follows call outcomes on the live feed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"voice-orchestrator/internal/apiclient"
	"voice-orchestrator/internal/dialer"
	"voice-orchestrator/internal/metrics"
	"voice-orchestrator/pkg/logger"
)

var (
	apiURL      string
	accessToken string
	leadsPath   string
	states      []string
	stages      []string

	maxAttempts   int
	record        bool
	ringbackURL   string
	ringTimeout   int
	safetyTimeout time.Duration
	logFile       string
	metricsAddr   string
)

var rootCmd = &cobra.Command{
	Use:           "dialer",
	Short:         "Power dialer for lead-first calls",
	SilenceErrors: true,
	SilenceUsage:  true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dial every queued lead until the queue is exhausted",
	Long: `Dial the filtered leads one at a time. Failed calls are retried up to
--max-attempts. SIGUSR1 pauses before the next dial, SIGUSR2 resumes.`,
	RunE: runDialer,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the queue the filters would build",
	RunE: func(cmd *cobra.Command, args []string) error {
		leads, err := dialer.LoadLeads(leadsPath)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(dialer.BuildQueue(leads, states, stages))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&leadsPath, "leads", "leads.yaml", "Lead file (YAML)")
	rootCmd.PersistentFlags().StringSliceVar(&states, "state", nil, "Only leads in these states (repeatable)")
	rootCmd.PersistentFlags().StringSliceVar(&stages, "stage", nil, "Only leads in these pipeline stages (repeatable)")

	runCmd.Flags().StringVar(&apiURL, "api-url", envOr("DIALER_API_URL", "http://localhost:8080"), "API base URL")
	runCmd.Flags().StringVar(&accessToken, "token", os.Getenv("DIALER_TOKEN"), "Access token (or DIALER_TOKEN)")
	runCmd.Flags().IntVar(&maxAttempts, "max-attempts", 1, "Dials per lead, 1-3")
	runCmd.Flags().BoolVar(&record, "record", false, "Record bridged calls")
	runCmd.Flags().StringVar(&ringbackURL, "ringback-url", "", "Audio played to the lead while the agent rings")
	runCmd.Flags().IntVar(&ringTimeout, "ring-timeout", 30, "Seconds the lead's phone rings")
	runCmd.Flags().DurationVar(&safetyTimeout, "safety-timeout", dialer.DefaultSafetyTimeout, "Give up on a call with no outcome after this long")
	runCmd.Flags().StringVar(&logFile, "log-file", "", "Also write logs to this rotated file")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running, e.g. :9102")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(previewCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDialer(cmd *cobra.Command, args []string) error {
	if accessToken == "" {
		return fmt.Errorf("an access token is required (--token or DIALER_TOKEN)")
	}
	log, closer := logger.New("local", logFile)
	defer closer.Close()

	leads, err := dialer.LoadLeads(leadsPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := apiclient.New(apiclient.Config{BaseURL: apiURL, AccessToken: accessToken})
	userID, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("resolving token user: %w", err)
	}

	sched, err := dialer.NewScheduler(dialer.Config{
		UserID:             userID,
		MaxAttempts:        maxAttempts,
		SafetyTimeout:      safetyTimeout,
		Record:             record,
		RingTimeoutSeconds: ringTimeout,
		RingbackURL:        ringbackURL,
	}, dialer.Deps{
		Initiator: client,
		Feed:      client,
		Setup:     client,
		Log:       log,
		OnChange:  progress(log),
	})
	if err != nil {
		return err
	}
	if err := sched.Rebuild(leads, states, stages); err != nil {
		return err
	}
	log.Info("queue built", "leads", len(leads), "queued", len(sched.Snapshot().Items))

	go handlePauseSignals(ctx, sched, log)
	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	printSummary(cmd, sched.Snapshot())
	return nil
}

func metricsRouter() *gin.Engine {
	r := gin.New()
	r.GET("/metrics", metrics.Handler())
	return r
}

func serveMetrics(addr string, log *slog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{Addr: addr, Handler: metricsRouter(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener failed", "addr", addr, "err", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)
	return srv
}

func handlePauseSignals(ctx context.Context, sched *dialer.Scheduler, log *slog.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sig)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			if s == syscall.SIGUSR1 {
				sched.Pause()
				log.Info("dialer paused; in-flight call continues")
			} else {
				sched.Resume()
				log.Info("dialer resumed")
			}
		}
	}
}

// progress logs each item status change once. Pause and Resume report from the
// signal goroutine, so it locks.
func progress(log *slog.Logger) func(dialer.Snapshot) {
	var mu sync.Mutex
	last := map[string]dialer.ItemStatus{}
	return func(s dialer.Snapshot) {
		if s.Index >= len(s.Items) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		it := s.Items[s.Index]
		key := fmt.Sprintf("%s#%d", it.LeadID, it.Attempts)
		if last[key] == it.Status {
			return
		}
		last[key] = it.Status
		log.Info("lead", "lead_id", it.LeadID, "attempt", it.Attempts+1, "status", it.Status, "error", it.LastError)
	}
}

func printSummary(cmd *cobra.Command, s dialer.Snapshot) {
	counts := map[dialer.ItemStatus]int{}
	var unconfirmed []string
	for _, it := range s.Items {
		counts[it.Status]++
		if it.Unconfirmed {
			unconfirmed = append(unconfirmed, it.LeadID)
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "dialed %d/%d leads: %d completed, %d failed\n",
		s.Index, len(s.Items), counts[dialer.ItemCompleted], counts[dialer.ItemFailed])
	if len(unconfirmed) > 0 {
		fmt.Fprintf(out, "%d starts unconfirmed, check before calling again: %v\n", len(unconfirmed), unconfirmed)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
