package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/advisory"
	"github.com/archivekit/conversion-assistant/internal/analyzer"
	"github.com/archivekit/conversion-assistant/internal/config"
	"github.com/archivekit/conversion-assistant/internal/coordinator"
	"github.com/archivekit/conversion-assistant/internal/engines"
	"github.com/archivekit/conversion-assistant/internal/events"
	"github.com/archivekit/conversion-assistant/internal/router"
	"github.com/archivekit/conversion-assistant/internal/session"
	"github.com/archivekit/conversion-assistant/internal/store"
	"github.com/archivekit/conversion-assistant/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the conversion assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		undo := log.Setup(cfg.Service.LogLevel)
		defer undo()
		logger := zap.S().Named("run")
		logger.Info("starting conversion assistant")
		defer logger.Info("conversion assistant stopped")

		db, err := store.InitDB(cfg)
		if err != nil {
			return fmt.Errorf("initializing journal store: %w", err)
		}
		st := store.NewStore(db)
		defer st.Close()

		state := session.New(session.WithJournalSink(store.NewSink(st.Journal())))
		r := router.New(state)
		defer r.Stop()
		state.AttachNotifier(r)

		producer := events.NewEventProducer(&events.StdoutWriter{})
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Warnw("closing event producer", "error", err)
			}
		}()
		r.Subscribe(producer.Subscriber())

		engines.RegisterHandlers(r,
			engines.NewConversionClient(cfg.Engines.ConversionURL),
			engines.NewValidationClient(cfg.Engines.ValidationURL),
			engines.HandlerConfig{
				CallTimeout:          cfg.Engines.CallTimeout,
				ProgressPollInterval: cfg.Engines.ProgressPollInterval,
				ObserverJoinTimeout:  cfg.Engines.ObserverJoinTimeout,
				ReportDir:            cfg.Service.DataDir,
			})

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		var advisor advisory.Advisor
		if cfg.Advisory.Enabled && cfg.Advisory.APIKey != "" {
			advisor, err = advisory.NewGeminiAdvisor(ctx, cfg.Advisory.APIKey, cfg.Advisory.Model)
			if err != nil {
				logger.Warnw("advisory unavailable, continuing with heuristics only", "error", err)
				advisor = nil
			}
		}

		coordinator.New(r,
			analyzer.New(advisor, cfg.Service.MaxCorrectionAttempts),
			advisor,
			cfg.Service.MaxCorrectionAttempts)

		if cfg.Metrics.Address != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
					logger.Warnw("metrics endpoint stopped", "error", err)
				}
			}()
		}

		return interact(ctx, r, os.Stdin, os.Stdout)
	},
}

// interact reads one command per line and relays it to the router. Kept
// deliberately thin: all semantics live behind the dispatch boundary.
func interact(ctx context.Context, r *router.Router, in *os.File, out *os.File) error {
	fmt.Fprintln(out, "commands: start <path> | input <field>=<value>... | approve | reject | accept | improve | apply_fixes | cancel_fixes | status | journal | reset | quit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return nil
		case "status":
			printStatus(out, r.Session())
			continue
		case "journal":
			for _, entry := range r.Session().Journal() {
				fmt.Fprintf(out, "%s [%s] %s\n", entry.Timestamp.Format("15:04:05"), entry.Level, entry.Message)
			}
			continue
		}

		env, err := envelopeFor(fields)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		printResponse(out, r.Dispatch(ctx, env))
	}
}

func envelopeFor(fields []string) (api.Envelope, error) {
	env := api.Envelope{TargetGroup: coordinator.GroupWorkflow, Context: map[string]any{}}

	switch fields[0] {
	case "start":
		if len(fields) != 2 {
			return env, fmt.Errorf("usage: start <path>")
		}
		env.Operation = coordinator.OpStartConversion
		env.Context["inputPath"] = fields[1]
	case "input":
		if len(fields) < 2 {
			return env, fmt.Errorf("usage: input <field>=<value>...")
		}
		values := map[string]any{}
		for _, pair := range fields[1:] {
			field, value, ok := strings.Cut(pair, "=")
			if !ok {
				return env, fmt.Errorf("malformed field assignment %q", pair)
			}
			values[field] = strings.ReplaceAll(value, "_", " ")
		}
		env.Operation = coordinator.OpProvideInput
		env.Context["fields"] = values
	case "approve", "reject":
		env.Operation = coordinator.OpRetryDecision
		env.Context["decision"] = fields[0]
	case "accept", "improve", "apply_fixes", "cancel_fixes":
		env.Operation = coordinator.OpImprovementDecision
		env.Context["decision"] = fields[0]
	case "reset":
		env.Operation = coordinator.OpResetSession
	default:
		return env, fmt.Errorf("unknown command %q", fields[0])
	}
	return env, nil
}

func printStatus(out *os.File, s *session.Session) {
	fmt.Fprintf(out, "session %s: status=%s validation=%s attempts=%d progress=%.0f%%\n",
		s.ID, s.Status(), s.ValidationStatus(), s.CorrectionAttempt(), s.Progress())
}

func printResponse(out *os.File, resp api.Response) {
	if !resp.Success {
		fmt.Fprintf(out, "error [%s]: %s\n", resp.Error.Code, resp.Error.Message)
		return
	}
	for key, value := range resp.Result {
		fmt.Fprintf(out, "%s: %v\n", key, value)
	}
}
