package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Poller/internal/config"
	"github.com/shaiso/Poller/internal/domain"
	"github.com/shaiso/Poller/internal/sim"
	"github.com/shaiso/Poller/internal/telemetry"
)

// simOptions — флаги команды sim.
type simOptions struct {
	configFile  string
	duration    time.Duration
	events      int
	maxTasks    int
	assets      int
	completion  float64
	joinTimeout time.Duration
	adaptive    bool
	verbose     bool
}

// NewSimCmd создаёт команду симуляции poller'а в процессе CLI.
func NewSimCmd(outputFn func() *Output) *cobra.Command {
	var opts simOptions

	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run the poller against generated events",
		Long: `Runs the full poller pipeline in-process against generated events
and simulated rule calls, then prints the verdict summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			if opts.verbose {
				logger = telemetry.SetupLogger()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := sim.Run(ctx, sim.Options{
				Config:   cfg,
				Duration: opts.duration,
				Events:   opts.events,
				Logger:   logger,
			})
			if err != nil && res.Ticks == 0 {
				return err
			}
			if err != nil {
				out.Error(err.Error())
			}

			printSimResult(out, res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "YAML config file")
	f.DurationVar(&opts.duration, "duration", 12*time.Second, "How long the poller runs")
	f.IntVar(&opts.events, "events", 0, "Total events to generate (0 = unlimited)")
	f.IntVar(&opts.maxTasks, "max-tasks", 0, "Max concurrent tasks (overrides config)")
	f.IntVar(&opts.assets, "assets", 0, "Assets per event (overrides config)")
	f.Float64Var(&opts.completion, "completion", -1, "Completion task probability (overrides config)")
	f.DurationVar(&opts.joinTimeout, "join-timeout", 0, "Per-event join deadline (overrides config)")
	f.BoolVar(&opts.adaptive, "adaptive", false, "Size batches by observed fan-out")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log every tick and event")

	return cmd
}

// config собирает конфигурацию: defaults, файл, окружение, флаги.
func (o *simOptions) config(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if o.configFile != "" {
		if err := cfg.LoadFile(o.configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	cfg.EventSource = config.SourceSim
	if o.maxTasks > 0 {
		cfg.MaxConcurrentTasks = o.maxTasks
	}
	if o.assets > 0 {
		cfg.SimAssets = o.assets
	}
	if o.completion >= 0 {
		cfg.CompletionProbability = o.completion
	}
	if o.joinTimeout > 0 {
		cfg.JoinTimeout = o.joinTimeout
	}
	if cmd.Flags().Changed("adaptive") {
		cfg.AdaptiveFanout = o.adaptive
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// printSimResult выводит итог симуляции.
func printSimResult(out *Output, res sim.Result) {
	if out.IsJSON() {
		out.JSON(res)
		return
	}

	out.Heading("SIMULATION")
	out.Table(
		[]string{"TICKS", "EVENTS", "REPORTED", "ELAPSED"},
		[][]string{{
			strconv.FormatInt(res.Ticks, 10),
			strconv.Itoa(res.Produced),
			strconv.Itoa(res.Summary.Events),
			res.Elapsed.Round(time.Millisecond).String(),
		}},
	)

	summary := SummaryResponse{
		Events:   res.Summary.Events,
		Verdicts: make(map[string]int, len(res.Summary.Verdicts)),
		Results:  make(map[string]int, len(res.Summary.Results)),
	}
	for v, n := range res.Summary.Verdicts {
		summary.Verdicts[string(v)] = n
	}
	for r, n := range res.Summary.Results {
		summary.Results[string(r)] = n
	}
	printSummary(out, summary)

	if len(res.Recent) > 0 {
		out.Heading("RECENT EVENTS")
		rows := make([][]string, len(res.Recent))
		for i, r := range res.Recent {
			c := r.Counts()
			rows[i] = []string{
				r.EventID,
				out.Verdict(string(r.Verdict)),
				strconv.Itoa(r.Submitted),
				strconv.Itoa(c[domain.ResultSuccess]),
				strconv.Itoa(c[domain.ResultRetryable]),
				strconv.Itoa(c[domain.ResultNonRetryable]),
				r.Duration().Round(time.Millisecond).String(),
			}
		}
		out.Table([]string{"EVENT_ID", "VERDICT", "SUBMITTED", "SUCCESS", "RETRYABLE", "NON_RETRYABLE", "DURATION"}, rows)
	}
}
