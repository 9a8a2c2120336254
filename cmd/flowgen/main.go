package main

import (
	"FlowForge/internal/config"
	"FlowForge/internal/orchestrator"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const version = "0.1.0"

// Exit codes: 0 clean, 1 I/O or runtime failure, 2 configuration error.
const (
	exitOK     = 0
	exitRunErr = 1
	exitCfgErr = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = flag.String("c", "", "Path to YAML config file (optional)")
		showVersion  = flag.Bool("V", false, "Display the version and exit")
		duration     int
		fps          int
		samplingRate int
		outputDir    string
		topN         int
		reportsOnly  bool
		noReports    bool
		peering      bool
		autoExit     bool
		seed         int64
	)
	intFlag(&duration, "t", "time", 600, "Run duration in seconds")
	intFlag(&fps, "f", "fps", 200000, "Target flow rate to simulate")
	intFlag(&samplingRate, "s", "sampling_rate", 1000, "The n:1 device flow sampling to emulate")
	stringFlag(&outputDir, "o", "output_dir", ".", "Directory for output artifacts")
	boolFlag(&reportsOnly, "ro", "reports_only", false, "Suppress flow record output, write reports only")
	boolFlag(&noReports, "nr", "no_reports", false, "Suppress report output")
	boolFlag(&peering, "pr", "peering_report", true, "Generate the peering summary report")
	boolFlag(&autoExit, "x", "exit", false, "Exit automatically when the run completes")
	flag.IntVar(&topN, "topN", 10, "Length of the top-N lists")
	flag.Int64Var(&seed, "seed", 0, "Random seed (0 picks one from the clock)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return exitOK
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Printf("Failed to load config: %v", err)
			return exitCfgErr
		}
		cfg = loaded
	}

	// Flags given on the command line override the config file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["t"] || set["time"] {
		cfg.Run.DurationSeconds = duration
	}
	if set["f"] || set["fps"] {
		cfg.Run.TargetFPS = fps
	}
	if set["s"] || set["sampling_rate"] {
		cfg.Run.SamplingRate = samplingRate
	}
	if set["o"] || set["output_dir"] {
		cfg.Output.Dir = outputDir
	}
	if set["ro"] || set["reports_only"] {
		cfg.Run.ReportsOnly = reportsOnly
	}
	if set["nr"] || set["no_reports"] {
		cfg.Run.NoReports = noReports
	}
	if set["pr"] || set["peering_report"] {
		cfg.Run.PeeringReport = peering
	}
	if set["x"] || set["exit"] {
		cfg.Run.AutoExit = autoExit
	}
	if set["topN"] {
		cfg.Run.TopN = topN
	}
	if set["seed"] {
		cfg.Run.Seed = seed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(cfg)

	go func() {
		for ev := range orch.Events() {
			log.Printf("[%s] elapsed %s: %d flows generated, %d sampled",
				ev.State, ev.Elapsed.Round(time.Second), ev.FlowsGenerated, ev.FlowsSampled)
		}
	}()

	start := time.Now()
	if err := orch.Run(ctx); err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			log.Printf("Configuration error: %v", err)
			return exitCfgErr
		}
		log.Printf("Run aborted: %v", err)
		return exitRunErr
	}

	progress := orch.Progress()
	fmt.Println("Done!")
	fmt.Printf("Total raw flows made: %d\n", progress.FlowsGenerated)
	fmt.Printf("Total device sampled flows made: %d\n", progress.FlowsSampled)
	fmt.Printf("Time taken: %s\n", time.Since(start).Round(time.Second))

	if !cfg.Run.AutoExit && ctx.Err() == nil {
		log.Println("Run complete, press Ctrl-C to exit (use -x to exit automatically).")
		<-ctx.Done()
	}
	return exitOK
}

// Each CLI option registers under a short and a long name, argparse style.
func intFlag(p *int, short, long string, value int, usage string) {
	flag.IntVar(p, short, value, usage)
	flag.IntVar(p, long, value, usage)
}

func stringFlag(p *string, short, long string, value, usage string) {
	flag.StringVar(p, short, value, usage)
	flag.StringVar(p, long, value, usage)
}

func boolFlag(p *bool, short, long string, value bool, usage string) {
	flag.BoolVar(p, short, value, usage)
	flag.BoolVar(p, long, value, usage)
}
