// seg-train: Standalone trainer for the 3-D segmentation tutorial
//
// Usage:
//
//	seg-train --epochs=5 --lr=0.001 --batch=4 --patch=96
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AmeerHamza111/MONAI/advisor"
	"github.com/AmeerHamza111/MONAI/config"
	"github.com/AmeerHamza111/MONAI/data"
	"github.com/AmeerHamza111/MONAI/engine"
	"github.com/AmeerHamza111/MONAI/handlers"
	"github.com/AmeerHamza111/MONAI/losses"
	"github.com/AmeerHamza111/MONAI/metrics"
	"github.com/AmeerHamza111/MONAI/monitor"
	"github.com/AmeerHamza111/MONAI/networks"
	"github.com/AmeerHamza111/MONAI/optim"
	"github.com/AmeerHamza111/MONAI/rundb"
	"github.com/AmeerHamza111/MONAI/synthetic"
	"github.com/AmeerHamza111/MONAI/transforms"
	"github.com/AmeerHamza111/MONAI/utils"
)

var (
	configFile  = flag.String("config", "", "JSON config file (flags override it)")
	epochs      = flag.Int("epochs", 5, "Number of training epochs")
	lr          = flag.Float64("lr", 1e-3, "Learning rate")
	batch       = flag.Int("batch", 4, "Training batch size")
	patch       = flag.Int("patch", 96, "Cubic crop edge for training patches")
	channels    = flag.String("channels", "", "Comma-separated encoder channels (e.g. 16,32,64)")
	strides     = flag.String("strides", "", "Comma-separated encoder strides")
	samples     = flag.Int("samples", 50, "Synthetic pairs to generate when no data dir is given")
	valInterval = flag.Int("val-interval", 2, "Validate every N epochs")
	workers     = flag.Int("workers", 0, "Loader workers (0 = one per CPU)")
	seed        = flag.Int64("seed", 42, "Random seed")
	dataDir     = flag.String("data", "", "Directory of img*/seg* pairs (empty = generate to a temp dir)")
	outDir      = flag.String("out", "runs", "Output directory for checkpoints and plots")
	resume      = flag.String("resume", "", "Checkpoint file to resume from")
	runDBPath   = flag.String("run-db", "", "SQLite run database (empty = no persistence)")
	monitorAddr = flag.String("monitor", "", "Dashboard listen address (empty = no dashboard)")
	planOnly    = flag.Bool("plan", false, "Print the resource plan and exit")
	planBudget  = flag.Float64("plan-budget", 4096, "Memory budget in MB for the plan's patch recommendation")
	exportPath  = flag.String("export", "", "Export final weights to a JSON file")
	verbose     = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := applyFlags(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error in flags: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                 MONAI Segmentation Trainer                   ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	config.PrintConfig(os.Stdout)
	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  Epochs:        %d\n", cfg.Epochs)
	fmt.Printf("  Learning Rate: %.4f\n", cfg.LearningRate)
	fmt.Printf("  Optimizer:     %s\n", cfg.Optimizer)
	fmt.Printf("  Batch Size:    %d\n", cfg.BatchSize)
	fmt.Printf("  Patch Size:    %d\n", cfg.PatchSize)
	fmt.Printf("  Channels:      %v\n", cfg.Channels)
	fmt.Printf("  Strides:       %v\n", cfg.Strides)
	fmt.Printf("  Val Interval:  %d\n", cfg.ValInterval)
	fmt.Printf("  Seed:          %d\n", cfg.Seed)
	fmt.Println()

	netCfg := unetConfig(cfg)
	if *planOnly {
		printPlan(netCfg, cfg)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats := &utils.TimingStats{}
	totalStart := time.Now()

	// Data: either an existing directory or a generated temp set.
	root := cfg.DataDir
	if root == "" {
		tmp, err := os.MkdirTemp("", "segdata")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating temp dir: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tmp)
		fmt.Printf("Generating %d synthetic pairs in %s...\n", cfg.NumSamples, tmp)
		start := time.Now()
		genCfg := synthetic.DefaultConfig()
		genCfg.Seed = cfg.Seed
		if _, _, err := synthetic.WriteDataset(tmp, cfg.NumSamples, genCfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating data: %v\n", err)
			os.Exit(1)
		}
		stats.DataLoadingTime += time.Since(start)
		root = tmp
	}

	trainLoader, valLoader, err := buildLoaders(cfg, root, stats)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing data: %v\n", err)
		os.Exit(1)
	}

	// Model and optimizer.
	start := time.Now()
	rng := rand.New(rand.NewSource(cfg.Seed))
	net, err := networks.NewUNet(rng, netCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building network: %v\n", err)
		os.Exit(1)
	}
	stats.ModelInitTime = time.Since(start)
	fmt.Printf("Model: %d parameters\n", networks.CountParams(net))

	var opt optim.Optimizer
	if cfg.Optimizer == "sgd" {
		opt = optim.NewSGD(cfg.LearningRate, cfg.Momentum)
	} else {
		opt = optim.NewAdam(cfg.LearningRate)
	}

	trainer := engine.NewTimedTrainer(net, losses.NewDiceLoss(), opt, stats)
	evaluator := engine.NewEvaluator(net, losses.NewDiceLoss(), map[string]metrics.Metric{
		rundb.MetricKey: metrics.NewMeanDice(),
	})

	// Run persistence and dashboard.
	var db *rundb.DB
	var runID string
	var sink handlers.StatsSink
	if cfg.RunDB != "" {
		if db, err = rundb.Open(cfg.RunDB); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening run database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		if runID, err = db.CreateRun(cfg.JSON()); err != nil {
			fmt.Fprintf(os.Stderr, "Error registering run: %v\n", err)
			os.Exit(1)
		}
		sink = db.Sink(runID)
		fmt.Printf("Run ID: %s\n", runID)
	}
	if cfg.Monitor != "" {
		ws, err := monitor.NewWebServer(monitor.Config{Address: cfg.Monitor, DB: db, DataRoot: root})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
			os.Exit(1)
		}
		go ws.Start(ctx)
		fmt.Printf("Dashboard: http://%s/\n", cfg.Monitor)
	}

	// Handlers. Validation attaches first so later handlers see fresh
	// metrics on validation epochs.
	if *resume != "" {
		loader := &handlers.CheckpointLoader{Path: *resume, Net: net, Opt: opt}
		loader.Attach(trainer)
		fmt.Printf("Resuming from %s\n", *resume)
	}
	validation := handlers.NewValidationHandler(cfg.ValInterval, evaluator, valLoader)
	validation.Timing = stats
	validation.Attach(trainer)

	handlers.NewStatsHandler(log.New(os.Stdout, "", 0), cfg.LogEvery).Attach(trainer)

	best, bestEpoch := math.Inf(-1), 0
	trainer.AddEventHandler(engine.EpochCompleted, func(e *engine.Engine) error {
		if v, ok := e.State.Metrics[rundb.MetricKey]; ok && v > best {
			best, bestEpoch = v, e.State.Epoch
		}
		return nil
	})

	saver := handlers.NewCheckpointSaver(cfg.OutDir, net, opt)
	saver.KeepLast = cfg.KeepCheckpoints
	saver.BestMetric = rundb.MetricKey
	saver.Timing = stats
	saver.Attach(trainer)

	if db != nil {
		trainer.AddEventHandler(engine.EpochCompleted, func(e *engine.Engine) error {
			row := rundb.CheckpointRow{RunID: runID, Epoch: e.State.Epoch, Path: saver.Path(e.State.Epoch)}
			if v, ok := e.State.Metrics[rundb.MetricKey]; ok {
				row.Metric = sql.NullFloat64{Float64: v, Valid: true}
			}
			return db.InsertCheckpoint(row)
		})
	}

	trainRec := handlers.NewProgressRecorder("train", sink)
	trainRec.Attach(trainer)
	valRec := handlers.NewProgressRecorder("val", sink)
	valRec.EpochSource = trainer
	valRec.Attach(evaluator)

	handlers.NewCurvePlotter(filepath.Join(cfg.OutDir, "progress.svg"), rundb.MetricKey, trainRec, valRec).Attach(trainer)

	if cfg.Patience > 0 {
		handlers.NewEarlyStopper(trainer, rundb.MetricKey, cfg.Patience).Attach(evaluator)
	}

	fmt.Println("\nStarting training...")
	runErr := trainer.Run(ctx, trainLoader, cfg.Epochs)
	stats.TotalTime = time.Since(totalStart)

	if db != nil {
		status := rundb.StatusCompleted
		switch {
		case runErr != nil && errors.Is(runErr, context.Canceled):
			status = rundb.StatusStopped
		case runErr != nil:
			status = rundb.StatusFailed
		case trainer.State.Epoch < cfg.Epochs:
			status = rundb.StatusStopped
		}
		if bestEpoch == 0 {
			best = 0
		}
		if err := db.FinishRun(runID, status, best, bestEpoch); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing run record: %v\n", err)
		}
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Training failed: %v\n", runErr)
		os.Exit(1)
	}

	fmt.Printf("\nTraining complete! Total time: %.2fs\n", stats.TotalTime.Seconds())
	if bestEpoch > 0 {
		fmt.Printf("Best %s: %.4f at epoch %d\n", rundb.MetricKey, best, bestEpoch)
	}
	if *verbose && trainer.State.Iteration > 0 {
		utils.PrintTimingStats(stats, trainer.State.Iteration)
	}

	if *exportPath != "" {
		fmt.Printf("\nSaving weights to %s...\n", *exportPath)
		if err := utils.SaveWeights(*exportPath, utils.ExportWeights(net)); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Done!")
	}
}

// applyFlags copies every flag the user set on the command line over
// the loaded configuration.
func applyFlags(cfg *config.TrainConfig) error {
	var err error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "epochs":
			cfg.Epochs = *epochs
		case "lr":
			cfg.LearningRate = *lr
		case "batch":
			cfg.BatchSize = *batch
		case "patch":
			cfg.PatchSize = *patch
		case "channels":
			if cfg.Channels, err = parseIntList(*channels); err != nil {
				err = fmt.Errorf("channels: %w", err)
			}
		case "strides":
			if cfg.Strides, err = parseIntList(*strides); err != nil {
				err = fmt.Errorf("strides: %w", err)
			}
		case "samples":
			cfg.NumSamples = *samples
		case "val-interval":
			cfg.ValInterval = *valInterval
		case "workers":
			cfg.Workers = *workers
		case "seed":
			cfg.Seed = *seed
		case "data":
			cfg.DataDir = *dataDir
		case "out":
			cfg.OutDir = *outDir
		case "run-db":
			cfg.RunDB = *runDBPath
		case "monitor":
			cfg.Monitor = *monitorAddr
		}
	})
	return err
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad list entry %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func unetConfig(cfg config.TrainConfig) networks.UNetConfig {
	return networks.UNetConfig{
		InChannels:  1,
		OutChannels: 1,
		Channels:    cfg.Channels,
		Strides:     cfg.Strides,
		NumResUnits: cfg.ResUnits,
	}
}

func printPlan(netCfg networks.UNetConfig, cfg config.TrainConfig) {
	plan, err := advisor.Analyze(netCfg, cfg.PatchSize, cfg.BatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building plan: %v\n", err)
		os.Exit(1)
	}
	plan.Print(os.Stdout)

	rate := advisor.MeasureGEMMRate()
	fmt.Println("----- Throughput Estimate -----")
	fmt.Printf("Measured GEMM rate: %.1f GFLOP/s\n", rate)
	fmt.Printf("Estimated step time: %v\n", plan.EstimateStep(rate))
	fmt.Printf("Estimated epoch time: %v\n",
		time.Duration(cfg.TrainCount/cfg.BatchSize)*plan.EstimateStep(rate))

	if rec, err := advisor.RecommendPatch(netCfg, cfg.BatchSize, *planBudget, 2*cfg.PatchSize); err == nil {
		fmt.Printf("Recommended patch size for %.0f MB budget: %d\n", *planBudget, rec)
	} else {
		fmt.Printf("No patch size fits %.0f MB: %v\n", *planBudget, err)
	}
}

// buildLoaders prepares the training and validation pipelines: random
// patch crops and flips for training, scaled whole volumes for
// validation.
func buildLoaders(cfg config.TrainConfig, root string, stats *utils.TimingStats) (*data.Loader, *data.Loader, error) {
	start := time.Now()
	defer func() { stats.DataLoadingTime += time.Since(start) }()

	pairs, err := data.PairsFromDir(root)
	if err != nil {
		return nil, nil, err
	}
	trainPairs, valPairs, err := data.SplitTrainVal(pairs, cfg.TrainCount, cfg.ValCount)
	if err != nil {
		return nil, nil, err
	}

	head := transforms.Compose{
		transforms.LoadPair{},
		transforms.ScaleIntensity{},
		transforms.EnsureChannel{},
	}
	crop := [3]int{cfg.PatchSize, cfg.PatchSize, cfg.PatchSize}
	random := transforms.Compose{
		transforms.RandSpatialCrop{Size: crop},
		transforms.RandFlip{Axis: 0, Prob: 0.5},
	}

	trainDS, err := data.NewCacheDataset(trainPairs, head, random, cfg.Workers)
	if err != nil {
		return nil, nil, fmt.Errorf("train dataset: %w", err)
	}
	valDS, err := data.NewCacheDataset(valPairs, head, nil, cfg.Workers)
	if err != nil {
		return nil, nil, fmt.Errorf("val dataset: %w", err)
	}

	trainLoader, err := data.NewLoader(trainDS, data.LoaderConfig{
		BatchSize: cfg.BatchSize,
		Shuffle:   true,
		DropLast:  true,
		Workers:   cfg.Workers,
		Seed:      cfg.Seed,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("train loader: %w", err)
	}
	valLoader, err := data.NewLoader(valDS, data.LoaderConfig{
		BatchSize: cfg.ValBatchSize,
		Workers:   cfg.Workers,
		Seed:      cfg.Seed,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("val loader: %w", err)
	}
	return trainLoader, valLoader, nil
}
