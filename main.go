package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/AmeerHamza111/MONAI/data"
	"github.com/AmeerHamza111/MONAI/engine"
	"github.com/AmeerHamza111/MONAI/handlers"
	"github.com/AmeerHamza111/MONAI/losses"
	"github.com/AmeerHamza111/MONAI/metrics"
	"github.com/AmeerHamza111/MONAI/networks"
	"github.com/AmeerHamza111/MONAI/optim"
	"github.com/AmeerHamza111/MONAI/synthetic"
	"github.com/AmeerHamza111/MONAI/transforms"
	"github.com/AmeerHamza111/MONAI/utils"
)

var flagShort = flag.Bool("short", false, "run the tutorial with a smaller dataset and network.")

func main() {
	flag.Parse()

	numSamples := 50
	trainCount, valCount := 20, 20
	epochs, valEvery := 5, 2
	patch := 96
	batch, valBatch := 4, 2

	gen := synthetic.DefaultConfig()
	if *flagShort {
		numSamples = 12
		trainCount, valCount = 8, 4
		epochs = 2
		patch = 16
		batch = 2
		gen.Size = 32
		gen.NumObjects = 6
		gen.RadMin, gen.RadMax = 2, 6
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// ============================
	// === 1) SYNTHETIC DATASET ===
	// ============================
	root, err := os.MkdirTemp("", "segdata")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(root)

	fmt.Printf("Generating %d pairs of %d^3 volumes in %s...\n", numSamples, gen.Size, root)
	images, segs, err := synthetic.WriteDataset(root, numSamples, gen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating dataset: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d images and %d masks\n", len(images), len(segs))

	// ===========================
	// === 2) TRANSFORM CHAINS ===
	// ===========================
	pairs, err := data.PairsFromDir(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing pairs: %v\n", err)
		os.Exit(1)
	}
	trainPairs, valPairs, err := data.SplitTrainVal(pairs, trainCount, valCount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error splitting dataset: %v\n", err)
		os.Exit(1)
	}

	head := transforms.Compose{
		transforms.LoadPair{},
		transforms.ScaleIntensity{},
		transforms.EnsureChannel{},
	}
	random := transforms.Compose{
		transforms.RandSpatialCrop{Size: [3]int{patch, patch, patch}},
		transforms.RandFlip{Axis: 0, Prob: 0.5},
	}

	trainDS, err := data.NewCacheDataset(trainPairs, head, random, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building train dataset: %v\n", err)
		os.Exit(1)
	}
	valDS, err := data.NewCacheDataset(valPairs, head, nil, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building val dataset: %v\n", err)
		os.Exit(1)
	}
	trainLoader, err := data.NewLoader(trainDS, data.LoaderConfig{
		BatchSize: batch,
		Shuffle:   true,
		DropLast:  true,
		Seed:      42,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building train loader: %v\n", err)
		os.Exit(1)
	}
	valLoader, err := data.NewLoader(valDS, data.LoaderConfig{
		BatchSize: valBatch,
		Seed:      42,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building val loader: %v\n", err)
		os.Exit(1)
	}

	// ==========================
	// === 3) MODEL AND OPTIM ===
	// ==========================
	rng := rand.New(rand.NewSource(42))
	var net *networks.UNet
	if *flagShort {
		net, err = networks.TinySegmentation(rng)
	} else {
		net, err = networks.DefaultSegmentation(rng)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building network: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Model: %d parameters\n", networks.CountParams(net))

	opt := optim.NewAdam(1e-3)
	trainer := engine.NewTrainer(net, losses.NewDiceLoss(), opt)
	evaluator := engine.NewEvaluator(net, losses.NewDiceLoss(), map[string]metrics.Metric{
		"Mean_Dice": metrics.NewMeanDice(),
	})

	// ===================
	// === 4) HANDLERS ===
	// ===================
	handlers.NewValidationHandler(valEvery, evaluator, valLoader).Attach(trainer)
	handlers.NewStatsHandler(log.New(os.Stdout, "", 0), 10).Attach(trainer)

	best, bestEpoch := math.Inf(-1), 0
	trainer.AddEventHandler(engine.EpochCompleted, func(e *engine.Engine) error {
		if e.State.Epoch%valEvery != 0 {
			return nil
		}
		dice, ok := e.State.Metrics["Mean_Dice"]
		if !ok {
			return nil
		}
		if dice > best {
			best, bestEpoch = dice, e.State.Epoch
			fmt.Println("Saved new best metric model")
		}
		fmt.Printf("Current epoch: %d current mean dice: %.4f best mean dice: %.4f at epoch %d\n",
			e.State.Epoch, dice, best, bestEpoch)
		return nil
	})

	saver := handlers.NewCheckpointSaver("runs", net, opt)
	saver.BestMetric = "Mean_Dice"
	saver.Attach(trainer)

	// ================
	// === 5) TRAIN ===
	// ================
	fmt.Println("Starting training...")
	start := time.Now()
	if err := trainer.Run(ctx, trainLoader, epochs); err != nil {
		fmt.Fprintf(os.Stderr, "Training failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Training complete! Total time: %.2fs\n", time.Since(start).Seconds())
	if bestEpoch > 0 {
		fmt.Printf("Best Mean_Dice: %.4f at epoch %d\n", best, bestEpoch)
	}

	// ===========================
	// === 6) FINAL EVALUATION ===
	// ===========================
	if err := evaluator.RunOnce(ctx, valLoader); err != nil {
		fmt.Fprintf(os.Stderr, "Evaluation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Final Mean_Dice over %d validation volumes: %.4f\n",
		valPairs.Len(), evaluator.State.Metrics["Mean_Dice"])

	if err := utils.SaveWeights("runs/final_weights.json", utils.ExportWeights(net)); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving weights: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Saved final weights to runs/final_weights.json")
}
