// Command katana-sgd factorizes a bipartite movie/user ratings graph with
// parallel stochastic gradient descent and reports the resulting RMSE.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mohankumarSriram/katana/internal/server"
	"github.com/mohankumarSriram/katana/pkg/core/bigraph"
	"github.com/mohankumarSriram/katana/pkg/core/latent"
	"github.com/mohankumarSriram/katana/pkg/persistence"
	"github.com/mohankumarSriram/katana/pkg/sgd"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	inputFile := flag.String("input", "", "Path to the ratings file (required)")
	configFile := flag.String("config", "", "Optional YAML config file")
	algo := flag.String("algo", "", "Algorithm: nodeMovie, edgeMovie, block, blockAndSliceUsers, blockAndSliceBoth, sliceMarch")
	learn := flag.String("learn", "", "Learning function: intel, purdue, bottou, inv")
	usersPerBlk := flag.Uint("usersPerBlk", 0, "Users per block slice")
	moviesPerBlk := flag.Uint("moviesPerBlk", 0, "Movies per block slice")
	verifyPerIter := flag.Bool("verifyPerIter", false, "Compute RMSE every iteration")
	threads := flag.Int("threads", 0, "Worker count (0 = GOMAXPROCS)")
	metricsAddr := flag.String("metrics-addr", "", "Address for /metrics, /healthz and /status (empty = disabled)")
	snapshotPath := flag.String("snapshot", "", "Write the trained factors to this path")
	snapshotPrecision := flag.String("snapshot-precision", "", "Snapshot precision: float64 or float16")
	flag.Parse()

	if *inputFile == "" {
		flag.Usage()
		return fmt.Errorf("missing required -input flag")
	}

	cfg := sgd.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = sgd.LoadConfig(*configFile); err != nil {
			return err
		}
	}

	// Flags override the config file.
	if *algo != "" {
		cfg.Algo = *algo
	}
	if *learn != "" {
		cfg.Learn = *learn
	}
	if *usersPerBlk != 0 {
		cfg.UsersPerBlockSlice = uint32(*usersPerBlk)
	}
	if *moviesPerBlk != 0 {
		cfg.MoviesPerBlockSlice = uint32(*moviesPerBlk)
	}
	if *verifyPerIter {
		cfg.VerifyPerIter = true
	}
	if *threads != 0 {
		cfg.Threads = *threads
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *snapshotPath != "" {
		cfg.SnapshotPath = *snapshotPath
	}
	if *snapshotPrecision != "" {
		cfg.SnapshotPrecision = *snapshotPrecision
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	g, err := bigraph.LoadFile(*inputFile)
	if err != nil {
		return err
	}
	logger.Info("input initialized",
		"movies", g.NumMovies(),
		"users", g.NumUsers(),
		"ratings", g.NumRatings())

	store := latent.NewStore(g.NumMovies(), g.NumUsers())

	trainer, err := sgd.New(g, store, cfg, logger)
	if err != nil {
		return err
	}

	progress := server.NewProgress(cfg.Algo)
	logger.Info("run registered", "run_id", progress.RunID())

	if cfg.MetricsAddr != "" {
		srv := server.New(cfg.MetricsAddr, progress, logger)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	trainer.SetEpochHook(func(epoch int, updates uint64) {
		progress.SetEpoch(epoch, updates)
	})

	progress.SetStatus(server.RunStatusTraining)
	res, err := trainer.Run()
	if err != nil {
		progress.Fail(err)
		return err
	}
	progress.Complete(res.RMSE)

	logger.Info("root mean square error after training",
		"sum", res.RMSESum, "rmse", res.RMSE)

	if cfg.SnapshotPath != "" {
		if err := writeSnapshot(cfg, store, progress.RunID(), res.RMSE); err != nil {
			return err
		}
		logger.Info("factor snapshot written", "path", cfg.SnapshotPath)
	}

	fmt.Printf("SUMMARY Movies %d Users %d Ratings %d usersPerBlockSlice %d moviesPerBlockSlice %d Time %.3f\n",
		res.Movies, res.Users, res.Ratings,
		res.UsersPerBlockSlice, res.MoviesPerBlockSlice,
		res.TrainTime.Seconds())
	return nil
}

func writeSnapshot(cfg sgd.Config, store *latent.Store, runID string, rmse float64) error {
	precision, err := persistence.ParsePrecision(cfg.SnapshotPrecision)
	if err != nil {
		return err
	}

	f, err := os.Create(cfg.SnapshotPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()

	meta := persistence.Meta{RunID: runID, Precision: precision, RMSE: rmse}
	if err := persistence.WriteSnapshot(f, store, meta); err != nil {
		return err
	}
	return f.Sync()
}
