package sgd

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/mohankumarSriram/katana/pkg/core/bigraph"
	"github.com/mohankumarSriram/katana/pkg/core/latent"
	"github.com/mohankumarSriram/katana/pkg/core/schedule"
	"github.com/mohankumarSriram/katana/pkg/metrics"
)

// Trainer drives a full factorization run: planning, cursor alignment, the
// epoch/rotation loop of the selected executor, and final verification.
type Trainer struct {
	g     *bigraph.Graph
	store *latent.Store

	cfg     Config
	algo    Algo
	sched   schedule.Schedule
	workers int

	logger *slog.Logger
	rng    *rand.Rand

	// rectangleHook, when set, observes every (worker, userRangeStart,
	// userRangeEnd) rectangle entry of the blocked driver. Test seam.
	rectangleHook func(worker int, userRangeStart, userRangeEnd uint32)

	// epochHook, when set, observes the start of every driver epoch together
	// with the cumulative update count so far. The sliceMarch driver does not
	// call it.
	epochHook func(epoch int, updates uint64)
}

// SetEpochHook registers a callback invoked at the top of every epoch of the
// blocked and baseline drivers, e.g. to feed a progress endpoint. The
// sliceMarch driver runs its epochs inside the workers and never invokes it.
// Must be set before Run.
func (t *Trainer) SetEpochHook(fn func(epoch int, updates uint64)) {
	t.epochHook = fn
}

// Result summarizes a finished training run.
type Result struct {
	Algo     Algo
	Schedule schedule.Schedule

	Movies  int
	Users   int
	Ratings int

	UsersPerBlockSlice  uint32
	MoviesPerBlockSlice uint32

	// RMSESum is the raw squared-error sum; RMSE is sqrt(RMSESum/Ratings).
	RMSESum float64
	RMSE    float64

	// EpochRMSE holds the per-epoch measurements taken at the top of each
	// epoch when VerifyPerIter is set, followed by the final RMSE.
	EpochRMSE []float64

	// Updates and Conflicts aggregate the per-worker diagnostics.
	Updates   uint64
	Conflicts uint64

	TrainTime time.Duration
}

// New validates the configuration and builds a trainer over a loaded graph
// and an initialized latent store.
func New(g *bigraph.Graph, store *latent.Store, cfg Config, logger *slog.Logger) (*Trainer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	algo, err := ParseAlgo(cfg.Algo)
	if err != nil {
		return nil, err
	}
	sched, err := schedule.Parse(cfg.Learn)
	if err != nil {
		return nil, err
	}
	if cfg.UsersPerBlockSlice == 0 || cfg.MoviesPerBlockSlice == 0 {
		return nil, fmt.Errorf("sgd: slice widths must be positive")
	}

	return &Trainer{
		g:       g,
		store:   store,
		cfg:     cfg,
		algo:    algo,
		sched:   sched,
		workers: cfg.workers(),
		logger:  logger,
		rng:     rand.New(rand.NewSource(latent.Seed)),
	}, nil
}

// Run trains to completion and returns the run summary, including the RMSE
// measured after the last epoch. The latent store is mutated in place.
func (t *Trainer) Run() (Result, error) {
	res := Result{
		Algo:                t.algo,
		Schedule:            t.sched,
		Movies:              t.g.NumMovies(),
		Users:               t.g.NumUsers(),
		Ratings:             t.g.NumRatings(),
		UsersPerBlockSlice:  t.cfg.UsersPerBlockSlice,
		MoviesPerBlockSlice: t.cfg.MoviesPerBlockSlice,
	}
	metrics.RatingsTotal.Set(float64(t.g.NumRatings()))

	t.logger.Info("training started",
		"algo", t.algo.String(),
		"learn", t.sched.String(),
		"movies", res.Movies,
		"users", res.Users,
		"ratings", res.Ratings,
		"workers", t.workers)

	start := time.Now()
	switch t.algo {
	case NodeMovie, EdgeMovie:
		t.runSimple(&res)
	case Block, BlockAndSliceUsers, BlockAndSliceBoth:
		t.runBlockSlices(&res)
	case SliceMarch:
		t.runSliceMarch(&res)
	}
	res.TrainTime = time.Since(start)

	res.RMSESum, res.RMSE = t.Verify()
	res.EpochRMSE = append(res.EpochRMSE, res.RMSE)

	t.logger.Info("training finished",
		"rmse", res.RMSE,
		"updates", res.Updates,
		"elapsed", res.TrainTime)
	return res, nil
}

// verifyEpoch runs the optional per-epoch verification pass.
func (t *Trainer) verifyEpoch(res *Result, round int) {
	if !t.cfg.VerifyPerIter {
		return
	}
	stepSize := t.sched.StepSize(round)
	_, rmse := t.Verify()
	res.EpochRMSE = append(res.EpochRMSE, rmse)
	t.logger.Info("epoch verify", "epoch", round, "step_size", stepSize, "rmse", rmse)
}

// runSimple is the driver for the nodeMovie and edgeMovie baselines: ten
// epochs over the movie list, shuffled between epochs except before the
// first.
func (t *Trainer) runSimple(res *Result) {
	movies := t.moviesWithEdges()

	for i := 0; i < simpleEpochs; i++ {
		if t.epochHook != nil {
			t.epochHook(i, res.Updates)
		}
		t.verifyEpoch(res, i)

		stepSize := t.sched.StepSize(i)
		t.logger.Info("epoch", "n", i, "step_size", stepSize)
		if i != 0 {
			t.rng.Shuffle(len(movies), func(a, b int) {
				movies[a], movies[b] = movies[b], movies[a]
			})
		}

		epochStart := time.Now()
		var updates uint64
		if t.algo == NodeMovie {
			updates = t.runNodeMovieEpoch(movies, stepSize)
		} else {
			updates = t.runEdgeMovieEpoch(movies, stepSize)
		}
		res.Updates += updates
		metrics.UpdatesTotal.WithLabelValues("all").Add(float64(updates))
		metrics.EpochDuration.Observe(time.Since(epochStart).Seconds())
	}
}

// runBlockSlices is the fork-join driver shared by the three blocked
// executors: MaxMovieUpdates epochs, each of numWorkers rotation steps.
// After every step each worker's user range moves one block to the right
// through the rotation tables, so over one epoch every worker visits every
// user range exactly once.
func (t *Trainer) runBlockSlices(res *Result) {
	plan := planWork(t.workers, t.g.NumMovies(), t.g.NumUsers(),
		t.cfg.UsersPerBlockSlice, t.cfg.MoviesPerBlockSlice)

	doAll(plan.items, t.advanceEdgeCursors)

	var blockFn func(*workItem, float64)
	switch t.algo {
	case Block:
		blockFn = t.runBlock
	case BlockAndSliceUsers:
		blockFn = t.runBlockUsers
	default:
		blockFn = t.runBlockBoth
	}

	numWorkers := t.workers
	rotationTimes := make([][]time.Duration, numWorkers)
	for i := range rotationTimes {
		rotationTimes[i] = make([]time.Duration, numWorkers)
	}

	for update := 0; update < MaxMovieUpdates; update++ {
		if t.epochHook != nil {
			t.epochHook(update, res.Updates)
		}
		t.verifyEpoch(res, update)

		stepSize := t.sched.StepSize(update)
		epochStart := time.Now()

		for j := 0; j < numWorkers; j++ {
			doAll(plan.items, func(wi *workItem) {
				if t.rectangleHook != nil {
					t.rectangleHook(wi.id, wi.userRangeStart, wi.userRangeEnd)
				}
				blockFn(wi, stepSize)
			})

			// Move each worker's assignment one block to the right: for the
			// same movie rows, the next range of user columns.
			for k := range plan.items {
				wi := &plan.items[k]
				column := (j + k) % numWorkers
				rotationTimes[k][column] = wi.timeTaken

				res.Updates += wi.updates
				metrics.UpdatesTotal.WithLabelValues(strconv.Itoa(wi.id)).Add(float64(wi.updates))

				nextColumn := (j + 1 + k) % numWorkers
				wi.userRangeStart = plan.userRangeStartPoints[nextColumn]
				wi.userRangeEnd = plan.userRangeEndPoints[nextColumn]
			}
		}

		metrics.EpochDuration.Observe(time.Since(epochStart).Seconds())
	}

	for k := range rotationTimes {
		t.logger.Debug("rotation times", "worker", k, "times", rotationTimes[k])
	}
}

// runSliceMarch launches every worker once; the march executor iterates its
// own epochs internally. The step size is fixed at round 1 of the schedule
// for the whole march; this variant does not iterate the schedule across its
// internal epochs.
func (t *Trainer) runSliceMarch(res *Result) {
	plan := planWork(t.workers, t.g.NumMovies(), t.g.NumUsers(),
		t.cfg.UsersPerBlockSlice, t.cfg.MoviesPerBlockSlice)

	numSlices := uint32((t.g.NumUsers() + int(t.cfg.UsersPerBlockSlice) - 1) / int(t.cfg.UsersPerBlockSlice))
	if numSlices == 0 {
		numSlices = 1
	}
	locks := newLockTable(int(numSlices))
	slicesPerThread := numSlices / uint32(t.workers)
	t.logger.Info("march plan", "slices", numSlices, "slices_per_worker", slicesPerThread)

	for i := range plan.items {
		wi := &plan.items[i]
		// Every worker marches over the full user ring; only the starting
		// position differs. The first user is the start of the starting
		// slice, so the slice lock always guards the users being processed.
		wi.userRangeEnd = uint32(t.g.NumUsers())
		wi.sliceStart = slicesPerThread * uint32(i)
		wi.userRangeStart = wi.sliceStart * t.cfg.UsersPerBlockSlice
		wi.numSlices = numSlices
	}

	stepSize := t.sched.StepSize(1)

	doAll(plan.items, t.advanceEdgeCursors)
	doAll(plan.items, func(wi *workItem) {
		t.runMarch(wi, locks, stepSize)
	})

	for i := range plan.items {
		wi := &plan.items[i]
		res.Updates += wi.updates
		res.Conflicts += wi.conflicts
		worker := strconv.Itoa(wi.id)
		metrics.UpdatesTotal.WithLabelValues(worker).Add(float64(wi.updates))
		metrics.LockConflictsTotal.WithLabelValues(worker).Add(float64(wi.conflicts))
	}
}
