package forest

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"optibooking/pkg/errors"
)

// Config controls ensemble training
type Config struct {
	Trees       int
	MaxDepth    int
	MinLeafSize int
	// MaxFeatures is the number of features tried per split; 0 means ceil(p/3)
	MaxFeatures int
	// Workers bounds concurrent tree builds; 0 means GOMAXPROCS
	Workers int
	Seed    int64
}

// DefaultConfig mirrors the defaults exposed through configuration
func DefaultConfig() Config {
	return Config{Trees: 100, MaxDepth: 12, MinLeafSize: 2, Seed: 42}
}

// Forest is a bagged ensemble of regression trees
type Forest struct {
	Features int    `json:"features"`
	Trees    []Tree `json:"trees"`
}

// Stats summarises a training run
type Stats struct {
	Samples int
	Trees   int
	// OOBRMSE is the root mean squared error on out-of-bag rows, 0 if no row was ever out of bag
	OOBRMSE float64
	// OOBRows is the number of rows that had at least one out-of-bag tree
	OOBRows int
}

// Train fits a forest on x (rows of equal width) and targets y. Trees are
// built concurrently; each owns its bootstrap sample and its RNG seeded with
// Seed+index, so the result does not depend on scheduling.
func Train(ctx context.Context, x [][]float64, y []float64, cfg Config) (*Forest, Stats, error) {
	if len(x) == 0 {
		return nil, Stats{}, errors.Wrap(errors.ErrInvalidInput, "no training rows")
	}
	if len(x) != len(y) {
		return nil, Stats{}, errors.Wrapf(errors.ErrInvalidInput, "%d rows but %d targets", len(x), len(y))
	}
	width := len(x[0])
	if width == 0 {
		return nil, Stats{}, errors.Wrap(errors.ErrInvalidInput, "rows have no features")
	}
	for i, row := range x {
		if len(row) != width {
			return nil, Stats{}, errors.Wrapf(errors.ErrInvalidInput, "row %d has %d features, want %d", i, len(row), width)
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, Stats{}, errors.Wrapf(errors.ErrInvalidInput, "row %d has a non-finite target", i)
		}
	}

	cfg = normalize(cfg, width)

	trees := make([]Tree, cfg.Trees)
	inBag := make([][]bool, cfg.Trees)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for t := 0; t < cfg.Trees; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(cfg.Seed + int64(t)))

			rows := make([]int, len(x))
			bag := make([]bool, len(x))
			for i := range rows {
				r := rng.Intn(len(x))
				rows[i] = r
				bag[r] = true
			}

			b := &treeBuilder{
				x:           x,
				y:           y,
				maxDepth:    cfg.MaxDepth,
				minLeaf:     cfg.MinLeafSize,
				maxFeatures: cfg.MaxFeatures,
				rng:         rng,
			}
			trees[t] = b.build(rows)
			inBag[t] = bag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, errors.Wrap(err, "build trees")
	}

	f := &Forest{Features: width, Trees: trees}
	stats := Stats{Samples: len(x), Trees: len(trees)}
	stats.OOBRMSE, stats.OOBRows = f.outOfBagRMSE(x, y, inBag)
	return f, stats, nil
}

// Predict returns the mean prediction over all trees
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(f.Trees) == 0 {
		return 0, errors.Wrap(errors.ErrInvalidInput, "forest has no trees")
	}
	if len(x) != f.Features {
		return 0, errors.Wrapf(errors.ErrInvalidInput, "got %d features, want %d", len(x), f.Features)
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

// Validate checks structural integrity after deserialisation
func (f *Forest) Validate() error {
	if f.Features <= 0 || len(f.Trees) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "empty forest")
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return errors.Wrapf(errors.ErrInvalidInput, "tree %d has no nodes", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature == leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= f.Features ||
				n.Left <= ni || n.Left >= len(t.Nodes) ||
				n.Right <= ni || n.Right >= len(t.Nodes) {
				return errors.Wrapf(errors.ErrInvalidInput, "tree %d node %d is malformed", ti, ni)
			}
		}
	}
	return nil
}

func (f *Forest) outOfBagRMSE(x [][]float64, y []float64, inBag [][]bool) (float64, int) {
	var sq float64
	var rows int
	for i := range x {
		var sum float64
		var n int
		for t := range f.Trees {
			if inBag[t][i] {
				continue
			}
			sum += f.Trees[t].Predict(x[i])
			n++
		}
		if n == 0 {
			continue
		}
		d := sum/float64(n) - y[i]
		sq += d * d
		rows++
	}
	if rows == 0 {
		return 0, 0
	}
	return math.Sqrt(sq / float64(rows)), rows
}

func normalize(cfg Config, width int) Config {
	if cfg.Trees <= 0 {
		cfg.Trees = 1
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	if cfg.MinLeafSize <= 0 {
		cfg.MinLeafSize = 1
	}
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = (width + 2) / 3
	}
	if cfg.MaxFeatures > width {
		cfg.MaxFeatures = width
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return cfg
}
