package latent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// A Lens discovers regions on an initialized evaluator's limit surface.
// Faces in excluded never seed nor join a discovered region. Lenses poll
// ctx and return its error when cancelled; per-face numerical failures are
// skipped and counted instead of aborting the run.
type Lens interface {
	Name() string
	DiscoverRegions(ctx context.Context, ev *Evaluator, excluded map[int]bool) (*DiscoveryResult, error)
}

// DiscoveryResult is one lens run: a self-consistent region set in which
// each face belongs to at most one region, plus the number of faces
// skipped for numerical reasons.
type DiscoveryResult struct {
	Lens         string
	Regions      []*Region
	SkippedFaces int
}

var (
	lensMu   sync.RWMutex
	lensNews = make(map[string]func(*zap.Logger) Lens)
)

// RegisterLens adds a constructor to the lens registry under name. It
// panics on a duplicate name.
func RegisterLens(name string, constr func(*zap.Logger) Lens) {
	lensMu.Lock()
	defer lensMu.Unlock()
	if _, dup := lensNews[name]; dup {
		panic(fmt.Sprintf("latent: lens %q registered twice", name))
	}
	lensNews[name] = constr
}

// NewLens instantiates a registered lens with default parameters.
func NewLens(name string, log *zap.Logger) (Lens, bool) {
	lensMu.RLock()
	defer lensMu.RUnlock()
	constr, ok := lensNews[name]
	if !ok {
		return nil, false
	}
	return constr(log), true
}

// LensNames lists the registered identifiers, sorted.
func LensNames() []string {
	lensMu.RLock()
	defer lensMu.RUnlock()
	names := make([]string, 0, len(lensNews))
	for name := range lensNews {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterLens("differential", func(log *zap.Logger) Lens {
		return NewDifferentialLens(DefaultDifferentialParams(), log)
	})
	RegisterLens("spectral", func(log *zap.Logger) Lens {
		return NewSpectralLens(DefaultSpectralParams(), log)
	})
}

// Discovery serializes lens runs for one evaluator: starting a run cancels
// the previous one, since only the latest result is meaningful to the
// user. The zero value is ready to use.
type Discovery struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	gen    int
}

// Run executes the lens, cancelling any run still in flight. It blocks
// until the lens returns; concurrent callers race only through
// cancellation, never through shared results.
func (d *Discovery) Run(ctx context.Context, lens Lens, ev *Evaluator, excluded map[int]bool) (*DiscoveryResult, error) {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	res, err := lens.DiscoverRegions(ctx, ev, excluded)

	d.mu.Lock()
	if d.gen == gen {
		d.cancel = nil
	}
	d.mu.Unlock()
	cancel()
	return res, err
}

// Cancel stops the run in flight, if any.
func (d *Discovery) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func logOrNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
