package l3grid

import (
	"math"

	"github.com/banshee-data/ecoship/internal/nav"
	"gonum.org/v1/gonum/stat"
)

// DefaultBaselineBinDeg is the angular width of one baseline bin.
const DefaultBaselineBinDeg = 1.0

func binCount(binDeg float64) int {
	if binDeg <= 0 {
		binDeg = DefaultBaselineBinDeg
	}
	return int(math.Ceil(360 / binDeg))
}

func binIndex(angle, binDeg float64, n int) int {
	deg := nav.RadToDeg(nav.WrapAngle(angle)) + 180
	idx := int(math.Floor(deg / binDeg))
	idx %= n
	if idx < 0 {
		idx += n
	}
	return idx
}

// BaselineLearner accumulates sweeps while the vessel is stationary.
// Call Finish to close the window and obtain the immutable baseline.
type BaselineLearner struct {
	binDeg  float64
	samples [][]float64
	sweeps  int
}

// NewBaselineLearner creates a learner with the given bin width in degrees.
func NewBaselineLearner(binDeg float64) *BaselineLearner {
	if binDeg <= 0 {
		binDeg = DefaultBaselineBinDeg
	}
	return &BaselineLearner{
		binDeg:  binDeg,
		samples: make([][]float64, binCount(binDeg)),
	}
}

// Add folds one validated sweep into the running profile.
func (l *BaselineLearner) Add(samples []nav.RangeSample) {
	n := len(l.samples)
	for _, s := range samples {
		if math.IsNaN(s.Range) || math.IsInf(s.Range, 0) || s.Range <= 0 {
			continue
		}
		idx := binIndex(s.Angle, l.binDeg, n)
		l.samples[idx] = append(l.samples[idx], s.Range)
	}
	l.sweeps++
}

// Sweeps returns the number of sweeps added so far.
func (l *BaselineLearner) Sweeps() int { return l.sweeps }

// Finish computes the per-bin mean range. Bins that saw no returns have no
// baseline and never filter anything.
func (l *BaselineLearner) Finish() *WallBaseline {
	b := &WallBaseline{
		binDeg: l.binDeg,
		ranges: make([]float64, len(l.samples)),
		spread: make([]float64, len(l.samples)),
		sweeps: l.sweeps,
	}
	for i, vals := range l.samples {
		switch len(vals) {
		case 0:
			b.ranges[i] = math.NaN()
		case 1:
			b.ranges[i] = vals[0]
			b.learned++
		default:
			mean, std := stat.MeanStdDev(vals, nil)
			b.ranges[i] = mean
			b.spread[i] = std
			b.learned++
		}
	}
	return b
}

// WallBaseline is a per-angle-bin reference range profile. It is immutable
// once built and safe for concurrent reads.
type WallBaseline struct {
	binDeg  float64
	ranges  []float64 // NaN where no baseline was learned
	spread  []float64
	sweeps  int
	learned int
}

// UniformBaseline returns a baseline with the same range in every bin.
// Intended for tests and fixed installations.
func UniformBaseline(binDeg, r float64) *WallBaseline {
	l := NewBaselineLearner(binDeg)
	b := l.Finish()
	for i := range b.ranges {
		b.ranges[i] = r
	}
	b.learned = len(b.ranges)
	return b
}

// BinDeg returns the bin width in degrees.
func (b *WallBaseline) BinDeg() float64 { return b.binDeg }

// Sweeps returns how many sweeps the baseline was learned from.
func (b *WallBaseline) Sweeps() int { return b.sweeps }

// LearnedBins returns the number of bins holding a baseline range.
func (b *WallBaseline) LearnedBins() int { return b.learned }

// Range returns the baseline range for the bin containing angle.
func (b *WallBaseline) Range(angle float64) (float64, bool) {
	if b == nil || len(b.ranges) == 0 {
		return 0, false
	}
	r := b.ranges[binIndex(angle, b.binDeg, len(b.ranges))]
	if math.IsNaN(r) {
		return 0, false
	}
	return r, true
}

// IsStatic reports whether a return at angle with range r is consistent
// with the baseline within relative tolerance tol:
// |r - b| / max(b, 1e-6) <= tol. A nil baseline or an unlearned bin
// never matches.
func (b *WallBaseline) IsStatic(angle, r, tol float64) bool {
	base, ok := b.Range(angle)
	if !ok {
		return false
	}
	return math.Abs(r-base)/math.Max(base, 1e-6) <= tol
}

// Profile returns a copy of the per-bin baseline ranges, starting at -180°.
// Unlearned bins are NaN.
func (b *WallBaseline) Profile() []float64 {
	out := make([]float64, len(b.ranges))
	copy(out, b.ranges)
	return out
}
