package sqlite

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/ecoship/internal/nav"
	"github.com/banshee-data/ecoship/internal/nav/pipeline"
)

const (
	defaultRecorderBuffer = 256
	maxBatch              = 64
)

type record struct {
	tick       TickRecord
	transition *Transition
}

// Recorder persists frames for one run. RecordFrame never blocks: when the
// writer falls behind, records are dropped and counted.
type Recorder struct {
	db    *DB
	runID string

	mu     sync.RWMutex
	closed bool
	ch     chan record
	done   chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	errs    atomic.Uint64
}

// NewRecorder starts a writer for runID. buffer bounds the records held in
// memory; zero selects the default.
func NewRecorder(db *DB, runID string, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	r := &Recorder{
		db:    db,
		runID: runID,
		ch:    make(chan record, buffer),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// RunID returns the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// TickRecordOf summarises a frame.
func TickRecordOf(f *pipeline.Frame) TickRecord {
	return TickRecord{
		Seq:             f.Seq,
		Timestamp:       f.Timestamp,
		Dropped:         f.Dropped,
		Learning:        f.Learning,
		Valid:           f.Valid,
		X:               f.Pose.X,
		Y:               f.Pose.Y,
		Theta:           f.Pose.Theta,
		ICPIterations:   f.Registration.Iterations,
		ICPRMSE:         f.Registration.RMSE,
		ICPFallback:     f.Registration.Fallback,
		Clusters:        len(f.Clusters),
		Left:            f.Sectors.Left,
		Center:          f.Sectors.Center,
		Right:           f.Sectors.Right,
		State:           f.State.String(),
		Throttle:        f.Command.Throttle,
		Steering:        f.Command.Steering,
		WatchdogTripped: f.WatchdogTripped,
	}
}

// RecordFrame queues f. Frames after Close are ignored.
func (r *Recorder) RecordFrame(f *pipeline.Frame) {
	rec := record{tick: TickRecordOf(f)}
	if f.Transitioned() {
		rec.transition = &Transition{
			Seq:       f.Seq,
			Timestamp: f.Timestamp,
			From:      f.PrevState.String(),
			To:        f.State.String(),
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- rec:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	ticks := make([]TickRecord, 0, maxBatch)
	var transitions []Transition

	for rec := range r.ch {
		ticks = append(ticks[:0], rec.tick)
		transitions = transitions[:0]
		if rec.transition != nil {
			transitions = append(transitions, *rec.transition)
		}
	drain:
		for len(ticks) < maxBatch {
			select {
			case more, ok := <-r.ch:
				if !ok {
					break drain
				}
				ticks = append(ticks, more.tick)
				if more.transition != nil {
					transitions = append(transitions, *more.transition)
				}
			default:
				break drain
			}
		}

		if err := r.db.InsertTicks(r.runID, ticks, transitions); err != nil {
			r.errs.Add(1)
			nav.Opsf("run log write failed: %v", err)
			continue
		}
		r.written.Add(uint64(len(ticks)))
	}
}

// Close flushes queued records and marks the run ended.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
	nav.Opsf("run log %s closed: written=%d dropped=%d errors=%d",
		r.runID, r.written.Load(), r.dropped.Load(), r.errs.Load())
	return r.db.EndRun(r.runID, time.Now())
}

// RecorderStats reports recorder counters.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Errors  uint64 `json:"errors"`
}

// Stats returns recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{Written: r.written.Load(), Dropped: r.dropped.Load(), Errors: r.errs.Load()}
}

var _ pipeline.PersistenceSink = (*Recorder)(nil)
