package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/ecoship/internal/nav/pipeline"
)

// Publisher holds the latest frame and fans frames out to subscribers.
// PublishFrame is called by the loop; every other method may be called
// from any goroutine.
type Publisher struct {
	mu      sync.RWMutex
	latest  *pipeline.Frame
	frames  uint64
	started time.Time
	subs    map[uint64]chan *pipeline.Frame
	nextID  uint64

	dropped atomic.Uint64
}

// PublisherStats summarises publisher activity.
type PublisherStats struct {
	Frames      uint64 `json:"frames"`
	Subscribers int    `json:"subscribers"`
	Dropped     uint64 `json:"dropped"`
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{started: time.Now(), subs: make(map[uint64]chan *pipeline.Frame)}
}

// PublishFrame records f as the latest frame. Subscribers that are not
// keeping up miss frames rather than stall the loop.
func (p *Publisher) PublishFrame(f *pipeline.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = f
	p.frames++
	for _, ch := range p.subs {
		select {
		case ch <- f:
		default:
			p.dropped.Add(1)
		}
	}
}

// Frame returns the latest frame, which must be treated as read-only.
func (p *Publisher) Frame() (*pipeline.Frame, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.latest != nil
}

// Latest returns a copy of the latest tick.
func (p *Publisher) Latest() (Snapshot, bool) {
	f, ok := p.Frame()
	if !ok {
		return Snapshot{}, false
	}
	return SnapshotOf(f), true
}

// LatestMap returns a copy of the latest map.
func (p *Publisher) LatestMap() (MapView, bool) {
	f, ok := p.Frame()
	if !ok {
		return MapView{}, false
	}
	return MapOf(f), true
}

// Subscribe registers a subscriber with the given buffer. The returned
// cancel function unregisters it and closes the channel.
func (p *Publisher) Subscribe(buffer int) (<-chan *pipeline.Frame, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *pipeline.Frame, buffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
		})
	}
}

// Stats returns publisher counters.
func (p *Publisher) Stats() PublisherStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PublisherStats{Frames: p.frames, Subscribers: len(p.subs), Dropped: p.dropped.Load()}
}

// Uptime returns the time since the publisher was created.
func (p *Publisher) Uptime() time.Duration { return time.Since(p.started) }

var _ pipeline.PublishSink = (*Publisher)(nil)
