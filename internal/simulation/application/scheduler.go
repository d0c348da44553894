package application

import (
	"context"
	"errors"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"solarflow-cloud/internal/observability/metrics"
	simulation "solarflow-cloud/internal/simulation/domain"
)

// DefaultTickInterval is the live reading cadence.
const DefaultTickInterval = 5 * time.Second

// Ticker runs one step of a subscriber loop.
type Ticker interface {
	Tick(ctx context.Context, profile simulation.SubscriberEnergyProfile) (simulation.EnergyReading, error)
}

// LoopStatus describes a running loop.
type LoopStatus struct {
	SubscriberID string                             `json:"subscriber_id"`
	Running      bool                               `json:"running"`
	StartedAt    time.Time                          `json:"started_at,omitempty"`
	Profile      simulation.SubscriberEnergyProfile `json:"profile"`
}

type loop struct {
	cancel    context.CancelFunc
	done      chan struct{}
	profile   simulation.SubscriberEnergyProfile
	startedAt time.Time
}

// Scheduler runs one periodic tick loop per subscriber.
// Ticks for the same subscriber never overlap: a replacing loop waits for
// the loop it replaced to exit before its first tick.
type Scheduler struct {
	ticker   Ticker
	interval time.Duration
	clock    Clock
	logger   *log.Logger

	mu     sync.Mutex
	loops  map[string]*loop
	tails  map[string]*loop
	closed bool
}

// SchedulerOption configures the scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval overrides the tick interval.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSchedulerClock overrides the clock used for loop start times.
func WithSchedulerClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *log.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler constructs a scheduler.
func NewScheduler(ticker Ticker, opts ...SchedulerOption) (*Scheduler, error) {
	if ticker == nil {
		return nil, errors.New("simulation scheduler: nil ticker")
	}
	s := &Scheduler{
		ticker:   ticker,
		interval: DefaultTickInterval,
		clock:    SystemClock{},
		logger:   log.New(os.Stdout, "", log.LstdFlags),
		loops:    make(map[string]*loop),
		tails:    make(map[string]*loop),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches a loop for the subscriber, replacing any running one.
func (s *Scheduler) Start(profile simulation.SubscriberEnergyProfile) error {
	if profile.SubscriberID == "" {
		return simulation.ErrEmptySubscriberID
	}
	ctx, cancel := context.WithCancel(context.Background())
	next := &loop{
		cancel:    cancel,
		done:      make(chan struct{}),
		profile:   profile,
		startedAt: s.clock.Now().UTC(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return simulation.ErrSchedulerClosed
	}
	// tails also covers a loop that Stop removed but that is still exiting.
	prev := s.tails[profile.SubscriberID]
	s.loops[profile.SubscriberID] = next
	s.tails[profile.SubscriberID] = next
	count := len(s.loops)
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	go s.run(ctx, next, prev)
	metrics.SetActiveLoops(count)
	s.logger.Printf("simulation started: subscriber=%s interval=%s", profile.SubscriberID, s.interval)
	return nil
}

// Stop cancels the subscriber loop and waits for it to exit.
// It reports whether a loop was running.
func (s *Scheduler) Stop(subscriberID string) bool {
	s.mu.Lock()
	current, ok := s.loops[subscriberID]
	if ok {
		delete(s.loops, subscriberID)
	}
	count := len(s.loops)
	s.mu.Unlock()
	if !ok {
		return false
	}

	current.cancel()
	<-current.done
	metrics.SetActiveLoops(count)
	s.logger.Printf("simulation stopped: subscriber=%s", subscriberID)
	return true
}

// StopAll cancels every loop, waits for all of them and closes the scheduler.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	s.closed = true
	loops := make([]*loop, 0, len(s.loops))
	for id, l := range s.loops {
		loops = append(loops, l)
		delete(s.loops, id)
	}
	s.mu.Unlock()

	for _, l := range loops {
		l.cancel()
	}
	for _, l := range loops {
		<-l.done
	}
	metrics.SetActiveLoops(0)
	s.logger.Printf("simulation scheduler stopped: loops=%d", len(loops))
}

// Running reports whether a loop is registered for the subscriber.
func (s *Scheduler) Running(subscriberID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[subscriberID]
	return ok
}

// Status returns the loop status for a subscriber.
func (s *Scheduler) Status(subscriberID string) LoopStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loops[subscriberID]
	if !ok {
		return LoopStatus{SubscriberID: subscriberID}
	}
	return LoopStatus{
		SubscriberID: subscriberID,
		Running:      true,
		StartedAt:    l.startedAt,
		Profile:      l.profile,
	}
}

// ActiveCount returns the number of registered loops.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

// ActiveSubscribers returns registered subscriber ids in sorted order.
func (s *Scheduler) ActiveSubscribers() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.loops))
	for id := range s.loops {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) run(ctx context.Context, l *loop, prev *loop) {
	defer func() {
		s.mu.Lock()
		if s.tails[l.profile.SubscriberID] == l {
			delete(s.tails, l.profile.SubscriberID)
		}
		s.mu.Unlock()
		close(l.done)
	}()
	if prev != nil {
		<-prev.done
	}

	timer := time.NewTicker(s.interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.ticker.Tick(ctx, l.profile); err != nil && ctx.Err() == nil {
			s.logger.Printf("simulation tick error: subscriber=%s err=%v", l.profile.SubscriberID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}
