package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arung-agamani/wavecast/internal/bus"
	"github.com/arung-agamani/wavecast/internal/wire"
)

const statusCheckInterval = 3 * time.Second
const bottleneckDepth = 2

// Supervisor is one epoch's control plane: a single
// SupervisorCommand/SupervisorEvent channel pair shared by every sub-task,
// plus the per-listener task registry — a plain slice of cancel funcs
// drained during Cleaning.
//
// Two distinct cancellation paths exist: messageOrganizer and bufferLayer
// are long-running, unregistered tasks that watch CommandChan directly and
// exit voluntarily on CommandStop; the per-listener stream tasks registered
// via Register are instead hard-cancelled through their context during
// Drain, the worst-case fallback for exactly that registry.
type Supervisor struct {
	mu    sync.Mutex
	tasks []context.CancelFunc

	events chan wire.SupervisorEvent

	commandMu sync.Mutex
	command   wire.SupervisorCommand
	commandCh chan struct{}

	bottleneck atomic.Bool
}

// NewSupervisor constructs an empty Supervisor for one epoch.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		events:    make(chan wire.SupervisorEvent, 8),
		commandCh: make(chan struct{}),
	}
}

// Register adds a listener task's cancel func to the registry.
func (s *Supervisor) Register(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, cancel)
}

// Emit reports an event, e.g. streamer loss, to anything watching Events().
func (s *Supervisor) Emit(e wire.SupervisorEvent) {
	select {
	case s.events <- e:
	default:
	}
}

// Events exposes the event stream for status_checker to watch.
func (s *Supervisor) Events() <-chan wire.SupervisorEvent {
	return s.events
}

// Stop issues CommandStop, asking every task watching CommandChan to wind
// down voluntarily. It is idempotent: only the first of Stop/Abort in an
// epoch latches a command.
func (s *Supervisor) Stop() {
	s.issue(wire.CommandStop)
}

// Abort issues CommandAbort, the worst-case command a task sees if it
// checks CommandChan after Drain already had to hard-cancel the per-listener
// registry — a task that observes CommandAbort rather than CommandStop knows
// it is being torn down rather than winding down.
func (s *Supervisor) Abort() {
	s.issue(wire.CommandAbort)
}

func (s *Supervisor) issue(cmd wire.SupervisorCommand) {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if s.command != wire.CommandNone {
		return
	}
	s.command = cmd
	close(s.commandCh)
}

// CommandChan closes once Stop or Abort has been called; Command reports
// which one after it closes.
func (s *Supervisor) CommandChan() <-chan struct{} {
	return s.commandCh
}

// Command reports the latched command, or CommandNone if neither Stop nor
// Abort has been issued yet.
func (s *Supervisor) Command() wire.SupervisorCommand {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	return s.command
}

// Drain cancels every registered listener task — step (4) of Cleaning —
// after issuing Abort as the worst-case command for anything still watching
// CommandChan that Stop didn't already reach.
func (s *Supervisor) Drain() {
	s.Abort()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.tasks {
		cancel()
	}
	s.tasks = nil
}

// ListenerCount reports the number of currently registered listener tasks.
func (s *Supervisor) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Bottleneck reports whether the egress bus is currently backlogged past
// bottleneckDepth, as last observed by statusChecker.
func (s *Supervisor) Bottleneck() bool {
	return s.bottleneck.Load()
}

func (s *Supervisor) setBottleneck(v bool) {
	s.bottleneck.Store(v)
}

// statusChecker is the "status_checker" sub-task: every statusCheckInterval
// it checks streamer liveness, logs bottleneck transitions when egress
// depth exceeds bottleneckDepth, and tracks subscriber-count changes. On a
// streamer-EOF event it issues CommandStop and cancels the epoch, which
// triggers Cleaning.
func (p *Pipeline) statusChecker(ctx context.Context, egress *bus.Bus[wire.Message], sup *Supervisor) error {
	ticker := time.NewTicker(statusCheckInterval)
	defer ticker.Stop()

	// monitor is a subscription that is never drained; its backlog length
	// tracks exactly how many messages have been published to egress since
	// the last tick, giving an aggregate "egress depth" reading without
	// disturbing any listener's own subscription.
	monitor := egress.Subscribe()

	// The monitor is itself an egress subscriber; listener counts exclude it.
	lastSubscriberCount := egress.SubscriberCount() - 1

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-sup.Events():
			if ev == wire.EventStreamerLost {
				slog.Info("Streamer Disconnected", "elapsed_ms", elapsedMS())
				sup.Stop()
				return wire.ErrStreamerLost
			}
		case <-ticker.C:
			if count := egress.SubscriberCount() - 1; count != lastSubscriberCount {
				slog.Info(fmt.Sprintf("Listener(s): %d", count), "elapsed_ms", elapsedMS())
				lastSubscriberCount = count
			}

			depth := monitor.Len()
			if depth > bottleneckDepth && !sup.Bottleneck() {
				sup.setBottleneck(true)
				slog.Warn("Bottleneck", "elapsed_ms", elapsedMS(), "egress_depth", depth)
			} else if depth <= bottleneckDepth && sup.Bottleneck() {
				sup.setBottleneck(false)
				slog.Info("Flawless Again", "elapsed_ms", elapsedMS(), "egress_depth", depth)
			}
			drainMonitor(monitor)
		}
	}
}

// drainMonitor resets the monitor subscription's backlog to zero so the
// next tick measures only messages published during the next interval.
func drainMonitor(sub *bus.Subscription[wire.Message]) {
	for sub.Len() > 0 {
		if _, err := sub.Recv(context.Background()); err != nil {
			return
		}
	}
}
