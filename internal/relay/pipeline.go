// Package relay implements the streamer-slot state machine: it accepts
// exactly one streamer at a time, fans its audio out to any number of
// listeners through a jitter buffer, and tears everything down when the
// streamer disconnects, cycling Awaiting -> Handshaking -> Active ->
// Cleaning -> Awaiting. Control flow between sub-tasks runs over the
// SupervisorCommand/SupervisorEvent pair in supervisor.go. Transport is
// WebSocket-over-HTTP via gorilla/websocket and net/http.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/arung-agamani/wavecast/internal/auth"
	"github.com/arung-agamani/wavecast/internal/bus"
	"github.com/arung-agamani/wavecast/internal/wire"
)

// processStart is the monotonic instant every relay log line's elapsed_ms
// field is measured against.
var processStart = time.Now()

func elapsedMS() int64 {
	return time.Since(processStart).Milliseconds()
}

// State is one of the streamer slot's lifecycle phases.
type State int

const (
	Awaiting State = iota
	Handshaking
	Active
	Cleaning
)

func (s State) String() string {
	switch s {
	case Awaiting:
		return "awaiting"
	case Handshaking:
		return "handshaking"
	case Active:
		return "active"
	case Cleaning:
		return "cleaning"
	default:
		return "unknown"
	}
}

const maxToleratedMessageCount = 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TLSFiles names the single cert/key pair both WS servers serve with.
type TLSFiles struct {
	CertPath string
	KeyPath  string
}

// Pipeline owns the streamer-ingress HTTP server, the listener-egress HTTP
// server, and the epoch state machine driving both.
type Pipeline struct {
	StreamerAddress string
	ListenerAddress string
	Latency         time.Duration
	Gate            *auth.StreamerGate // nil leaves streamer-ingress open
	TLS             *TLSFiles          // nil disables TLS

	state   State
	stateMu sync.RWMutex

	epochMu      sync.RWMutex
	epochStarted time.Time
	supervisor   *Supervisor
}

// Status is a snapshot of the pipeline's lifecycle state, exposed to
// internal/statusapi's read-only GET /status endpoint.
type Status struct {
	State             string    `json:"state"`
	StreamerConnected bool      `json:"streamer_connected"`
	ListenerCount     int       `json:"listener_count"`
	Bottleneck        bool      `json:"bottleneck"`
	EpochStartedAt    time.Time `json:"epoch_started_at,omitzero"`
}

// Status returns a point-in-time snapshot safe to call from any goroutine.
func (p *Pipeline) Status() Status {
	state := p.State()
	p.epochMu.RLock()
	defer p.epochMu.RUnlock()

	s := Status{State: state.String(), StreamerConnected: state == Active}
	if p.supervisor != nil {
		s.ListenerCount = p.supervisor.ListenerCount()
		s.Bottleneck = p.supervisor.Bottleneck()
	}
	if !p.epochStarted.IsZero() {
		s.EpochStartedAt = p.epochStarted
	}
	return s
}

// New constructs a Pipeline. gate may be nil to leave streamer-ingress
// unauthenticated; tls may be nil to serve plain WS.
func New(streamerAddr, listenerAddr string, latencyMs uint16, gate *auth.StreamerGate, tls *TLSFiles) *Pipeline {
	return &Pipeline{
		StreamerAddress: streamerAddr,
		ListenerAddress: listenerAddr,
		Latency:         time.Duration(latencyMs) * time.Millisecond,
		Gate:            gate,
		TLS:             tls,
		state:           Awaiting,
	}
}

// State reports the pipeline's current lifecycle phase.
func (p *Pipeline) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
}

// Run drives the state machine forever, cycling through epochs until ctx is
// cancelled. Each epoch accepts one streamer, serves listeners until that
// streamer disconnects or a sub-task fails unexpectedly, then cleans up and
// returns to Awaiting. The accept loop pausing between Active and Cleaning
// is what refuses a second streamer implicitly.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.setState(Awaiting)
		conn, err := p.acceptStreamer(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("relay: streamer accept error", "error", err)
			continue
		}
		if conn == nil {
			continue
		}

		p.setState(Active)
		slog.Info("New Streamer", "elapsed_ms", elapsedMS(), "remote_addr", conn.RemoteAddr().String())
		p.runEpoch(ctx, conn)

		p.setState(Cleaning)
		if err := p.rebindListener(); err != nil {
			slog.Error("relay: listener socket never became rebindable", "error", err)
			return err
		}
		slog.Info("Cleaning Done", "elapsed_ms", elapsedMS())
	}
}

// acceptStreamer runs an HTTP server on StreamerAddress that accepts
// exactly one WS upgrade (optionally Basic-auth gated), then shuts down.
// This is the Awaiting+Handshaking phase combined: Awaiting is "server up,
// nothing accepted yet"; Handshaking is a request being processed. A request
// that fails the auth check or the upgrade is answered and the server keeps
// accepting, so it stops only once one upgrade succeeds.
func (p *Pipeline) acceptStreamer(ctx context.Context) (*websocket.Conn, error) {
	p.setState(Awaiting)

	result := make(chan *websocket.Conn, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		p.setState(Handshaking)

		if p.Gate != nil {
			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="streamer"`)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if err := p.Gate.Allow(user, pass, r.RemoteAddr); err != nil {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("relay: streamer ws upgrade failed", "error", err)
			return
		}
		select {
		case result <- ws:
		default:
			// Another handshake already won the slot this epoch.
			ws.Close()
		}
	})

	srv := &http.Server{Addr: p.StreamerAddress, Handler: mux}
	ln, err := net.Listen("tcp", p.StreamerAddress)
	if err != nil {
		return nil, err
	}

	serveErr := make(chan error, 1)
	go func() {
		if p.TLS != nil {
			serveErr <- srv.ServeTLS(ln, p.TLS.CertPath, p.TLS.KeyPath)
		} else {
			serveErr <- srv.Serve(ln)
		}
	}()

	select {
	case <-ctx.Done():
		srv.Close()
		return nil, ctx.Err()
	case ws := <-result:
		srv.Close()
		return ws, nil
	case err := <-serveErr:
		return nil, err
	}
}

// runEpoch wires together the ingress bus, jitter buffer, egress bus, and
// listener-accept loop for one Active streamer session, and blocks until
// the streamer disconnects or any sub-task exits unexpectedly.
func (p *Pipeline) runEpoch(ctx context.Context, streamerWS *websocket.Conn) {
	epochCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ingress := bus.New[wire.Message](1_000_000)
	middle := bus.New[wire.Message](1_000_000)
	egress := bus.New[wire.Message](1_000_000)

	sup := NewSupervisor()

	p.epochMu.Lock()
	p.supervisor = sup
	p.epochStarted = time.Now()
	p.epochMu.Unlock()

	g, gctx := errgroup.WithContext(epochCtx)

	g.Go(func() error { return p.streamerStream(gctx, streamerWS, ingress, sup) })
	g.Go(func() error { return p.messageOrganizer(gctx, ingress, middle, sup) })
	g.Go(func() error { return p.bufferLayer(gctx, middle, egress, sup) })
	g.Go(func() error { return p.listenerHandler(gctx, egress, sup) })
	g.Go(func() error { return p.statusChecker(gctx, egress, sup) })

	_ = g.Wait()
	streamerWS.Close()
	sup.Drain()

	p.epochMu.Lock()
	p.supervisor = nil
	p.epochStarted = time.Time{}
	p.epochMu.Unlock()
}

// streamerStream reads frames from the streamer WS and republishes them to
// the ingress bus. EOF is the epoch's normal termination signal: it emits
// EventStreamerLost for statusChecker and issues CommandStop directly so
// messageOrganizer/bufferLayer wind down without waiting on errgroup's
// context cancellation.
func (p *Pipeline) streamerStream(ctx context.Context, ws *websocket.Conn, ingress *bus.Bus[wire.Message], sup *Supervisor) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			sup.Emit(wire.EventStreamerLost)
			sup.Stop()
			return wire.ErrStreamerLost
		}
		ingress.Publish(wire.Message(data))
	}
}

// messageOrganizer forwards ingress to the middle bus, pacing by latency to
// batch downstream sends. It selects on sup.CommandChan() alongside
// ctx.Done() (neither case has priority) so shutdown is cooperative,
// reporting EventFinished when it was told to stop
// and EventUnexpectedExit if it falls out any other way.
func (p *Pipeline) messageOrganizer(ctx context.Context, ingress, middle *bus.Bus[wire.Message], sup *Supervisor) (err error) {
	sub := ingress.Subscribe()
	ticker := time.NewTicker(p.Latency)
	defer ticker.Stop()
	defer func() {
		if sup.Command() == wire.CommandStop {
			sup.Emit(wire.EventFinished)
		} else if err != nil && !errors.Is(err, context.Canceled) {
			sup.Emit(wire.EventUnexpectedExit)
		}
	}()
	for {
		select {
		case <-sup.CommandChan():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		msg, err := sub.Recv(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			continue
		}
		middle.Publish(msg)
	}
}

// bufferLayer sleeps latency, then drains the middle bus into egress in one
// burst, forming a small jitter buffer between ingress and fan-out. It
// shares messageOrganizer's CommandChan-first cooperative shutdown.
func (p *Pipeline) bufferLayer(ctx context.Context, middle, egress *bus.Bus[wire.Message], sup *Supervisor) (err error) {
	sub := middle.Subscribe()
	ticker := time.NewTicker(p.Latency)
	defer ticker.Stop()
	defer func() {
		if sup.Command() == wire.CommandStop {
			sup.Emit(wire.EventFinished)
		} else if err != nil && !errors.Is(err, context.Canceled) {
			sup.Emit(wire.EventUnexpectedExit)
		}
	}()
	for {
		select {
		case <-sup.CommandChan():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for sub.Len() > 0 {
			msg, err := sub.Recv(ctx)
			if err != nil {
				break
			}
			egress.Publish(msg)
		}
	}
}

// listenerHandler serves listener-egress WS connections — open to anyone;
// only the streamer-ingress accept is auth-gated — and spawns a
// per-listener stream task for each, registering its cancel func with the
// supervisor.
func (p *Pipeline) listenerHandler(ctx context.Context, egress *bus.Bus[wire.Message], sup *Supervisor) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		slog.Info("New Listener", "elapsed_ms", elapsedMS(), "remote_addr", ws.RemoteAddr().String())
		listenerCtx, cancel := context.WithCancel(ctx)
		sup.Register(cancel)
		go streamToListener(listenerCtx, ws, egress.Subscribe())
	})

	srv := &http.Server{Addr: p.ListenerAddress, Handler: mux}
	ln, err := net.Listen("tcp", p.ListenerAddress)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	var serveErr error
	if p.TLS != nil {
		serveErr = srv.ServeTLS(ln, p.TLS.CertPath, p.TLS.KeyPath)
	} else {
		serveErr = srv.Serve(ln)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		sup.Emit(wire.EventUnexpectedExit)
	}
	return serveErr
}

// streamToListener is the per-listener "stream" sub-task: it forwards
// egress messages to one WS connection, closing on send error or when its
// backlog exceeds maxToleratedMessageCount ("Slow Consumer"). sub is
// supplied by the caller (rather than subscribing internally) so a test can
// pre-load a subscription's backlog before the drain loop ever runs.
func streamToListener(ctx context.Context, ws *websocket.Conn, sub *bus.Subscription[wire.Message]) {
	defer ws.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if sub.Len() > maxToleratedMessageCount {
			slog.Warn("relay: listener evicted, slow consumer")
			return
		}

		msg, err := sub.Recv(ctx)
		if err != nil {
			continue
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
}

// rebindListener retries binding the listener socket until the OS releases
// the port — verified with a throwaway Listen/Close; the real listener is
// rebound by listenerHandler on the next epoch. Each failed attempt is
// benign and retried after 1 ms, up to a 1 s bound; exhausting the bound is
// a hard failure surfaced to the caller.
func (p *Pipeline) rebindListener() error {
	for i := 0; i < 1000; i++ {
		ln, err := net.Listen("tcp", p.ListenerAddress)
		if err == nil {
			ln.Close()
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return wire.ErrBindFailed
}
