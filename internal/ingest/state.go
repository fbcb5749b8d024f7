package ingest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is one of DISCONNECTED / CONNECTING / RUNNING / RECONNECTING. It is
// owned by a single ingestion goroutine; reconnection is driven by that
// goroutine and never by listener callbacks.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateRunning
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

const (
	// HandshakeTimeout bounds connection establishment.
	HandshakeTimeout = 30 * time.Second
	// InitialReconnectDelay is the delay before the first reconnect attempt
	// after a drop.
	InitialReconnectDelay = 5 * time.Second
	// BackoffReconnectDelay is the delay between subsequent attempts once
	// the first has failed.
	BackoffReconnectDelay = 10 * time.Second
)

// Lifecycle is the connection state machine shared by both push
// implementations. It is not itself a Source; each implementation embeds one
// and drives its transitions from a single goroutine.
type Lifecycle struct {
	mu           sync.Mutex
	state        State
	connectionID string
	reconnecting bool // guards against concurrent idempotent reconnect requests
	logger       *logrus.Logger
}

// NewLifecycle creates a Lifecycle starting in the disconnected state.
func NewLifecycle(logger *logrus.Logger) *Lifecycle {
	if logger == nil {
		logger = logrus.New()
	}
	return &Lifecycle{state: StateDisconnected, logger: logger}
}

// EnterConnecting transitions to CONNECTING and mints a fresh connectionId.
func (l *Lifecycle) EnterConnecting() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateConnecting
	l.connectionID = uuid.NewString()
	l.reconnecting = false
	l.logger.WithField("connectionId", l.connectionID).Debug("ingest: entering CONNECTING")
	return l.connectionID
}

// EnterRunning transitions to RUNNING.
func (l *Lifecycle) EnterRunning() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateRunning
	l.logger.WithField("connectionId", l.connectionID).Debug("ingest: entering RUNNING")
}

// RequestReconnect transitions to RECONNECTING. If a reconnect is already in
// progress, the call is a no-op and returns false — concurrent reconnect
// requests are idempotent.
func (l *Lifecycle) RequestReconnect() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reconnecting {
		return false
	}
	l.reconnecting = true
	l.state = StateReconnecting
	l.connectionID = ""
	l.logger.Debug("ingest: entering RECONNECTING")
	return true
}

// ConnectionID returns the current connectionId (minted on entering
// CONNECTING), or "" while RECONNECTING or DISCONNECTED.
func (l *Lifecycle) ConnectionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connectionID
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// EnterDisconnected transitions to DISCONNECTED on final shutdown.
func (l *Lifecycle) EnterDisconnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateDisconnected
	l.connectionID = ""
}

// Counters tracks ingestion activity with lock-free atomic increments, safe
// for one writer goroutine and many readers.
type Counters struct {
	transactionsReceived atomic.Int64
	errors               atomic.Int64
	startTime            time.Time
}

// NewCounters creates a Counters with StartTime set to now.
func NewCounters() *Counters {
	return &Counters{startTime: time.Now()}
}

func (c *Counters) IncReceived() { c.transactionsReceived.Add(1) }
func (c *Counters) IncErrors()   { c.errors.Add(1) }

// Snapshot returns the current counter values. Reads are relaxed: this may
// race with concurrent increments but never observes a torn value.
type Snapshot struct {
	TransactionsReceived int64
	Errors               int64
	StartTime            time.Time
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		TransactionsReceived: c.transactionsReceived.Load(),
		Errors:               c.errors.Load(),
		StartTime:            c.startTime,
	}
}

// ReconnectDelay returns the backoff delay for the given consecutive-failure
// count (0 = first attempt after a drop).
func ReconnectDelay(failureCount int) time.Duration {
	if failureCount <= 0 {
		return InitialReconnectDelay
	}
	return BackoffReconnectDelay
}
