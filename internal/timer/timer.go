package timer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrUnknownMode = errors.New("unknown timer mode")

type Mode string

const (
	ModePomodoro   Mode = "POMODORO"
	ModeShortBreak Mode = "SHORT_BREAK"
	ModeLongBreak  Mode = "LONG_BREAK"
)

type Status string

const (
	StatusStopped  Status = "STOPPED"
	StatusRunning  Status = "RUNNING"
	StatusPaused   Status = "PAUSED"
	StatusFinished Status = "FINISHED"
)

type Durations struct {
	Pomodoro   time.Duration
	ShortBreak time.Duration
	LongBreak  time.Duration
}

func DefaultDurations() Durations {
	return Durations{
		Pomodoro:   25 * time.Minute,
		ShortBreak: 5 * time.Minute,
		LongBreak:  15 * time.Minute,
	}
}

func (d Durations) seconds(mode Mode) (int, error) {
	switch mode {
	case ModePomodoro:
		return int(d.Pomodoro / time.Second), nil
	case ModeShortBreak:
		return int(d.ShortBreak / time.Second), nil
	case ModeLongBreak:
		return int(d.LongBreak / time.Second), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

type State struct {
	Mode             Mode   `json:"mode"`
	Status           Status `json:"status"`
	InitialSeconds   int    `json:"initial_seconds"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// Display renders the remaining time as MM:SS.
func (s State) Display() string {
	return fmt.Sprintf("%02d:%02d", s.RemainingSeconds/60, s.RemainingSeconds%60)
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type stdTicker struct {
	t *time.Ticker
}

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

type Config struct {
	Durations Durations
	Interval  time.Duration
	NewTicker TickerFunc
	// OnTick is called after every state change. It runs with the timer
	// locked, so it must neither block nor call back into the Timer.
	OnTick func(State)
	// OnTimeOver is called once when the countdown reaches zero.
	OnTimeOver func(State)
}

// Timer is a one-mode-at-a-time countdown. Remaining seconds stay within
// [0, initial]; the timer stops at zero.
type Timer struct {
	mu         sync.Mutex
	durations  Durations
	interval   time.Duration
	newTicker  TickerFunc
	onTick     func(State)
	onTimeOver func(State)

	mode      Mode
	status    Status
	initial   int
	remaining int
	// gen invalidates ticks from loops that were stopped
	gen  uint64
	stop chan struct{}
}

func New(cfg *Config) *Timer {
	t := &Timer{
		durations:  cfg.Durations,
		interval:   cfg.Interval,
		newTicker:  cfg.NewTicker,
		onTick:     cfg.OnTick,
		onTimeOver: cfg.OnTimeOver,
		mode:       ModePomodoro,
		status:     StatusStopped,
	}
	if t.interval <= 0 {
		t.interval = time.Second
	}
	if t.newTicker == nil {
		t.newTicker = NewStdTicker
	}
	if t.onTick == nil {
		t.onTick = func(State) {}
	}
	if t.onTimeOver == nil {
		t.onTimeOver = func(State) {}
	}

	t.initial, _ = t.durations.seconds(ModePomodoro)
	t.remaining = t.initial

	return t
}

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stateLocked()
}

func (t *Timer) stateLocked() State {
	return State{
		Mode:             t.mode,
		Status:           t.status,
		InitialSeconds:   t.initial,
		RemainingSeconds: t.remaining,
	}
}

// Start begins or resumes the countdown. A finished timer restarts from its
// initial duration. Starting a running timer changes nothing.
func (t *Timer) Start() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.startLocked()
}

func (t *Timer) startLocked() State {
	if t.status == StatusRunning {
		return t.stateLocked()
	}
	if t.status == StatusFinished || t.remaining == 0 {
		t.remaining = t.initial
	}
	if t.remaining == 0 {
		// zero-length mode
		t.status = StatusFinished
		st := t.stateLocked()
		t.onTick(st)
		t.onTimeOver(st)
		return st
	}

	t.status = StatusRunning
	t.gen++
	t.stop = make(chan struct{})
	go t.run(t.gen, t.newTicker(t.interval), t.stop)

	st := t.stateLocked()
	t.onTick(st)

	return st
}

func (t *Timer) Pause() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.pauseLocked()
}

func (t *Timer) pauseLocked() State {
	if t.status != StatusRunning {
		return t.stateLocked()
	}
	t.haltLocked()
	t.status = StatusPaused
	st := t.stateLocked()
	t.onTick(st)

	return st
}

// Toggle pauses a running timer and starts any other.
func (t *Timer) Toggle() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusRunning {
		return t.pauseLocked()
	}

	return t.startLocked()
}

func (t *Timer) Reset() State {
	t.mu.Lock()
	t.haltLocked()
	t.status = StatusStopped
	t.remaining = t.initial
	st := t.stateLocked()
	t.onTick(st)
	t.mu.Unlock()

	return st
}

func (t *Timer) SetMode(mode Mode) (State, error) {
	initial, err := t.durations.seconds(mode)
	if err != nil {
		return State{}, err
	}

	t.mu.Lock()
	t.haltLocked()
	t.mode = mode
	t.initial = initial
	t.remaining = initial
	t.status = StatusStopped
	st := t.stateLocked()
	t.onTick(st)
	t.mu.Unlock()

	return st, nil
}

// Close stops the countdown loop without notifying observers.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.haltLocked()
	if t.status == StatusRunning {
		t.status = StatusPaused
	}
}

func (t *Timer) haltLocked() {
	t.gen++
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Timer) run(gen uint64, tk Ticker, stop <-chan struct{}) {
	defer tk.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tk.C():
			if !t.tick(gen) {
				return
			}
		}
	}
}

func (t *Timer) tick(gen uint64) bool {
	t.mu.Lock()
	if gen != t.gen || t.status != StatusRunning {
		t.mu.Unlock()
		return false
	}

	if t.remaining > 0 {
		t.remaining--
	}
	over := t.remaining == 0
	if over {
		t.status = StatusFinished
		t.gen++
		t.stop = nil
	}
	st := t.stateLocked()
	t.onTick(st)
	if over {
		t.onTimeOver(st)
	}
	t.mu.Unlock()

	return !over
}
