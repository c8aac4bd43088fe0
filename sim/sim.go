// SPDX-License-Identifier: MIT
//
// Copyright © 2024 Kent Gibson <warthog618@gmail.com>.

// Package sim provides a simulated board for testing code built on pitrig
// without hardware.
//
// The board has a virtual microsecond clock that only advances in Delay, so
// waits and pulses run instantly and deterministically. All calls into the
// board are recorded and can be inspected with Calls.
package sim

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/warthog618/pitrig"
)

// DefaultPins is the number of lines on a simulated board.
const DefaultPins = 54

// Op identifies an operation on the board.
type Op string

// Operations recorded by the board.
const (
	OpOpen     Op = "open"
	OpClose    Op = "close"
	OpSetMode  Op = "mode"
	OpSetPull  Op = "pull"
	OpRead     Op = "read"
	OpWrite    Op = "write"
	OpDelay    Op = "delay"
	OpWatchdog Op = "watchdog"
)

// Call is a recorded operation.
// Arg holds the mode, pull, level (0/1), delay or watchdog window,
// depending on the Op.
type Call struct {
	Op  Op
	Pin int
	Arg int
}

var (
	// ErrClosed indicates an operation on a board that is not open.
	ErrClosed = errors.New("board closed")
	// ErrInvalidPin indicates a pin that does not exist on the board.
	ErrInvalidPin = errors.New("invalid pin")
)

type line struct {
	mode  pitrig.Mode
	pull  pitrig.Pull
	latch pitrig.Level
	// level applied externally to the pin, if any.
	ext *pitrig.Level
}

type event struct {
	at    uint64
	pin   int
	level pitrig.Level
}

// Board is a simulated GPIO board.
type Board struct {
	mu        sync.Mutex
	open      bool
	openErr   error
	now       uint32
	elapsed   uint64
	lines     []line
	events    []event
	loops     map[int]int
	watchdogs map[int]uint32
	calls     []Call
	onDelay   func(us uint32)
}

// Option modifies the construction of a Board.
type Option func(*Board)

// WithStartTick sets the initial value of the tick counter.
// Useful for straddling the wrap of the counter.
func WithStartTick(t uint32) Option {
	return func(b *Board) {
		b.now = t
	}
}

// WithOpenError makes Open fail with err.
func WithOpenError(err error) Option {
	return func(b *Board) {
		b.openErr = err
	}
}

// WithPins sets the number of lines on the board.
func WithPins(n int) Option {
	return func(b *Board) {
		b.lines = make([]line, n)
	}
}

// WithDelayHook sets a function called at the start of each Delay, before
// the clock advances. The hook may inspect the board.
func WithDelayHook(f func(us uint32)) Option {
	return func(b *Board) {
		b.onDelay = f
	}
}

// New creates a simulated board.
// All lines start as inputs with no pull, and so read Low.
func New(options ...Option) *Board {
	b := &Board{
		lines:     make([]line, DefaultPins),
		loops:     make(map[int]int),
		watchdogs: make(map[int]uint32),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// Open implements pitrig.Hardware.
func (b *Board) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(OpOpen, -1, 0)
	if b.openErr != nil {
		return b.openErr
	}
	b.open = true
	return nil
}

// Close implements pitrig.Hardware.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(OpClose, -1, 0)
	b.open = false
	return nil
}

// SetMode implements pitrig.Hardware.
func (b *Board) SetMode(pin int, mode pitrig.Mode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(OpSetMode, pin, int(mode))
	l, err := b.line(pin)
	if err != nil {
		return err
	}
	l.mode = mode
	return nil
}

// SetPull implements pitrig.Hardware.
func (b *Board) SetPull(pin int, pull pitrig.Pull) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(OpSetPull, pin, int(pull))
	l, err := b.line(pin)
	if err != nil {
		return err
	}
	l.pull = pull
	return nil
}

// Read implements pitrig.Hardware.
func (b *Board) Read(pin int) (pitrig.Level, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(OpRead, pin, 0)
	if _, err := b.line(pin); err != nil {
		return pitrig.Low, err
	}
	return b.level(pin), nil
}

// Write implements pitrig.Hardware.
// The level is latched even when the pin is an input, and is driven once the
// pin becomes an output.
func (b *Board) Write(pin int, level pitrig.Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(OpWrite, pin, level2Int(level))
	l, err := b.line(pin)
	if err != nil {
		return err
	}
	l.latch = level
	return nil
}

// Tick implements pitrig.Hardware.
func (b *Board) Tick() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

// Delay implements pitrig.Hardware.
// The virtual clock is advanced by us and any scheduled level changes that
// fall due are applied.
func (b *Board) Delay(us uint32) {
	b.mu.Lock()
	b.record(OpDelay, -1, int(us))
	hook := b.onDelay
	b.mu.Unlock()
	if hook != nil {
		hook(us)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now += us
	b.elapsed += uint64(us)
	b.applyEvents()
}

// SetWatchdog implements pitrig.Watchdog.
func (b *Board) SetWatchdog(pin int, ms uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(OpWatchdog, pin, int(ms))
	if _, err := b.line(pin); err != nil {
		return err
	}
	if ms == 0 {
		delete(b.watchdogs, pin)
	} else {
		b.watchdogs[pin] = ms
	}
	return nil
}

// Watchdog returns the window of the watchdog armed on the pin, or 0 if none.
func (b *Board) Watchdog(pin int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watchdogs[pin]
}

// Drive applies a level to the pin from outside the board, as a connected
// device would. The level is only seen while the pin is an input.
func (b *Board) Drive(pin int, level pitrig.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drive(pin, level)
}

// DriveAfter schedules Drive to occur once the virtual clock has advanced by
// us microseconds.
func (b *Board) DriveAfter(pin int, level pitrig.Level, us uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event{at: b.elapsed + uint64(us), pin: pin, level: level})
	sort.SliceStable(b.events, func(i, j int) bool {
		return b.events[i].at < b.events[j].at
	})
}

// Release removes any externally applied level from the pin.
func (b *Board) Release(pin int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pin >= 0 && pin < len(b.lines) {
		b.lines[pin].ext = nil
	}
}

// Connect wires the output pin out to the input pin in, so in reads the
// level driven by out.
func (b *Board) Connect(out, in int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loops[in] = out
}

// Level returns the level of the pin without recording a read.
func (b *Board) Level(pin int) pitrig.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pin < 0 || pin >= len(b.lines) {
		return pitrig.Low
	}
	return b.level(pin)
}

// Mode returns the mode of the pin.
func (b *Board) Mode(pin int) pitrig.Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pin < 0 || pin >= len(b.lines) {
		return pitrig.Input
	}
	return b.lines[pin].mode
}

// Pull returns the pull of the pin.
func (b *Board) Pull(pin int) pitrig.Pull {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pin < 0 || pin >= len(b.lines) {
		return pitrig.PullNone
	}
	return b.lines[pin].pull
}

// IsOpen returns true if the board has been opened and not closed.
func (b *Board) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Elapsed returns the total time the virtual clock has advanced.
func (b *Board) Elapsed() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elapsed
}

// Calls returns a copy of the recorded calls.
func (b *Board) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsOf returns the recorded calls of a given Op.
func (b *Board) CallsOf(op Op) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var cc []Call
	for _, c := range b.calls {
		if c.Op == op {
			cc = append(cc, c)
		}
	}
	return cc
}

// ResetCalls discards the recorded calls.
func (b *Board) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

func (b *Board) record(op Op, pin, arg int) {
	b.calls = append(b.calls, Call{Op: op, Pin: pin, Arg: arg})
}

// line returns the line for a pin. Assumes the caller holds mu.
func (b *Board) line(pin int) (*line, error) {
	if !b.open {
		return nil, ErrClosed
	}
	if pin < 0 || pin >= len(b.lines) {
		return nil, ErrInvalidPin
	}
	return &b.lines[pin], nil
}

// level resolves the level seen on a pin. Assumes the caller holds mu.
func (b *Board) level(pin int) pitrig.Level {
	l := b.lines[pin]
	if l.mode == pitrig.Output {
		return l.latch
	}
	if l.ext != nil {
		return *l.ext
	}
	if out, ok := b.loops[pin]; ok && b.lines[out].mode == pitrig.Output {
		return b.lines[out].latch
	}
	return l.pull == pitrig.PullUp
}

func (b *Board) drive(pin int, level pitrig.Level) {
	if pin < 0 || pin >= len(b.lines) {
		return
	}
	b.lines[pin].ext = &level
}

func (b *Board) applyEvents() {
	n := 0
	for _, e := range b.events {
		if e.at > b.elapsed {
			break
		}
		b.drive(e.pin, e.level)
		n++
	}
	b.events = b.events[n:]
}

func level2Int(l pitrig.Level) int {
	if l == pitrig.Low {
		return 0
	}
	return 1
}
