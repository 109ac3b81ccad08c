package testcase

import (
  "context"
  "fmt"
  "runtime"
  "sync"

  "github.com/robertof/go-blecli-bench/bench"
  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/device"
  "github.com/rs/zerolog/log"
)

// State is handed to every phase of a running test. Fatal and Fatalf stop the current phase
// and must be called from the goroutine running it.
type State struct {
  test *Test
  bench *bench.Bench

  mu sync.Mutex
  phase string
  errors []string
  cleanups []func(context.Context)
}

func newState(t *Test, b *bench.Bench) *State {
  return &State{test: t, bench: b}
}

func (s *State) TestName() string {
  return s.test.Name
}

func (s *State) Bench() *bench.Bench {
  return s.bench
}

func (s *State) setPhase(phase string) {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.phase = phase
}

func (s *State) currentPhase() string {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.phase
}

func (s *State) Log(args ...any) {
  log.Info().
    Str("Test", s.test.Name).
    Str("Phase", s.currentPhase()).
    Msg(fmt.Sprint(args...))
}

func (s *State) Logf(format string, args ...any) {
  s.Log(fmt.Sprintf(format, args...))
}

func (s *State) recordError(msg string) {
  s.mu.Lock()
  s.errors = append(s.errors, msg)
  phase := s.phase
  s.mu.Unlock()

  log.Error().
    Str("Test", s.test.Name).
    Str("Phase", phase).
    Msg(msg)
}

// Error marks the test as failed and lets the phase continue.
func (s *State) Error(args ...any) {
  s.recordError(fmt.Sprint(args...))
}

func (s *State) Errorf(format string, args ...any) {
  s.recordError(fmt.Sprintf(format, args...))
}

// Fatal marks the test as failed and stops the current phase.
func (s *State) Fatal(args ...any) {
  s.recordError(fmt.Sprint(args...))
  runtime.Goexit()
}

func (s *State) Fatalf(format string, args ...any) {
  s.recordError(fmt.Sprintf(format, args...))
  runtime.Goexit()
}

func (s *State) HasError() bool {
  s.mu.Lock()
  defer s.mu.Unlock()

  return len(s.errors) > 0
}

func (s *State) Errors() []string {
  s.mu.Lock()
  defer s.mu.Unlock()

  return append([]string(nil), s.errors...)
}

// DUT returns the n-th device of the bench, counting from 1 in bench order.
func (s *State) DUT(n int) *device.Device {
  ids := s.bench.IDs()

  if n < 1 || n > len(ids) {
    s.Fatalf("DUT %d requested but the bench has %d device(s)", n, len(ids))
  }

  dev, err := s.bench.Device(ids[n-1])
  if err != nil {
    s.Fatal("Failed to get device: ", err)
  }

  return dev
}

// Require stops the phase unless a command has been sent and has succeeded. It returns the
// result for further checks.
func (s *State) Require(res command.Result, err error) command.Result {
  if err != nil {
    s.Fatal("Command failed: ", err)
  }

  if !res.Success() {
    s.Fatalf("Command %s failed: %v", res.Name(), res)
  }

  return res
}

// Check is like Require but lets the phase continue. It reports whether the command succeeded.
func (s *State) Check(res command.Result, err error) bool {
  if err != nil {
    s.Error("Command failed: ", err)
    return false
  }

  if !res.Success() {
    s.Errorf("Command %s failed: %v", res.Name(), res)
    return false
  }

  return true
}

// AddCleanup registers f to run once the test is over, after RampDown. Cleanups run in reverse
// registration order, even when the test failed.
func (s *State) AddCleanup(f func(ctx context.Context)) {
  s.mu.Lock()
  defer s.mu.Unlock()

  s.cleanups = append(s.cleanups, f)
}
