package testcase

import (
  "context"
  "fmt"
  "runtime/debug"
  "time"

  "github.com/robertof/go-blecli-bench/bench"
  "github.com/robertof/go-blecli-bench/utils"
  "github.com/rs/zerolog/log"
)

// CleanupTimeout bounds RampDown and the cleanups of a test. They run even when the test timed
// out or the run was interrupted, so that the devices are left in a known state.
var CleanupTimeout = 30 * time.Second

type Outcome uint8

const (
  OutcomePass Outcome = iota
  OutcomeFail
  OutcomeSkipped
)

func (o Outcome) String() string {
  switch o {
  case OutcomePass:
    return "pass"
  case OutcomeFail:
    return "fail"
  case OutcomeSkipped:
    return "skipped"
  default:
    return fmt.Sprintf("outcome(%d)", uint8(o))
  }
}

type Result struct {
  Name string
  Outcome Outcome
  Errors []string
  // Why the test has been skipped.
  Reason string
  Duration time.Duration
}

func (r Result) Passed() bool {
  return r.Outcome == OutcomePass
}

// runPhase runs f on its own goroutine so that Fatal can stop it. Panics are reported as
// errors of the test.
func (s *State) runPhase(ctx context.Context, phase string, f func(context.Context, *State)) {
  if f == nil {
    return
  }

  done := make(chan struct{})

  go func() {
    defer close(done)
    defer func() {
      if r := recover(); r != nil {
        log.Debug().
          Str("Test", s.test.Name).
          Bytes("Stack", debug.Stack()).
          Msg("Recovered panic")

        s.Errorf("panic: %v", r)
      }
    }()

    s.setPhase(phase)
    f(ctx, s)
  }()

  <-done
}

// Run runs a single test against a bench. RampDown runs whenever RampUp has been started, and
// the cleanups registered by the test run after it.
func Run(ctx context.Context, b *bench.Bench, t *Test) Result {
  res := Result{Name: t.Name}

  if t.Requirements.Count > b.Len() {
    res.Outcome = OutcomeSkipped
    res.Reason = fmt.Sprintf("requires %d device(s), the bench has %d", t.Requirements.Count, b.Len())

    log.Warn().
      Str("Test", t.Name).
      Str("Reason", res.Reason).
      Msg("Skipping test")

    return res
  }

  log.Info().
    Str("Test", t.Name).
    Str("Title", t.Title).
    Int("Devices", t.Requirements.Count).
    Msg("Running test")

  start := time.Now()

  testCtx := ctx
  if t.Timeout > 0 {
    var cancel func()
    testCtx, cancel = context.WithTimeout(ctx, t.Timeout)
    defer cancel()
  }

  s := newState(t, b)

  s.runPhase(testCtx, "rampUp", t.RampUp)

  if !s.HasError() {
    s.runPhase(testCtx, "case", t.Func)
  }

  if err := testCtx.Err(); err != nil {
    s.Errorf("test did not complete: %v", err)
  }

  cleanupCtx, cancelCleanup := context.WithTimeout(context.WithoutCancel(ctx), CleanupTimeout)
  defer cancelCleanup()

  s.runPhase(cleanupCtx, "rampDown", t.RampDown)

  s.mu.Lock()
  cleanups := utils.Reverse(s.cleanups)
  s.mu.Unlock()

  for _, cleanup := range cleanups {
    cleanup := cleanup
    s.runPhase(cleanupCtx, "cleanup", func(ctx context.Context, _ *State) {
      cleanup(ctx)
    })
  }

  res.Duration = time.Since(start)
  res.Errors = s.Errors()

  if len(res.Errors) > 0 {
    res.Outcome = OutcomeFail
  }

  log.Info().
    Str("Test", t.Name).
    Stringer("Outcome", res.Outcome).
    Dur("ElapsedSec", res.Duration).
    Int("Errors", len(res.Errors)).
    Msg("Test finished")

  return res
}

// RunAll runs tests one after the other, handing every result to onResult (when not nil) as
// soon as it is known. It stops early only when ctx is done; the tests which did not run are not
// reported.
func RunAll(ctx context.Context, b *bench.Bench, tests []*Test, onResult func(Result)) []Result {
  out := make([]Result, 0, len(tests))

  for _, t := range tests {
    if ctx.Err() != nil {
      log.Warn().Err(ctx.Err()).Msg("Test run interrupted, not running the remaining tests")
      break
    }

    res := Run(ctx, b, t)
    out = append(out, res)

    if onResult != nil {
      onResult(res)
    }
  }

  return out
}
