package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robertof/go-blecli-bench/collector/model"
	"github.com/robertof/go-blecli-bench/device"
	"github.com/rs/zerolog/log"
)

type signal uint8

const (
  signalWakeUp signal = iota
  signalCollectionFinished
)

// Recurring probes the devices of a bench periodically and keeps the latest results around,
// so that the health of a bench can be watched between test runs.
type Recurring struct {
  // If no call to Latest() has been executed for more than IdleTimeout seconds, the
  // monitor will suspend and resume automatically when Latest() is called again.
  IdleTimeout time.Duration

  results map[*device.Device]model.Result
  collectionTime time.Time

  lastRead time.Time

  devices []*device.Device
  mu sync.Mutex

  // monitor has been Start()ed
  started bool

  // monitor is currently suspended due to inactivity
  suspended atomic.Bool

  signal chan signal
  wakeUpMu sync.Mutex
}

func NewRecurring(devices []*device.Device) *Recurring {
  return &Recurring{
    devices: devices,
    lastRead: time.Now(),
    signal: make(chan signal),
  }
}

func (s *Recurring) Update(r map[*device.Device]model.Result) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if r == nil {
    panic("attempted to set nil results")
  }

  s.results = r
  s.collectionTime = time.Now()
}

func (s *Recurring) wakeUpIfNeeded() bool {
  if s.suspended.Load() {
    s.signal <- signalWakeUp

    return true
  }

  return false
}

func (s *Recurring) wakeUpAndBlockIfNeeded(ctx context.Context) {
  // wait if another goroutine has already sent the wake up signal.
  s.wakeUpMu.Lock()
  defer s.wakeUpMu.Unlock()

  if s.wakeUpIfNeeded() {
    // wait until the probe is complete to proceed and block other goroutines trying to do
    // blocking reads.
    select {
    case <-ctx.Done():
    case sig := <-s.signal:
      if sig != signalCollectionFinished {
        panic("unexpected signal")
      }
    }
  }
}

func (s *Recurring) get() (map[*device.Device]model.Result, time.Time) {
  s.mu.Lock()
  defer s.mu.Unlock()

  if s.results == nil || s.collectionTime.IsZero() {
    panic("Latest() on collector.Recurring called when not initialised yet")
  }

  s.lastRead = time.Now()

  // safe to return as we replace the old map with a new one on update.
  return s.results, s.collectionTime
}

// Retrieve the latest probe results. Wakes up the monitor if asleep.
// Doesn't wait for a new result if the monitor is asleep and is waken up.
func (s *Recurring) Latest() (map[*device.Device]model.Result, time.Time) {
  s.wakeUpIfNeeded()

  return s.get()
}

// Retrieve the latest probe results. Wakes up the monitor if asleep and
// waits until it finishes probing, otherwise, returns the last available
// data without blocking.
func (s *Recurring) WaitLatest(ctx context.Context) (map[*device.Device]model.Result, time.Time) {
  s.wakeUpAndBlockIfNeeded(ctx)

  return s.get()
}

func (s *Recurring) shouldSuspend() (suspend bool, elapsed time.Duration) {
  if s.IdleTimeout == 0 {
    return false, 0
  }

  s.mu.Lock()
  defer s.mu.Unlock()

  elapsed = time.Since(s.lastRead)

  return elapsed > s.IdleTimeout, elapsed
}

func (s *Recurring) shutdown() {
  log.Info().Msg("Recurring monitor is shutting down")

  close(s.signal)
}

func (s *Recurring) Start(
  ctx context.Context,
  interval time.Duration,
  opts CollectionOptions,
) {
  if s.started {
    panic("attempted to call collector.Recurring.Start() twice")
  }

  s.started = true

  log.Info().
    Dur("Interval", interval).
    Int("MaxRetries", opts.MaxRetries).
    Dur("TimeoutPerAttemptSec", opts.TimeoutPerAttempt).
    Dur("IdleTimeoutSec", s.IdleTimeout).
    Msg("Starting recurring monitor")

  for {
    select {
    case <-ctx.Done():
      s.shutdown()
      return
    case <-time.After(interval):
    }

    wokeUp := false

    // check if nobody looked at the results for too long and suspend if so.
    if suspend, elapsed := s.shouldSuspend(); suspend {
      if !s.suspended.CompareAndSwap(false, true) {
        panic("s.shouldSuspend() == true but we're already suspended!?")
      }

      log.Warn().
        Dur("IdleTimeoutSec", s.IdleTimeout).
        Dur("TimeSinceLastReadSec", elapsed).
        Msg("Suspending recurring monitor due to inactivity. If you see this message often, " +
            "you probably need to adjust the probe interval with '-interval'.")

      // wait until resumed
      select {
      case <-ctx.Done():
        s.shutdown()
        return
      case sig := <-s.signal:
        if sig != signalWakeUp {
          panic("unexpected signal")
        }

        if !s.suspended.CompareAndSwap(true, false) {
          panic("monitor woke up from sleep but was not suspended!?")
        }

        wokeUp = true

        log.Trace().Msg("Monitor woke up from sleep - probing immediately")
      }
    } else {
      log.Trace().Dur("Interval", interval).Msg("Recurring monitor tick: probing...")
    }

    results, err := ProbeWithOptions(ctx, s.devices, opts)

    if results != nil {
      failed := 0

      for dev, res := range results {
        if res.Error != nil {
          failed += 1

          log.Warn().
            Stringer("Device", dev).
            Err(res.Error).
            Msg("Probe failed for device")
        } else {
          log.Debug().
            Stringer("Device", dev).
            Str("Version", res.Version).
            Msg("Device is alive")
        }
      }

      if failed > 0 {
        log.Warn().
          Err(err).
          Int("Failed", failed).
          Msg("Probe failed for one or more devices!")
      }

      // failed devices are published too, as down.
      s.Update(results)
    } else {
      log.Error().
        Err(err).
        Msg("Probe failed with undefined results - this should never happen!")
    }

    if wokeUp {
      select {
      case s.signal <- signalCollectionFinished:
      default:
      }
    }
  }
}
