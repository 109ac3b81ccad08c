// Package collector checks that devices under test are alive by asking for their firmware
// version, retrying with an exponential backoff.
package collector

import (
	"context"
	"time"

	"github.com/robertof/go-blecli-bench/collector/model"
	"github.com/robertof/go-blecli-bench/device"
	"github.com/robertof/go-blecli-bench/utils"
	"github.com/rs/zerolog/log"
)

const (
  DefaultMaxRetries = 2
  DefaultTimeoutPerAttempt = 5 * time.Second
  DefaultBackoffFactor = 500 * time.Millisecond
)

type CollectionOptions struct {
  MaxRetries int
  TimeoutPerAttempt time.Duration
  BackoffFactor time.Duration

  attempt int
}

func Probe(
  ctx context.Context,
  devices []*device.Device,
) (out map[*device.Device]model.Result, err error) {
  return ProbeWithOptions(
    ctx,
    devices,
    CollectionOptions{
      MaxRetries: DefaultMaxRetries,
      TimeoutPerAttempt: DefaultTimeoutPerAttempt,
      BackoffFactor: DefaultBackoffFactor,
    },
  )
}

// Probe the specified devices and don't stop until either all of them answered or the retries
// are exhausted. Devices which never answered within an attempt are reported with the error
// of the context.
func ProbeWithOptions(
  parentCtx context.Context,
  devices []*device.Device,
  options CollectionOptions,
) (out map[*device.Device]model.Result, err error) {
  out = make(map[*device.Device]model.Result, len(devices))

  log.Debug().
    Array("Devices", utils.ToZeroLogArray(devices)).
    Int("Attempt", options.attempt).
    Msg("Probing devices")

  var ctx context.Context
  var cancel func()

  if options.TimeoutPerAttempt > 0 {
    ctx, cancel = context.WithTimeout(parentCtx, options.TimeoutPerAttempt)
  } else {
    ctx, cancel = context.WithCancel(parentCtx)
  }

  defer cancel()

  resultCh := make(chan model.DeviceResult)

  go func() {
    err = probeDevices(ctx, devices, resultCh)
    close(resultCh)
  }()

  for v := range resultCh {
    log.Trace().
      Stringer("Device", v.Device).
      Stringer("Result", v.Result).
      Msg("Received result for device")

    out[v.Device] = v.Result
  }

  // analyze results, and retry if needed
  var failedDevices []*device.Device

  for _, dev := range devices {
    if result, ok := out[dev]; ok && result.Error != nil {
      failedDevices = append(failedDevices, dev)

      log.Debug().
        Stringer("Device", dev).
        Int("RetriesLeft", options.MaxRetries).
        Err(result.Error).
        Msg("Probe failed for device")
    } else if !ok {
      failedDevices = append(failedDevices, dev)
      out[dev] = model.Result{Error: ctx.Err()}

      log.Debug().
        Stringer("Device", dev).
        Int("RetriesLeft", options.MaxRetries).
        Err(err).
        Msg("No answer from device")
    }
  }

  if len(failedDevices) == 0 || options.MaxRetries <= 0 {
    return out, err
  }

  if options.BackoffFactor > 0 {
    backoff := options.BackoffFactor << int64(options.attempt)

    if backoff < 0 {
      backoff = DefaultBackoffFactor
    }

    log.Trace().
      Dur("Backoff", backoff).
      Msg("Backing off before attempting retry")

    select {
    case <-parentCtx.Done():
      log.Trace().Err(parentCtx.Err()).Msg("Retry aborted by context cancel")
      return out, parentCtx.Err()
    case <-time.After(backoff):
    }
  }

  options.MaxRetries -= 1
  options.attempt += 1

  retryOutput, err := ProbeWithOptions(parentCtx, failedDevices, options)

  // merge old and new outputs
  for failedDevice, result := range retryOutput {
    out[failedDevice] = result
  }

  return out, err
}

// Failed returns the devices of a probe which did not answer.
func Failed(results map[*device.Device]model.Result) []*device.Device {
  var out []*device.Device

  for dev, res := range results {
    if res.Error != nil {
      out = append(out, dev)
    }
  }

  return out
}
