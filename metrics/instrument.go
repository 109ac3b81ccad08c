// Package metrics exports the activity of a bench to Prometheus: commands sent to the devices,
// device health and test outcomes.
package metrics

import (
  "context"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/transport"
  "github.com/robertof/go-blecli-bench/utils"
)

const (
  OutcomeSuccess = "success"
  OutcomeFailure = "failure"
  OutcomeMalformed = "malformed"
  OutcomeTransportError = "transport_error"
  OutcomeCanceled = "canceled"
)

var (
  commandsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "blecli_bench_commands_total",
    Help: "Commands sent to the devices, by outcome.",
  }, []string{"device", "module", "command", "outcome"})

  commandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
    Name: "blecli_bench_command_duration_seconds",
    Help: "Time from sending a command to receiving its full reply.",
    Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
  }, []string{"module"})
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    commandsCounter,
    commandDuration,
  )
}

type instrumented struct {
  transport.Transport
  trailer command.TrailerPolicy
}

// Instrument wraps t so that every command is counted and timed. Replies are decoded with the
// given trailer policy to tell successful commands from failed ones.
func Instrument(t transport.Transport, trailer command.TrailerPolicy) transport.Transport {
  return &instrumented{Transport: t, trailer: trailer}
}

func outcomeOf(trailer command.TrailerPolicy, resp *transport.Response, err error) string {
  if err != nil {
    if utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
      return OutcomeCanceled
    }

    return OutcomeTransportError
  }

  if resp == nil {
    return OutcomeMalformed
  }

  res, err := command.ParseResponse(trailer, resp.Lines)
  if err != nil {
    return OutcomeMalformed
  }

  if res.Success() {
    return OutcomeSuccess
  }

  return OutcomeFailure
}

func (i *instrumented) Command(ctx context.Context, deviceID string, text string) (*transport.Response, error) {
  module, cmd := transport.Split(text)

  start := time.Now()
  resp, err := i.Transport.Command(ctx, deviceID, text)

  commandDuration.WithLabelValues(module).Observe(time.Since(start).Seconds())
  commandsCounter.WithLabelValues(deviceID, module, cmd, outcomeOf(i.trailer, resp, err)).Inc()

  return resp, err
}

func (i *instrumented) Unwrap() transport.Transport {
  return i.Transport
}

func (i *instrumented) Close() error {
  return transport.Close(i.Transport)
}
