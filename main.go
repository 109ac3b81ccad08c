package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-blecli-bench/ble"
	"github.com/robertof/go-blecli-bench/bench"
	_ "github.com/robertof/go-blecli-bench/cases"
	"github.com/robertof/go-blecli-bench/collector"
	"github.com/robertof/go-blecli-bench/collector/model"
	"github.com/robertof/go-blecli-bench/command"
	"github.com/robertof/go-blecli-bench/device"
	"github.com/robertof/go-blecli-bench/metrics"
	"github.com/robertof/go-blecli-bench/testcase"
	"github.com/robertof/go-blecli-bench/transport"
	"github.com/robertof/go-blecli-bench/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  if cfg.ListCases {
    listCases()
    return
  }

  tests, err := testcase.Select(cfg.Cases...)
  if err != nil {
    log.Fatal().Err(err).Msg("Invalid test selection")
  }

  registry := prometheus.NewRegistry()
  metrics.RegisterMetrics(registry)
  ble.RegisterMetrics(registry)

  b := openBench(cfg)

  ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
  defer stop()

  if cfg.DiscoverDevices {
    doDeviceDiscovery(ctx, cfg, b)
    closeBench(b)
    return
  }

  log.Info().
    Strs("Devices", b.IDs()).
    Stringer("Args", cfg.Args).
    Stringer("Trailer", cfg.Trailer).
    Msg("Starting with the specified configuration")

  initialResults := probeBench(ctx, cfg, b)

  if cfg.ProbeOnly {
    closeBench(b)
    return
  }

  if cfg.Watch {
    watch(ctx, cfg, b, initialResults, registry)
    closeBench(b)
    return
  }

  var mu sync.Mutex
  var results []testcase.Result

  metrics.RegisterResultsCollector(func() []testcase.Result {
    mu.Lock()
    defer mu.Unlock()

    return results
  }, registry)

  if cfg.MetricsBindAddress != "" {
    go serveMetrics(cfg, registry)
  }

  testcase.RunAll(ctx, b, tests, func(res testcase.Result) {
    mu.Lock()
    results = append(results, res)
    mu.Unlock()
  })

  mu.Lock()
  failed := summarize(results)
  mu.Unlock()
  closeBench(b)

  if failed > 0 {
    os.Exit(1)
  }
}

func listCases() {
  for _, t := range testcase.Registered() {
    log.Info().
      Str("Name", t.Name).
      Str("Title", t.Title).
      Str("Status", t.Status).
      Str("Type", t.Type).
      Strs("Feature", t.Feature).
      Int("Devices", t.Requirements.Count).
      Msg("Test case")
  }
}

func openBench(cfg config) *bench.Bench {
  var b *bench.Bench
  var err error

  decorate := func(trailer command.TrailerPolicy) func(transport.Transport) transport.Transport {
    return func(t transport.Transport) transport.Transport {
      return metrics.Instrument(transport.Logged(t), trailer)
    }
  }

  if cfg.BenchFile != "" {
    inv, err := bench.LoadInventory(cfg.BenchFile)
    if err != nil {
      log.Fatal().Err(err).Msg("Failed to load bench inventory")
    }

    b, err = inv.Open(deviceFactories, decorate(inv.Trailer))
    if err != nil {
      log.Fatal().Err(err).Msg("Failed to open bench")
    }

    return b
  }

  bindings := make([]bench.Binding, len(cfg.Bindings))

  for i, binding := range cfg.Bindings {
    binding.Transport = decorate(cfg.Trailer)(binding.Transport)
    binding.Options = device.Options{Args: cfg.Args, Trailer: cfg.Trailer}
    bindings[i] = binding
  }

  b, err = bench.New(bindings...)
  if err != nil {
    log.Fatal().Err(err).Msg("Invalid bench")
  }

  return b
}

func closeBench(b *bench.Bench) {
  if err := b.Close(); err != nil {
    log.Error().Err(err).Msg("Failed to close the bench")
  }
}

func benchDevices(b *bench.Bench) []*device.Device {
  ids := b.IDs()
  out := make([]*device.Device, 0, len(ids))

  for _, id := range ids {
    dev, err := b.Device(id)
    if err != nil {
      panic(err)
    }

    out = append(out, dev)
  }

  return out
}

func collectionOptions(cfg config) collector.CollectionOptions {
  return collector.CollectionOptions{
    TimeoutPerAttempt: cfg.ProbeTimeout,
    MaxRetries: cfg.MaxRetries,
    BackoffFactor: cfg.Backoff,
  }
}

// probeBench checks that every device of the bench answers, and refuses to go on otherwise.
func probeBench(ctx context.Context, cfg config, b *bench.Bench) map[*device.Device]model.Result {
  devices := benchDevices(b)

  log.Info().
    Array("Devices", utils.ToZeroLogArray(devices)).
    Dur("TimeoutSec", cfg.ProbeTimeout).
    Msg("Probing the devices of the bench")

  results, err := collector.ProbeWithOptions(ctx, devices, collectionOptions(cfg))

  if err != nil && !errors.Is(err, context.DeadlineExceeded) {
    closeBench(b)
    log.Fatal().Err(err).Msg("Failed to probe devices")
  }

  for _, dev := range devices {
    result := results[dev]

    if result.Error != nil {
      log.Error().
        Stringer("Device", dev).
        Str("Name", b.Name(dev.ID())).
        Err(result.Error).
        Msg("Device did not answer")
    } else {
      log.Info().
        Stringer("Device", dev).
        Str("Name", b.Name(dev.ID())).
        Str("Version", result.Version).
        Msg("Device is alive")
    }
  }

  if failed := collector.Failed(results); len(failed) > 0 {
    closeBench(b)
    log.Fatal().
      Array("Devices", utils.ToZeroLogArray(failed)).
      Msg("At least one device did not answer, refusing to start")
  }

  return results
}

func watch(
  ctx context.Context,
  cfg config,
  b *bench.Bench,
  initialResults map[*device.Device]model.Result,
  registry *prometheus.Registry,
) {
  coll := collector.NewRecurring(benchDevices(b))
  coll.IdleTimeout = cfg.ProbeIdleTimeout
  coll.Update(initialResults)

  metrics.RegisterCollector(
    func() (map[*device.Device]model.Result, time.Time) {
      // no way to get the HTTP request context from the collector unfortunately :(
      return coll.WaitLatest(ctx)
    },
    registry,
  )

  go coll.Start(ctx, cfg.ProbeInterval, collectionOptions(cfg))
  go serveMetrics(cfg, registry)

  <-ctx.Done()
}

func serveMetrics(cfg config, registry *prometheus.Registry) {
  log.Info().
      Str("ListenAddress", cfg.MetricsBindAddress).
      Msg("Starting Prometheus server")

  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  if err := http.ListenAndServe(cfg.MetricsBindAddress, mux); err != nil {
      log.Fatal().Err(err).Msg("Unable to bind on requested address")
  }
}

// summarize logs the outcome of every test and returns how many failed.
func summarize(results []testcase.Result) (failed int) {
  counts := make(map[testcase.Outcome]int)

  for _, res := range results {
    counts[res.Outcome] += 1

    event := log.Info()
    if res.Outcome == testcase.OutcomeFail {
      event = log.Error().Strs("Errors", res.Errors)
    }

    event.
      Str("Test", res.Name).
      Stringer("Outcome", res.Outcome).
      Dur("ElapsedSec", res.Duration).
      Msg("Result")
  }

  log.Info().
    Int("Passed", counts[testcase.OutcomePass]).
    Int("Failed", counts[testcase.OutcomeFail]).
    Int("Skipped", counts[testcase.OutcomeSkipped]).
    Msg("Test run finished")

  return counts[testcase.OutcomeFail]
}
