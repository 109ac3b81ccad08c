package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/robertof/go-blecli-bench/bench"
	"github.com/robertof/go-blecli-bench/collector"
	"github.com/robertof/go-blecli-bench/command"
	"github.com/robertof/go-blecli-bench/device"
	"github.com/robertof/go-blecli-bench/transport/mqtt"
	"github.com/robertof/go-blecli-bench/transport/serial"
	"golang.org/x/exp/maps"
)

type config struct {
  Debug, Trace bool
  BenchFile string
  Cases stringList
  ListCases bool
  DiscoverDevices bool
  ProbeOnly bool
  Watch bool
  MetricsBindAddress string
  MaxRetries int
  ProbeTimeout time.Duration
  Backoff time.Duration
  ProbeInterval, ProbeIdleTimeout time.Duration
  ScanDuration time.Duration
  ScanFilter string
  Args command.ArgPolicy
  Trailer command.TrailerPolicy
  Bindings []bench.Binding
}

type stringList []string

func (l *stringList) String() string {
  return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
  *l = append(*l, v)
  return nil
}

// boundDeviceList collects the specs of the devices given with the flag named after their
// factory. Transports are opened once every flag has been parsed.
type boundDeviceList struct {
  device.Factory
  name string
  list *[]boundSpec
}

type boundSpec struct {
  factory *boundDeviceList
  spec device.DeviceSpec
}

var deviceFactories = map[string]device.Factory {
  "serial": &serial.Factory{},
  "mqtt": &mqtt.Factory{},
}

func (d *boundDeviceList) String() string {
  return ""
}

func (d *boundDeviceList) Set(v string) error {
  ds := device.NewDeviceSpec(v)

  if ds.ID() == "" {
    return fmt.Errorf("missing %s", device.DeviceSpecFieldID)
  }

  *d.list = append(*d.list, boundSpec{factory: d, spec: ds})

  return nil
}

func (b boundSpec) open(trailer command.TrailerPolicy) (bench.Binding, error) {
  if _, ok := b.spec[device.DeviceSpecFieldTrailer]; !ok {
    b.spec[device.DeviceSpecFieldTrailer] = trailer.String()
  }

  t, err := b.factory.FromSpec(b.spec)
  if err != nil {
    return bench.Binding{}, fmt.Errorf(
      "failed to create %s transport for device %s: %w", b.factory.name, b.spec.ID(), err)
  }

  return bench.Binding{
    ID: b.spec.ID(),
    Name: b.spec.Name(),
    Transport: t,
  }, nil
}

func ParseArgs() config {
  var cfg config
  var specs []boundSpec

  flag.StringVar(&cfg.BenchFile, "bench", "", "YAML file describing the devices of the bench")
  flag.Var(&cfg.Cases, "case", "Name of a test case to run, may be repeated. Defaults to every test case")
  flag.BoolVar(&cfg.ListCases, "list", false, "List the available test cases and quit")
  flag.BoolVar(&cfg.DiscoverDevices, "discover", false,
    "List serial ports, probe the devices of the bench and scan the air with the first one, then quit")
  flag.BoolVar(&cfg.ProbeOnly, "probe", false, "Probe the devices of the bench and quit")
  flag.BoolVar(&cfg.Watch, "watch", false,
    "Keep probing the devices of the bench and export their health (requires -metrics-bind)")
  flag.StringVar(&cfg.MetricsBindAddress, "metrics-bind", "",
    "Where the Prometheus endpoint will bind to, disabled when empty")
  flag.IntVar(&cfg.MaxRetries, "max-retries", collector.DefaultMaxRetries, "Max number of probe retries")
  flag.DurationVar(&cfg.ProbeTimeout, "timeout", collector.DefaultTimeoutPerAttempt,
    "Timeout of a probe (per retry attempt)")
  flag.DurationVar(&cfg.Backoff, "backoff", collector.DefaultBackoffFactor,
    "Exponential backoff factor for retries")
  flag.DurationVar(&cfg.ProbeInterval, "interval", 60 * time.Second,
    "How frequently devices are probed in -watch mode")
  flag.DurationVar(&cfg.ProbeIdleTimeout, "idle-timeout", -1,
    "Timeout after which probing is suspended if nobody reads the metrics. Defaults to 3 * interval")
  flag.DurationVar(&cfg.ScanDuration, "scan-duration", 5 * time.Second, "Duration of the -discover scan")
  flag.StringVar(&cfg.ScanFilter, "scan-filter", "",
    "Address or hex advertising payload the -discover scan looks for. The air is not scanned when empty")
  flag.Var(&cfg.Args, "args", "Command argument policy (one of 'strict', 'verbatim' or 'quoted')")
  flag.Var(&cfg.Trailer, "trailer", "Reply trailer policy (one of 'return-code', 'parsed' or 'none')")
  flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  flag.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  names := maps.Keys(deviceFactories)
  sort.Strings(names)

  for _, factoryName := range names {
    factory := deviceFactories[factoryName]

    boundList := &boundDeviceList{
      name:    factoryName,
      Factory: factory,
      list:    &specs,
    }

    help := "Device spec for a device reached through " + factoryName +
      ", in the form of `key=value,key=value`."

    if docs, ok := factory.(device.FactoryDocs); ok {
      help += "\n" + docs.Help()
    }

    flag.Var(boundList, factoryName, help)
  }

  flag.Parse()

  if cfg.ProbeIdleTimeout < 0 {
    cfg.ProbeIdleTimeout = cfg.ProbeInterval * 3
  }

  if cfg.ScanDuration <= 0 || cfg.ScanDuration > 65535 * time.Millisecond {
    fmt.Fprintln(os.Stderr, "Error: -scan-duration must be between 1ms and 65.535s")
    os.Exit(1)
  }

  if cfg.Watch && cfg.MetricsBindAddress == "" {
    fmt.Fprintln(os.Stderr, "Error: -watch requires -metrics-bind")
    flag.Usage()
    os.Exit(1)
  }

  if cfg.BenchFile != "" && len(specs) > 0 {
    fmt.Fprintln(os.Stderr, "Error: -bench cannot be combined with device flags")
    flag.Usage()
    os.Exit(1)
  }

  if !cfg.ListCases && !cfg.DiscoverDevices && cfg.BenchFile == "" && len(specs) == 0 {
    fmt.Fprintln(os.Stderr, "Error: at least one device is required!")
    flag.Usage()
    os.Exit(1)
  }

  if cfg.ListCases {
    return cfg
  }

  for _, spec := range specs {
    binding, err := spec.open(cfg.Trailer)
    if err != nil {
      fmt.Fprintln(os.Stderr, "Error:", err)
      os.Exit(1)
    }

    cfg.Bindings = append(cfg.Bindings, binding)
  }

  return cfg
}
