package mqtt

import (
  "context"
  "fmt"
  "sync"

  "github.com/robertof/go-blecli-bench/device"
  "github.com/robertof/go-blecli-bench/transport"
)

const (
  specFieldBroker = "broker"
  specFieldPrefix = "prefix"
  specFieldRemote = "remote"
  specFieldClientID = "client-id"
  specFieldUsername = "username"
  specFieldPassword = "password"
  specFieldQoS = "qos"
  specFieldConnectTimeout = "connect-timeout"
)

// Factory shares one connection between every device reached through the same broker.
type Factory struct {
  // Overrides how connections are made, Dial when nil.
  Dial func(Options) (*Transport, error)

  mu sync.Mutex
  transports map[Options]*Transport
}

// remote routes commands to the name the agent knows the device by.
type remote struct {
  *Transport
  name string
}

func (r *remote) Command(ctx context.Context, _ string, text string) (*transport.Response, error) {
  return r.Transport.Command(ctx, r.name, text)
}

// Unwrap exposes the shared connection, so that it is closed once per bench.
func (r *remote) Unwrap() transport.Transport {
  return r.Transport
}

func (f *Factory) FromSpec(spec device.DeviceSpec) (transport.Transport, error) {
  options := Options{
    Broker: spec[specFieldBroker],
    ClientID: spec[specFieldClientID],
    Username: spec[specFieldUsername],
    Password: spec[specFieldPassword],
    TopicPrefix: spec[specFieldPrefix],
  }

  if options.Broker == "" {
    return nil, fmt.Errorf("missing %s", specFieldBroker)
  }

  qos, err := spec.Int(specFieldQoS, 0)
  if err != nil {
    return nil, err
  }

  if qos < 0 || qos > 2 {
    return nil, fmt.Errorf("invalid %s: %d", specFieldQoS, qos)
  }

  options.QoS = byte(qos)

  if options.ConnectTimeout, err = spec.Duration(specFieldConnectTimeout, DefaultConnectTimeout); err != nil {
    return nil, err
  }

  t, err := f.transportFor(options)
  if err != nil {
    return nil, err
  }

  if name := spec[specFieldRemote]; name != "" {
    return &remote{Transport: t, name: name}, nil
  }

  return t, nil
}

func (f *Factory) transportFor(options Options) (*Transport, error) {
  f.mu.Lock()
  defer f.mu.Unlock()

  if t, ok := f.transports[options]; ok {
    return t, nil
  }

  dial := f.Dial
  if dial == nil {
    dial = Dial
  }

  t, err := dial(options)
  if err != nil {
    return nil, err
  }

  if f.transports == nil {
    f.transports = make(map[Options]*Transport)
  }

  f.transports[options] = t

  return t, nil
}

func (f *Factory) Help() string {
  return `Supported parameters:
id (string, required): Identifier of the device under test (1, 2, ...)
name (string): Name of the device, defaults to its identifier
broker (string, required): URL of the MQTT broker (e.g. tcp://localhost:1883)
remote (string): Name of the device on the agent, defaults to its identifier
prefix (string): Topic prefix, defaults to "device"
client-id (string): MQTT client identifier, generated when empty
username (string), password (string): Broker credentials
qos (int): Quality of service of commands and responses (0, 1, 2)
connect-timeout (duration): Defaults to 10s`
}
