package bench

import (
  "fmt"
  "os"

  "github.com/pkg/errors"
  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/device"
  "github.com/robertof/go-blecli-bench/transport"
  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"
  "gopkg.in/yaml.v3"
)

// Inventory describes a bench in YAML:
//
//  args: strict
//  trailer: return-code
//  devices:
//    - id: "1"
//      transport: serial
//      spec:
//        port: /dev/ttyACM0
//    - id: "2"
//      transport: mqtt
//      spec:
//        broker: tcp://localhost:1883
type Inventory struct {
  Args command.ArgPolicy `yaml:"args"`
  Trailer command.TrailerPolicy `yaml:"trailer"`
  Devices []InventoryDevice `yaml:"devices"`
}

type InventoryDevice struct {
  ID string `yaml:"id"`
  Name string `yaml:"name"`
  Transport string `yaml:"transport"`
  Spec map[string]string `yaml:"spec"`
}

func ParseInventory(data []byte) (*Inventory, error) {
  var inv Inventory

  if err := yaml.Unmarshal(data, &inv); err != nil {
    return nil, errors.Wrap(err, "invalid bench inventory")
  }

  return &inv, nil
}

func LoadInventory(path string) (*Inventory, error) {
  data, err := os.ReadFile(path)
  if err != nil {
    return nil, errors.Wrapf(err, "failed to read bench inventory %s", path)
  }

  inv, err := ParseInventory(data)
  if err != nil {
    return nil, errors.Wrapf(err, "in %s", path)
  }

  return inv, nil
}

// Open creates the transports of every device with the factory named by its entry, applying
// decorators in order. Transports already opened are closed when a later one fails.
func (inv *Inventory) Open(
  factories map[string]device.Factory,
  decorators ...func(transport.Transport) transport.Transport,
) (*Bench, error) {
  var bindings []Binding

  closeAll := func() {
    for _, b := range bindings {
      transport.Close(b.Transport)
    }
  }

  for _, entry := range inv.Devices {
    factory, ok := factories[entry.Transport]
    if !ok {
      closeAll()
      return nil, fmt.Errorf("device %q: unknown transport %q (must be one of %v)", entry.ID, entry.Transport, maps.Keys(factories))
    }

    spec := device.DeviceSpec{}
    for k, v := range entry.Spec {
      spec[k] = v
    }

    spec[device.DeviceSpecFieldID] = entry.ID
    if _, ok := spec[device.DeviceSpecFieldTrailer]; !ok {
      spec[device.DeviceSpecFieldTrailer] = inv.Trailer.String()
    }
    if entry.Name != "" {
      spec[device.DeviceSpecFieldName] = entry.Name
    }

    t, err := factory.FromSpec(spec)
    if err != nil {
      closeAll()
      return nil, errors.Wrapf(err, "device %q", entry.ID)
    }

    for _, decorate := range decorators {
      t = decorate(t)
    }

    log.Debug().
      Str("Device", entry.ID).
      Str("Transport", entry.Transport).
      Msg("bench: device bound")

    bindings = append(bindings, Binding{
      ID: entry.ID,
      Name: spec.Name(),
      Transport: t,
      Options: device.Options{Args: inv.Args, Trailer: inv.Trailer},
    })
  }

  b, err := New(bindings...)
  if err != nil {
    closeAll()
    return nil, err
  }

  return b, nil
}
