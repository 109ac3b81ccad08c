// Package bench binds the devices under test of a test bench to their transports.
package bench

import (
  "errors"
  "fmt"
  "reflect"
  "sort"
  "strconv"

  "github.com/robertof/go-blecli-bench/device"
  "github.com/robertof/go-blecli-bench/transport"
  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"
  "golang.org/x/sync/errgroup"
)

var (
  ErrUnknownDevice = errors.New("unknown device")
  ErrDuplicateDevice = errors.New("duplicate device")
)

// Binding attaches a device identifier to the transport reaching it.
type Binding struct {
  ID string
  Name string
  Transport transport.Transport
  Options device.Options
}

type Bench struct {
  bindings map[string]Binding
  devices map[string]*device.Device
  ids []string
}

func New(bindings ...Binding) (*Bench, error) {
  b := &Bench{
    bindings: make(map[string]Binding),
    devices: make(map[string]*device.Device),
  }

  for _, binding := range bindings {
    if binding.ID == "" {
      return nil, fmt.Errorf("%w: empty identifier", ErrUnknownDevice)
    }

    if binding.Transport == nil {
      return nil, fmt.Errorf("device %q has no transport", binding.ID)
    }

    if _, ok := b.bindings[binding.ID]; ok {
      return nil, fmt.Errorf("%w: %q", ErrDuplicateDevice, binding.ID)
    }

    if binding.Name == "" {
      binding.Name = binding.ID
    }

    b.bindings[binding.ID] = binding
    b.devices[binding.ID] = device.NewWithOptions(binding.ID, binding.Transport, binding.Options)
  }

  b.ids = sortIDs(maps.Keys(b.bindings))

  return b, nil
}

// sortIDs orders identifiers numerically when they are numbers, lexically otherwise.
func sortIDs(ids []string) []string {
  sort.Slice(ids, func(i, j int) bool {
    a, errA := strconv.Atoi(ids[i])
    b, errB := strconv.Atoi(ids[j])

    switch {
    case errA == nil && errB == nil:
      return a < b
    case errA == nil:
      return true
    case errB == nil:
      return false
    default:
      return ids[i] < ids[j]
    }
  })

  return ids
}

// Device returns the proxy of a device. The same proxy is returned on every call.
func (b *Bench) Device(id string) (*device.Device, error) {
  d, ok := b.devices[id]
  if !ok {
    return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, id)
  }

  return d, nil
}

// IDs returns the device identifiers in bench order.
func (b *Bench) IDs() []string {
  return append([]string(nil), b.ids...)
}

func (b *Bench) Len() int {
  return len(b.ids)
}

func (b *Bench) Name(id string) string {
  return b.bindings[id].Name
}

// Close closes every transport of the bench, in parallel. Transports shared between devices
// are closed once, even when every device decorates them on its own.
func (b *Bench) Close() error {
  var g errgroup.Group
  seen := make(map[any]bool)

  for _, id := range b.ids {
    t := b.bindings[id].Transport
    inner := transport.Innermost(t)

    if reflect.TypeOf(inner).Comparable() {
      if seen[inner] {
        continue
      }
      seen[inner] = true
    }

    id := id
    g.Go(func() error {
      if err := transport.Close(t); err != nil {
        log.Warn().Err(err).Str("Device", id).Msg("bench: failed to close transport")
        return fmt.Errorf("closing transport of %q: %w", id, err)
      }

      return nil
    })
  }

  return g.Wait()
}
