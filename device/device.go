package device

import (
  "context"
  "fmt"

  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/transport"
)

// Firmware command suites.
const (
  ModuleBle = "ble"
  ModuleGap = "gap"
  ModuleGattClient = "gattClient"
  ModuleGattServer = "gattServer"
  ModuleSecurityManager = "securityManager"
)

// Options control how commands are written and how replies are read.
type Options struct {
  Args command.ArgPolicy
  Trailer command.TrailerPolicy
}

// Device is the proxy of a single device under test. It owns nothing but its identifier: the
// transport is shared and belongs to whoever created it.
type Device struct {
  id string
  transport transport.Transport
  options Options
}

func New(id string, t transport.Transport) *Device {
  return NewWithOptions(id, t, Options{})
}

func NewWithOptions(id string, t transport.Transport, options Options) *Device {
  if t == nil {
    panic("device.New called with a nil transport")
  }

  return &Device{
    id: id,
    transport: t,
    options: options,
  }
}

func (d *Device) ID() string {
  return d.id
}

func (d *Device) Options() Options {
  return d.options
}

func (d *Device) String() string {
  return fmt.Sprintf("device[id=%q]", d.id)
}

// Command runs "<module> <cmd> <args...>" on the device and decodes its reply. Transport
// errors are returned untouched; a reply with a non-zero status is not an error.
func (d *Device) Command(ctx context.Context, module, cmd string, args ...string) (command.Result, error) {
  text, err := command.Format(d.options.Args, module, cmd, args...)
  if err != nil {
    return command.Result{}, err
  }

  resp, err := d.transport.Command(ctx, d.id, text)
  if err != nil {
    return command.Result{}, err
  }

  var lines []string
  if resp != nil {
    lines = resp.Lines
  }

  return command.ParseResponse(d.options.Trailer, lines)
}

func (d *Device) Ble(ctx context.Context, cmd string, args ...string) (command.Result, error) {
  return d.Command(ctx, ModuleBle, cmd, args...)
}

func (d *Device) Gap(ctx context.Context, cmd string, args ...string) (command.Result, error) {
  return d.Command(ctx, ModuleGap, cmd, args...)
}

func (d *Device) GattClient(ctx context.Context, cmd string, args ...string) (command.Result, error) {
  return d.Command(ctx, ModuleGattClient, cmd, args...)
}

func (d *Device) GattServer(ctx context.Context, cmd string, args ...string) (command.Result, error) {
  return d.Command(ctx, ModuleGattServer, cmd, args...)
}

func (d *Device) SecurityManager(ctx context.Context, cmd string, args ...string) (command.Result, error) {
  return d.Command(ctx, ModuleSecurityManager, cmd, args...)
}
