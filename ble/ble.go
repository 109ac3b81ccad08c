// Package ble exposes the commands of the BLE firmware as typed calls over a device proxy.
package ble

import (
  "context"
  "errors"
  "fmt"

  "github.com/go-ble/ble"
  pkgerrors "github.com/pkg/errors"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/device"
  "github.com/rs/zerolog/log"
)

// ErrCommandFailed is returned when the firmware replied with a non-zero status.
var ErrCommandFailed = errors.New("command failed")

type Advertisement = ble.Advertisement
type UUID = ble.UUID

var (
  failedCommandsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "blecli_bench_ble_failed_commands_total",
  }, []string{"command"})
  scansCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "blecli_bench_ble_scans_total",
  })
  scanRecordsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "blecli_bench_ble_scan_records_total",
  })
)

func UUID16(i uint16) ble.UUID {
  return ble.UUID16(i)
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    failedCommandsCounter,
    scansCounter,
    scanRecordsCounter,
  )
}

// CommandError carries the reply of a command which did not succeed.
type CommandError struct {
  Module string
  Command string
  Result command.Result
}

func (e *CommandError) Error() string {
  msg, _ := e.Result.ErrorMessage()
  return fmt.Sprintf("%s %s: %v (status %d): %s", e.Module, e.Command, ErrCommandFailed, e.Result.Status(), msg)
}

func (e *CommandError) Unwrap() error {
  return ErrCommandFailed
}

// run sends a command and turns a non-successful reply into a *CommandError.
func run(ctx context.Context, dev *device.Device, module, cmd string, args ...string) (command.Result, error) {
  res, err := dev.Command(ctx, module, cmd, args...)
  if err != nil {
    failedCommandsCounter.WithLabelValues(cmd).Inc()
    return res, pkgerrors.Wrapf(err, "%s: %s %s", dev.ID(), module, cmd)
  }

  if !res.Success() {
    failedCommandsCounter.WithLabelValues(cmd).Inc()
    return res, &CommandError{Module: module, Command: cmd, Result: res}
  }

  return res, nil
}

// Handle is an initialized BLE stack on a device.
type Handle struct {
  dev *device.Device
  gap *Gap
}

// Init brings up the BLE stack of a device.
func Init(ctx context.Context, dev *device.Device) (*Handle, error) {
  log.Debug().
    Str("Device", dev.ID()).
    Msg("Initializing Bluetooth stack")

  if _, err := run(ctx, dev, device.ModuleBle, "init"); err != nil {
    return nil, fmt.Errorf("failed to init bluetooth stack: %w", err)
  }

  return &Handle{
    dev: dev,
    gap: NewGap(dev),
  }, nil
}

func (h *Handle) Device() *device.Device {
  return h.dev
}

func (h *Handle) Gap() *Gap {
  return h.gap
}

// Reset brings the stack back to its state right after Init.
func (h *Handle) Reset(ctx context.Context) error {
  _, err := run(ctx, h.dev, device.ModuleBle, "reset")
  return err
}

func (h *Handle) Version(ctx context.Context) (string, error) {
  return Version(ctx, h.dev)
}

// Version asks a device for its firmware version. The stack does not need to be initialized.
func Version(ctx context.Context, dev *device.Device) (string, error) {
  res, err := run(ctx, dev, device.ModuleBle, "getVersion")
  if err != nil {
    return "", err
  }

  v, ok := res.Payload().Str()
  if !ok {
    return "", fmt.Errorf("%w: version is %v, not a string", command.ErrDecode, res.Payload().Kind())
  }

  return v, nil
}

func (h *Handle) Shutdown(ctx context.Context) error {
  log.Debug().
    Str("Device", h.dev.ID()).
    Msg("Shutting down Bluetooth stack")

  _, err := run(ctx, h.dev, device.ModuleBle, "shutdown")
  return err
}
