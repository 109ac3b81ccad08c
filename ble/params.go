package ble

import (
  "fmt"
  "slices"
  "strconv"
  "strings"

  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/robertof/go-blecli-bench/command"
)

type ConnParams string

const (
  ConnParamsDefault     ConnParams = "default"
  ConnParamsPowerSaving ConnParams = "power-saving"
)

// *flag.Value
func (c *ConnParams) String() string {
  return string(*c)
}

func (c *ConnParams) Set(v string) error {
  if v == "" {
    *c = ConnParamsDefault
    return nil
  }

  allParams := []ConnParams{ConnParamsDefault, ConnParamsPowerSaving}
  p := ConnParams(v)

  if !slices.Contains(allParams, p) {
    return fmt.Errorf("unknown connection param %v (must be one of %v)", p, allParams)
  }

  *c = p
  return nil
}

func (c ConnParams) AdapterOptions() cmd.LECreateConnection {
  p := cmd.LECreateConnection{
    LEScanInterval:        0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
    LEScanWindow:          0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
    InitiatorFilterPolicy: 0x00,      // White list is not used
    PeerAddressType:       0x00,      // Public Device Address
    PeerAddress:           [6]byte{}, //
    OwnAddressType:        0x00,      // Public Device Address
    ConnIntervalMin:       0x0006,    // 0x0006 - 0x0C80; N * 1.25 msec
    ConnIntervalMax:       0x0006,    // 0x0006 - 0x0C80; N * 1.25 msec
    ConnLatency:           0x0000,    // 0x0000 - 0x01F3; N * 1.25 msec
    SupervisionTimeout:    0x0048,    // 0x000A - 0x0C80; N * 10 msec
    MinimumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
    MaximumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
  }

  switch c {
  case ConnParamsDefault:
    break
  case ConnParamsPowerSaving:
    // https://developer.apple.com/accessories/Accessory-Design-Guidelines.pdf
    // section "Connection Parameters"
    // - supervision timeout between 6 to 18 secs
    // - interval max * (latency + 1) <= 6 secs
    // - supervision timeout > interval max * (latency + 1) * 3
    p.ConnIntervalMin    = 0x00f0 // 300ms
    p.ConnIntervalMax    = 0x00f0 // 300ms
    p.ConnLatency        = 0x0014 // 20
    p.SupervisionTimeout = 0x0708 // 18s
  default:
    panic("unknown Bluetooth connection param: " + c)
  }

  return p
}

// Preferred returns the preset as the firmware preferred connection parameters.
func (c ConnParams) Preferred() PreferredConnParams {
  return PreferredFromAdapterOptions(c.AdapterOptions())
}

// PreferredConnParams mirrors Gap::ConnectionParams_t. Intervals are in 1.25ms units, the
// supervision timeout in 10ms units.
type PreferredConnParams struct {
  MinConnectionInterval uint16
  MaxConnectionInterval uint16
  SlaveLatency uint16
  ConnectionSupervisionTimeout uint16
}

func PreferredFromAdapterOptions(o cmd.LECreateConnection) PreferredConnParams {
  return PreferredConnParams{
    MinConnectionInterval: o.ConnIntervalMin,
    MaxConnectionInterval: o.ConnIntervalMax,
    SlaveLatency: o.ConnLatency,
    ConnectionSupervisionTimeout: o.SupervisionTimeout,
  }
}

// ParsePreferredConnParams reads the "min,max,latency,timeout" form taken by the firmware.
func ParsePreferredConnParams(s string) (PreferredConnParams, error) {
  parts := strings.Split(s, ",")
  if len(parts) != 4 {
    return PreferredConnParams{}, fmt.Errorf("expected min,max,latency,timeout, got %q", s)
  }

  var values [4]uint16
  for i, part := range parts {
    v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 16)
    if err != nil {
      return PreferredConnParams{}, fmt.Errorf("invalid connection parameter %q: %w", part, err)
    }
    values[i] = uint16(v)
  }

  return PreferredConnParams{values[0], values[1], values[2], values[3]}, nil
}

func (p PreferredConnParams) String() string {
  return fmt.Sprintf(
    "%d,%d,%d,%d",
    p.MinConnectionInterval,
    p.MaxConnectionInterval,
    p.SlaveLatency,
    p.ConnectionSupervisionTimeout,
  )
}

func preferredConnParamsFromValue(v command.Value) (PreferredConnParams, error) {
  fields := []string{
    "minConnectionInterval",
    "maxConnectionInterval",
    "slaveLatency",
    "connectionSupervisionTimeout",
  }

  var values [4]uint16
  for i, field := range fields {
    n, ok := v.Get(field).Int()
    if !ok || n < 0 || n > 0xffff {
      return PreferredConnParams{}, fmt.Errorf("%w: %s is %v", command.ErrDecode, field, v.Get(field))
    }
    values[i] = uint16(n)
  }

  return PreferredConnParams{values[0], values[1], values[2], values[3]}, nil
}
