package ble

import (
  "context"
  "fmt"
  "net"
  "strconv"
  "strings"

  "github.com/go-ble/ble"
  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/device"
  "github.com/robertof/go-blecli-bench/utils"
  "github.com/rs/zerolog/log"
)

// Advertising data fields, as named by the firmware.
const (
  FieldFlags = "FLAGS"
  FieldCompleteLocalName = "COMPLETE_LOCAL_NAME"
  FieldShortenedLocalName = "SHORTENED_LOCAL_NAME"
  FieldComplete16BitServiceIDs = "COMPLETE_LIST_16BIT_SERVICE_IDS"
  FieldIncomplete16BitServiceIDs = "INCOMPLETE_LIST_16BIT_SERVICE_IDS"
  FieldTxPowerLevel = "TX_POWER_LEVEL"
  FieldManufacturerSpecificData = "MANUFACTURER_SPECIFIC_DATA"
  fieldRaw = "raw"
)

const (
  FlagLEGeneralDiscoverable = "LE_GENERAL_DISCOVERABLE"
  FlagLELimitedDiscoverable = "LE_LIMITED_DISCOVERABLE"
  FlagBREDRNotSupported = "BREDR_NOT_SUPPORTED"
)

const (
  AdvConnectableUndirected = "ADV_CONNECTABLE_UNDIRECTED"
  AdvConnectableDirected = "ADV_CONNECTABLE_DIRECTED"
  AdvScannableUndirected = "ADV_SCANNABLE_UNDIRECTED"
  AdvNonConnectableUndirected = "ADV_NON_CONNECTABLE_UNDIRECTED"
)

const (
  AddressTypePublic = "PUBLIC"
  AddressTypeRandom = "RANDOM"
  AddressTypeRandomStatic = "RANDOM_STATIC"
)

// Address is a device address as reported by the firmware.
type Address struct {
  Type string
  Value string
}

func (a Address) Addr() ble.Addr {
  return ble.NewAddr(a.Value)
}

func (a Address) HardwareAddr() (net.HardwareAddr, error) {
  return net.ParseMAC(a.Value)
}

// Equal compares addresses regardless of the case of their hex digits.
func (a Address) Equal(other string) bool {
  return strings.EqualFold(a.Value, other)
}

func (a Address) String() string {
  return a.Value
}

// State mirrors Gap::GapState_t.
type State struct {
  Advertising bool
  Connected bool
}

// Gap is the generic access profile of a device.
type Gap struct {
  dev *device.Device
}

func NewGap(dev *device.Device) *Gap {
  return &Gap{dev: dev}
}

func (g *Gap) run(ctx context.Context, cmd string, args ...string) (command.Result, error) {
  return run(ctx, g.dev, device.ModuleGap, cmd, args...)
}

func (g *Gap) exec(ctx context.Context, cmd string, args ...string) error {
  _, err := g.run(ctx, cmd, args...)
  return err
}

func (g *Gap) str(ctx context.Context, cmd string) (string, error) {
  res, err := g.run(ctx, cmd)
  if err != nil {
    return "", err
  }

  s, ok := res.Payload().Str()
  if !ok {
    return "", fmt.Errorf("%w: %s returned %v", command.ErrDecode, cmd, res.Payload())
  }

  return s, nil
}

func (g *Gap) Address(ctx context.Context) (Address, error) {
  res, err := g.run(ctx, "getAddress")
  if err != nil {
    return Address{}, err
  }

  value, ok := res.Payload().Get("address").Str()
  if !ok {
    return Address{}, fmt.Errorf("%w: getAddress returned %v", command.ErrDecode, res.Payload())
  }

  addrType, _ := res.Payload().Get("address_type").Str()

  return Address{Type: addrType, Value: value}, nil
}

func (g *Gap) State(ctx context.Context) (State, error) {
  res, err := g.run(ctx, "getState")
  if err != nil {
    return State{}, err
  }

  advertising, ok1 := res.Payload().Get("advertising").Bool()
  connected, ok2 := res.Payload().Get("connected").Bool()

  if !ok1 || !ok2 {
    return State{}, fmt.Errorf("%w: getState returned %v", command.ErrDecode, res.Payload())
  }

  return State{Advertising: advertising, Connected: connected}, nil
}

func (g *Gap) SetAdvertisingType(ctx context.Context, advType string) error {
  return g.exec(ctx, "setAdvertisingType", advType)
}

func (g *Gap) AdvertisingType(ctx context.Context) (string, error) {
  return g.str(ctx, "getAdvertisingType")
}

func (g *Gap) ClearAdvertisingPayload(ctx context.Context) error {
  return g.exec(ctx, "clearAdvertisingPayload")
}

func (g *Gap) AccumulateAdvertisingPayload(ctx context.Context, field string, values ...string) error {
  return g.exec(ctx, "accumulateAdvertisingPayload", append([]string{field}, values...)...)
}

func (g *Gap) AdvertisingPayload(ctx context.Context) (command.Value, error) {
  res, err := g.run(ctx, "getAdvertisingPayload")
  if err != nil {
    return command.Value{}, err
  }

  return res.Payload(), nil
}

// SetAdvertisingInterval sets the interval between two advertisements, in milliseconds.
func (g *Gap) SetAdvertisingInterval(ctx context.Context, ms uint16) error {
  return g.exec(ctx, "setAdvertisingInterval", strconv.Itoa(int(ms)))
}

func (g *Gap) StartAdvertising(ctx context.Context) error {
  return g.exec(ctx, "startAdvertising")
}

func (g *Gap) StopAdvertising(ctx context.Context) error {
  return g.exec(ctx, "stopAdvertising")
}

func (g *Gap) SetDeviceName(ctx context.Context, name string) error {
  return g.exec(ctx, "setDeviceName", name)
}

func (g *Gap) DeviceName(ctx context.Context) (string, error) {
  return g.str(ctx, "getDeviceName")
}

func (g *Gap) SetAppearance(ctx context.Context, appearance string) error {
  return g.exec(ctx, "setAppearance", appearance)
}

func (g *Gap) Appearance(ctx context.Context) (string, error) {
  return g.str(ctx, "getAppearance")
}

func (g *Gap) SetPreferredConnectionParams(ctx context.Context, p PreferredConnParams) error {
  return g.exec(ctx, "setPreferredConnectionParams", p.String())
}

func (g *Gap) PreferredConnectionParams(ctx context.Context) (PreferredConnParams, error) {
  res, err := g.run(ctx, "getPreferredConnectionParams")
  if err != nil {
    return PreferredConnParams{}, err
  }

  return preferredConnParamsFromValue(res.Payload())
}

func (g *Gap) SetActiveScanning(ctx context.Context, active bool) error {
  return g.exec(ctx, "setActiveScanning", strconv.FormatBool(active))
}

func (g *Gap) SetScanningPolicyMode(ctx context.Context, mode string) error {
  return g.exec(ctx, "setScanningPolicyMode", mode)
}

func (g *Gap) SetWhitelist(ctx context.Context, addresses ...Address) error {
  args := make([]string, 0, len(addresses) * 2)
  for _, a := range addresses {
    args = append(args, a.Type, a.Value)
  }

  return g.exec(ctx, "setWhitelist", args...)
}

func (g *Gap) SetAllowListedAddresses(ctx context.Context, addrType string, a []net.HardwareAddr) error {
  log.Debug().
    Str("Device", g.dev.ID()).
    Array("DeviceAddresses", utils.ToZeroLogArray(a)).
    Msg("Allow-listing the requested Bluetooth devices")

  addresses := make([]Address, len(a))
  for i, addr := range a {
    addresses[i] = Address{Type: addrType, Value: strings.ToUpper(addr.String())}
  }

  if err := g.SetWhitelist(ctx, addresses...); err != nil {
    return fmt.Errorf("failed to allow-list devices: %w", err)
  }

  return nil
}

// ConfigureScan applies scan flags: active or passive scans, and whether only allow-listed
// addresses are reported.
func (g *Gap) ConfigureScan(ctx context.Context, flags Flags, allowList []net.HardwareAddr) error {
  scanType, policy := flags.scanType(), flags.filterPolicy()

  log.Debug().
    Str("Device", g.dev.ID()).
    Stringer("ScanType", scanType).
    Stringer("FilterPolicy", policy).
    Stringer("Flags", flags).
    Msg("Configuring scan")

  if err := g.SetActiveScanning(ctx, scanType == scanTypeActive); err != nil {
    return err
  }

  if policy == filterPolicyAllowListedOnly {
    if err := g.SetAllowListedAddresses(ctx, AddressTypeRandomStatic, allowList); err != nil {
      return err
    }
  }

  return g.SetScanningPolicyMode(ctx, policy.firmwareMode())
}

// StartScan scans for durationMs milliseconds and returns what has been received. The firmware
// only reports advertisements matching filter: either a peer address or the hex encoded raw
// advertising payload.
func (g *Gap) StartScan(ctx context.Context, durationMs uint16, filter string) ([]ScanRecord, error) {
  if strings.TrimSpace(filter) == "" {
    return nil, fmt.Errorf("%w: a scan needs an address or a payload to look for", command.ErrInvalidArgument)
  }

  res, err := g.run(ctx, "startScan", strconv.Itoa(int(durationMs)), filter)
  if err != nil {
    return nil, err
  }

  records, err := ParseScanRecords(res.Payload())
  if err != nil {
    return nil, err
  }

  scansCounter.Inc()
  scanRecordsCounter.Add(float64(len(records)))

  log.Debug().
    Str("Device", g.dev.ID()).
    Int("Records", len(records)).
    Msg("ble: scan done")

  return records, nil
}
