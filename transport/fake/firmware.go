package fake

import (
  "context"
  "encoding/hex"
  "fmt"
  "net"
  "strconv"
  "strings"
  "sync"

  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/transport"
)

const (
  firmwareVersion = "fake-ble-cliapp/1.0"

  errNotInitialized = "BLE_ERROR_INITIALIZATION_INCOMPLETE"
  errInvalidParam = "BLE_ERROR_INVALID_PARAM"
  errOutOfRange = "BLE_ERROR_PARAM_OUT_OF_RANGE"

  // offset of the first advertisement seen by a scan, in milliseconds.
  scanFirstSeenMs = 7
  scanRSSI = -52
)

// AD structure types, in the order the firmware serializes FLAGS.
var advertisingFlags = []struct {
  name string
  bit byte
}{
  {"LE_LIMITED_DISCOVERABLE", 0x01},
  {"LE_GENERAL_DISCOVERABLE", 0x02},
  {"BREDR_NOT_SUPPORTED", 0x04},
  {"SIMULTANEOUS_LE_BREDR_C", 0x08},
  {"SIMULTANEOUS_LE_BREDR_H", 0x10},
}

var advertisingDataTypes = map[string]byte{
  "FLAGS": 0x01,
  "INCOMPLETE_LIST_16BIT_SERVICE_IDS": 0x02,
  "COMPLETE_LIST_16BIT_SERVICE_IDS": 0x03,
  "SHORTENED_LOCAL_NAME": 0x08,
  "COMPLETE_LOCAL_NAME": 0x09,
  "TX_POWER_LEVEL": 0x0a,
  "MANUFACTURER_SPECIFIC_DATA": 0xff,
}

var advertisingTypes = []string{
  "ADV_CONNECTABLE_UNDIRECTED",
  "ADV_CONNECTABLE_DIRECTED",
  "ADV_SCANNABLE_UNDIRECTED",
  "ADV_NON_CONNECTABLE_UNDIRECTED",
}

var appearances = []string{
  "UNKNOWN",
  "GENERIC_PHONE",
  "GENERIC_COMPUTER",
  "GENERIC_WATCH",
  "GENERIC_TAG",
  "GENERIC_KEYRING",
  "GENERIC_THERMOMETER",
  "GENERIC_HEART_RATE_SENSOR",
  "HEART_RATE_SENSOR_HEART_RATE_BELT",
  "GENERIC_BLOOD_PRESSURE",
}

var addressTypes = []string{
  "PUBLIC",
  "RANDOM",
  "RANDOM_STATIC",
  "RANDOM_PRIVATE_RESOLVABLE",
  "RANDOM_PRIVATE_NON_RESOLVABLE",
}

var scanningPolicyModes = []string{
  "SCAN_POLICY_IGNORE_WHITELIST",
  "SCAN_POLICY_FILTER_ALL_ADV",
}

type adField struct {
  name string
  values []string
}

type gapState struct {
  advType string
  advIntervalMs int
  advertising bool
  payload []adField
  deviceName string
  appearance string
  connParams [4]int
  activeScanning bool
  scanPolicy string
  whitelist []string
}

func defaultGapState() gapState {
  return gapState{
    advType: "ADV_CONNECTABLE_UNDIRECTED",
    advIntervalMs: 1000,
    appearance: "UNKNOWN",
    connParams: [4]int{50, 100, 0, 600},
    scanPolicy: "SCAN_POLICY_IGNORE_WHITELIST",
  }
}

type dut struct {
  id string
  address string
  addressType string
  initialized bool
  gap gapState
}

type reply struct {
  status command.Status
  result any
  err string
}

func ok(result any) reply {
  return reply{status: command.StatusSuccess, result: result}
}

func fail(err string) reply {
  return reply{status: command.StatusFail, err: err}
}

func invalid(err string) reply {
  return reply{status: command.StatusInvalidParameters, err: err}
}

type firmwareCommand func(f *Firmware, d *dut, args []string) reply

// Firmware simulates the BLE command line application running on a set of devices. Every
// device sees the advertisements of the others, as if they shared the same air.
type Firmware struct {
  mu sync.Mutex
  duts map[string]*dut
  order []string
  // simulated time, in milliseconds since boot. Scans make it move forward.
  clockMs int64
  sent []Sent
}

var _ transport.Transport = (*Firmware)(nil)

func NewFirmware() *Firmware {
  return &Firmware{
    duts: make(map[string]*dut),
  }
}

// AddDevice flashes the firmware on a new device identified by id, with the given MAC address.
func (f *Firmware) AddDevice(id, address string) *Firmware {
  f.mu.Lock()
  defer f.mu.Unlock()

  if _, ok := f.duts[id]; ok {
    panic(fmt.Sprintf("fake: device %q added twice", id))
  }

  f.duts[id] = &dut{
    id: id,
    address: strings.ToUpper(address),
    addressType: "RANDOM_STATIC",
    gap: defaultGapState(),
  }
  f.order = append(f.order, id)

  return f
}

func (f *Firmware) Sent() []Sent {
  f.mu.Lock()
  defer f.mu.Unlock()

  return append([]Sent(nil), f.sent...)
}

// Texts returns the command lines sent to a single device, in order.
func (f *Firmware) Texts(deviceID string) []string {
  f.mu.Lock()
  defer f.mu.Unlock()

  var out []string
  for _, s := range f.sent {
    if s.Device == deviceID {
      out = append(out, s.Text)
    }
  }

  return out
}

func (f *Firmware) Command(ctx context.Context, deviceID string, text string) (*transport.Response, error) {
  if err := ctx.Err(); err != nil {
    return nil, fmt.Errorf("%w: %w", transport.ErrTransport, err)
  }

  f.mu.Lock()
  defer f.mu.Unlock()

  d, found := f.duts[deviceID]
  if !found {
    return nil, fmt.Errorf("%w: no device %q attached", transport.ErrTransport, deviceID)
  }

  f.sent = append(f.sent, Sent{Device: deviceID, Text: text})

  fields := strings.Fields(text)
  if len(fields) < 2 {
    return &transport.Response{
      Lines: Failure(command.StatusNotFound, "command not found"),
    }, nil
  }

  module, name, args := fields[0], fields[1], fields[2:]

  handler, found := firmwareCommands[module + " " + name]
  if !found {
    return &transport.Response{
      Lines: ReplyLines(name, args, command.StatusNotFound, nil, "command not found"),
    }, nil
  }

  var r reply
  if module != "ble" && !d.initialized {
    r = fail(errNotInitialized)
  } else {
    r = handler(f, d, args)
  }

  return &transport.Response{
    Lines: ReplyLines(name, args, r.status, r.result, r.err),
  }, nil
}

var firmwareCommands = map[string]firmwareCommand{
  "ble init": func(f *Firmware, d *dut, args []string) reply {
    d.initialized = true
    return ok(nil)
  },
  "ble shutdown": func(f *Firmware, d *dut, args []string) reply {
    if !d.initialized {
      return fail(errNotInitialized)
    }

    d.initialized = false
    d.gap = defaultGapState()
    return ok(nil)
  },
  "ble reset": func(f *Firmware, d *dut, args []string) reply {
    d.initialized = true
    d.gap = defaultGapState()
    return ok(nil)
  },
  "ble getVersion": func(f *Firmware, d *dut, args []string) reply {
    return ok(firmwareVersion)
  },

  "gap getAddress": func(f *Firmware, d *dut, args []string) reply {
    return ok(map[string]any{
      "address_type": d.addressType,
      "address": d.address,
    })
  },
  "gap getState": func(f *Firmware, d *dut, args []string) reply {
    return ok(map[string]any{
      "advertising": d.gap.advertising,
      "connected": false,
    })
  },
  "gap setAdvertisingType": func(f *Firmware, d *dut, args []string) reply {
    if r, ok := oneOf(args, advertisingTypes); !ok {
      return r
    }

    d.gap.advType = args[0]
    return ok(nil)
  },
  "gap getAdvertisingType": func(f *Firmware, d *dut, args []string) reply {
    return ok(d.gap.advType)
  },
  "gap setAdvertisingInterval": func(f *Firmware, d *dut, args []string) reply {
    if len(args) != 1 {
      return invalid("1 argument expected")
    }

    v, err := strconv.ParseUint(args[0], 10, 16)
    if err != nil {
      return invalid("invalid advertising interval")
    }

    d.gap.advIntervalMs = int(v)
    return ok(nil)
  },
  "gap clearAdvertisingPayload": func(f *Firmware, d *dut, args []string) reply {
    d.gap.payload = nil
    return ok(nil)
  },
  "gap accumulateAdvertisingPayload": func(f *Firmware, d *dut, args []string) reply {
    if len(args) < 2 {
      return invalid("a field and at least one value are expected")
    }

    field := adField{name: args[0], values: args[1:]}
    if err := validateField(field); err != "" {
      return invalid(err)
    }

    for i, existing := range d.gap.payload {
      if existing.name == field.name {
        d.gap.payload[i] = field
        return ok(nil)
      }
    }

    d.gap.payload = append(d.gap.payload, field)
    return ok(nil)
  },
  "gap getAdvertisingPayload": func(f *Firmware, d *dut, args []string) reply {
    return ok(serializePayload(d.gap.payload))
  },
  "gap startAdvertising": func(f *Firmware, d *dut, args []string) reply {
    if d.gap.advIntervalMs == 0 {
      return fail(errOutOfRange)
    }

    d.gap.advertising = true
    return ok(nil)
  },
  "gap stopAdvertising": func(f *Firmware, d *dut, args []string) reply {
    d.gap.advertising = false
    return ok(nil)
  },
  "gap startScan": func(f *Firmware, d *dut, args []string) reply {
    if len(args) != 2 {
      return invalid("2 arguments are required: startScan <duration> <address|payload>")
    }

    duration, err := strconv.ParseUint(args[0], 10, 16)
    if err != nil {
      return invalid("duration should be an uint16_t")
    }

    var filter scanFilter

    if mac, err := net.ParseMAC(args[1]); err == nil && len(mac) == 6 {
      filter.address = strings.ToUpper(args[1])
    } else if raw, err := hex.DecodeString(args[1]); err == nil && len(raw) > 0 {
      filter.payload = fmt.Sprintf("%X", raw)
    } else {
      return invalid("second parameter should be a payload or a mac address")
    }

    return ok(f.scan(d, int64(duration), filter))
  },
  "gap setDeviceName": func(f *Firmware, d *dut, args []string) reply {
    if len(args) != 1 {
      return invalid("1 argument expected")
    }

    d.gap.deviceName = args[0]
    return ok(nil)
  },
  "gap getDeviceName": func(f *Firmware, d *dut, args []string) reply {
    return ok(d.gap.deviceName)
  },
  "gap setAppearance": func(f *Firmware, d *dut, args []string) reply {
    if r, ok := oneOf(args, appearances); !ok {
      return r
    }

    d.gap.appearance = args[0]
    return ok(nil)
  },
  "gap getAppearance": func(f *Firmware, d *dut, args []string) reply {
    return ok(d.gap.appearance)
  },
  "gap setPreferredConnectionParams": func(f *Firmware, d *dut, args []string) reply {
    if len(args) != 1 {
      return invalid("1 argument expected")
    }

    parts := strings.Split(args[0], ",")
    if len(parts) != 4 {
      return invalid("minConnectionInterval,maxConnectionInterval,slaveLatency,connectionSupervisionTimeout expected")
    }

    var p [4]int
    for i, part := range parts {
      v, err := strconv.ParseUint(part, 10, 16)
      if err != nil {
        return invalid("invalid connection parameter " + strconv.Quote(part))
      }
      p[i] = int(v)
    }

    if !validConnParams(p) {
      return fail(errInvalidParam)
    }

    d.gap.connParams = p
    return ok(nil)
  },
  "gap getPreferredConnectionParams": func(f *Firmware, d *dut, args []string) reply {
    p := d.gap.connParams
    return ok(map[string]any{
      "minConnectionInterval": p[0],
      "maxConnectionInterval": p[1],
      "slaveLatency": p[2],
      "connectionSupervisionTimeout": p[3],
    })
  },
  "gap setActiveScanning": func(f *Firmware, d *dut, args []string) reply {
    if len(args) != 1 {
      return invalid("1 argument expected")
    }

    v, err := strconv.ParseBool(args[0])
    if err != nil {
      return invalid("a boolean value is expected")
    }

    d.gap.activeScanning = v
    return ok(nil)
  },
  "gap setScanningPolicyMode": func(f *Firmware, d *dut, args []string) reply {
    if r, ok := oneOf(args, scanningPolicyModes); !ok {
      return r
    }

    d.gap.scanPolicy = args[0]
    return ok(nil)
  },
  "gap setWhitelist": func(f *Firmware, d *dut, args []string) reply {
    if len(args) % 2 != 0 {
      return invalid("[ <addressType> <address> ] expected")
    }

    var list []string
    for i := 0; i < len(args); i += 2 {
      if r, ok := oneOf(args[i:i+1], addressTypes); !ok {
        return invalid("invalid address type: " + r.err)
      }

      if !isMACAddress(args[i+1]) {
        return invalid("invalid address")
      }

      list = append(list, strings.ToUpper(args[i+1]))
    }

    d.gap.whitelist = list
    return ok(nil)
  },
}

// scan returns every advertisement received by the scanner during durationMs. Advertisers are
// seen at a fixed pace, their advertising interval.
// scanFilter holds either a peer address or an upper case hex advertising payload.
type scanFilter struct {
  address string
  payload string
}

func (f *Firmware) scan(scanner *dut, durationMs int64, filter scanFilter) []any {
  start := f.clockMs
  f.clockMs += durationMs

  whitelisted := make(map[string]bool)
  for _, addr := range scanner.gap.whitelist {
    whitelisted[addr] = true
  }

  records := []any{}

  for _, id := range f.order {
    adv := f.duts[id]

    if adv == scanner || !adv.initialized || !adv.gap.advertising {
      continue
    }

    if filter.address != "" && filter.address != adv.address {
      continue
    }

    if scanner.gap.scanPolicy == "SCAN_POLICY_FILTER_ALL_ADV" && !whitelisted[adv.address] {
      continue
    }

    data := serializePayload(adv.gap.payload)

    if filter.payload != "" && filter.payload != data["raw"] {
      continue
    }
    interval := int64(adv.gap.advIntervalMs)

    for t := int64(scanFirstSeenMs); t < durationMs; t += interval {
      records = append(records, map[string]any{
        "peerAddr": adv.address,
        "peerAddrType": adv.addressType,
        "rssi": scanRSSI,
        "isScanResponse": false,
        "type": adv.gap.advType,
        "data": data,
        "time": start + t,
      })
    }
  }

  return records
}

func oneOf(args []string, allowed []string) (reply, bool) {
  if len(args) != 1 {
    return invalid("1 argument expected"), false
  }

  for _, a := range allowed {
    if a == args[0] {
      return reply{}, true
    }
  }

  return invalid(fmt.Sprintf("unknown value %q", args[0])), false
}

func validConnParams(p [4]int) bool {
  minInterval, maxInterval, latency, timeout := p[0], p[1], p[2], p[3]

  if minInterval < 6 || maxInterval > 3200 || minInterval > maxInterval {
    return false
  }

  if latency > 499 || timeout < 10 || timeout > 3200 {
    return false
  }

  // the supervision timeout (10ms units) must exceed twice the effective interval (1.25ms units).
  return timeout * 10 * 4 > (1 + latency) * maxInterval * 5 * 2
}

func isMACAddress(s string) bool {
  parts := strings.Split(s, ":")
  if len(parts) != 6 {
    return false
  }

  for _, p := range parts {
    if _, err := strconv.ParseUint(p, 16, 8); err != nil || len(p) != 2 {
      return false
    }
  }

  return true
}

func validateField(field adField) string {
  if _, ok := advertisingDataTypes[field.name]; !ok {
    return fmt.Sprintf("unknown advertising data type %q", field.name)
  }

  switch field.name {
  case "FLAGS":
    for _, v := range field.values {
      if flagBit(v) == 0 {
        return fmt.Sprintf("unknown flag %q", v)
      }
    }
  case "COMPLETE_LOCAL_NAME", "SHORTENED_LOCAL_NAME", "MANUFACTURER_SPECIFIC_DATA", "TX_POWER_LEVEL":
    if len(field.values) != 1 {
      return field.name + " takes a single value"
    }
  }

  switch field.name {
  case "MANUFACTURER_SPECIFIC_DATA":
    if _, err := hex.DecodeString(field.values[0]); err != nil {
      return "invalid hex data"
    }
  case "TX_POWER_LEVEL":
    if _, err := strconv.ParseInt(field.values[0], 10, 8); err != nil {
      return "invalid tx power level"
    }
  case "COMPLETE_LIST_16BIT_SERVICE_IDS", "INCOMPLETE_LIST_16BIT_SERVICE_IDS":
    for _, v := range field.values {
      if _, err := parseUUID16(v); err != nil {
        return fmt.Sprintf("invalid 16 bit service id %q", v)
      }
    }
  }

  return ""
}

func flagBit(name string) byte {
  for _, f := range advertisingFlags {
    if f.name == name {
      return f.bit
    }
  }

  return 0
}

func parseUUID16(s string) (uint16, error) {
  v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
  return uint16(v), err
}

// serializePayload renders the advertising payload the way the firmware does: one key per AD
// structure plus the raw bytes.
func serializePayload(payload []adField) map[string]any {
  out := make(map[string]any)
  var raw []byte

  for _, field := range payload {
    var body []byte

    switch field.name {
    case "FLAGS":
      var bits byte
      for _, v := range field.values {
        bits |= flagBit(v)
      }

      names := []string{}
      for _, f := range advertisingFlags {
        if bits & f.bit != 0 {
          names = append(names, f.name)
        }
      }

      out[field.name] = names
      body = []byte{bits}
    case "COMPLETE_LOCAL_NAME", "SHORTENED_LOCAL_NAME":
      out[field.name] = field.values[0]
      body = []byte(field.values[0])
    case "COMPLETE_LIST_16BIT_SERVICE_IDS", "INCOMPLETE_LIST_16BIT_SERVICE_IDS":
      ids := []string{}
      for _, v := range field.values {
        id, _ := parseUUID16(v)
        ids = append(ids, fmt.Sprintf("0x%04X", id))
        body = append(body, byte(id), byte(id >> 8))
      }
      out[field.name] = ids
    case "TX_POWER_LEVEL":
      v, _ := strconv.ParseInt(field.values[0], 10, 8)
      out[field.name] = v
      body = []byte{byte(int8(v))}
    case "MANUFACTURER_SPECIFIC_DATA":
      body, _ = hex.DecodeString(field.values[0])
      out[field.name] = fmt.Sprintf("%X", body)
    }

    raw = append(raw, byte(len(body) + 1), advertisingDataTypes[field.name])
    raw = append(raw, body...)
  }

  out["raw"] = fmt.Sprintf("%X", raw)

  return out
}
