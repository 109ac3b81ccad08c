package ble

import (
  "encoding/hex"
  "fmt"
  "strings"

  "github.com/go-ble/ble"
  "github.com/robertof/go-blecli-bench/command"
)

// ScanRecord is one advertisement received during a scan. It implements ble.Advertisement so
// that advertisement parsers written against go-ble can be reused.
type ScanRecord struct {
  PeerAddr string
  PeerAddrType string
  Rssi int
  IsScanResponse bool
  Type string
  // Milliseconds, from the clock of the scanner.
  Time int64
  // Advertising data fields keyed by name.
  Data map[string]command.Value
  Raw []byte
}

var _ ble.Advertisement = (*ScanRecord)(nil)

// ParseScanRecords decodes the result of startScan.
func ParseScanRecords(v command.Value) ([]ScanRecord, error) {
  if v.Kind() != command.KindArray {
    return nil, fmt.Errorf("%w: scan result is %v, not an array", command.ErrDecode, v.Kind())
  }

  records := make([]ScanRecord, 0, v.Len())

  for i, item := range v.Array() {
    r, err := parseScanRecord(item)
    if err != nil {
      return nil, fmt.Errorf("scan record #%d: %w", i, err)
    }

    records = append(records, r)
  }

  return records, nil
}

func parseScanRecord(v command.Value) (r ScanRecord, err error) {
  var ok bool

  if r.PeerAddr, ok = v.Get("peerAddr").Str(); !ok {
    return r, fmt.Errorf("%w: missing peerAddr", command.ErrDecode)
  }

  if r.Time, ok = v.Get("time").Int(); !ok {
    return r, fmt.Errorf("%w: missing time", command.ErrDecode)
  }

  r.PeerAddrType, _ = v.Get("peerAddrType").Str()
  r.Type, _ = v.Get("type").Str()
  r.IsScanResponse, _ = v.Get("isScanResponse").Bool()

  rssi, _ := v.Get("rssi").Int()
  r.Rssi = int(rssi)

  r.Data = v.Get("data").Object()

  if raw, ok := r.Data[fieldRaw].Str(); ok {
    if r.Raw, err = hex.DecodeString(raw); err != nil {
      return r, fmt.Errorf("%w: raw data: %v", command.ErrDecode, err)
    }
  }

  return r, nil
}

func (r *ScanRecord) Field(name string) command.Value {
  return r.Data[name]
}

func (r *ScanRecord) Flags() []string {
  flags, _ := r.Field(FieldFlags).Strings()
  return flags
}

func (r *ScanRecord) HasFlag(flag string) bool {
  for _, f := range r.Flags() {
    if f == flag {
      return true
    }
  }

  return false
}

func (r *ScanRecord) LocalName() string {
  if name, ok := r.Field(FieldCompleteLocalName).Str(); ok {
    return name
  }

  name, _ := r.Field(FieldShortenedLocalName).Str()
  return name
}

func (r *ScanRecord) ManufacturerData() []byte {
  s, ok := r.Field(FieldManufacturerSpecificData).Str()
  if !ok {
    return nil
  }

  data, err := hex.DecodeString(s)
  if err != nil {
    return nil
  }

  return data
}

// The firmware does not serialize service data.
func (r *ScanRecord) ServiceData() []ble.ServiceData {
  return nil
}

// Services merges the complete and incomplete lists of 16 bit service IDs.
func (r *ScanRecord) Services() []ble.UUID {
  return append(r.uuids(FieldComplete16BitServiceIDs), r.uuids(FieldIncomplete16BitServiceIDs)...)
}

func (r *ScanRecord) OverflowService() []ble.UUID {
  return nil
}

func (r *ScanRecord) uuids(field string) []ble.UUID {
  ids, ok := r.Field(field).Strings()
  if !ok {
    return nil
  }

  var out []ble.UUID
  for _, id := range ids {
    u, err := ble.Parse(strings.TrimPrefix(strings.ToLower(id), "0x"))
    if err != nil {
      continue
    }
    out = append(out, u)
  }

  return out
}

func (r *ScanRecord) TxPowerLevel() int {
  v, ok := r.Field(FieldTxPowerLevel).Int()
  if !ok {
    return 127
  }

  return int(v)
}

func (r *ScanRecord) Connectable() bool {
  return r.Type == AdvConnectableUndirected || r.Type == AdvConnectableDirected
}

func (r *ScanRecord) SolicitedService() []ble.UUID {
  return nil
}

func (r *ScanRecord) RSSI() int {
  return r.Rssi
}

func (r *ScanRecord) Addr() ble.Addr {
  return ble.NewAddr(r.PeerAddr)
}
