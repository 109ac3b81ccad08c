package ble

import (
  "strconv"
  "strings"
)

type Flags int

const (
  // Run active scans rather than passive scans (requiring explicit responses from peripherals).
  FlagScanTypeActive Flags = 1 << iota
  // Only report allow-listed devices. The allow-list is given to `Gap.ConfigureScan()`.
  FlagEnableDeviceAllowList
)

func (f Flags) String() string {
  var flags []string

  if f & FlagScanTypeActive == FlagScanTypeActive {
    flags = append(flags, "active scan")
  }

  if f & FlagEnableDeviceAllowList == FlagEnableDeviceAllowList {
    flags = append(flags, "device allow-list")
  }

  if len(flags) == 0 {
    return "none"
  }

  return strings.Join(flags, ", ")
}

func (f Flags) scanType() scanType {
  if f & FlagScanTypeActive == FlagScanTypeActive {
    return scanTypeActive
  }

  return scanTypePassive
}

func (f Flags) filterPolicy() filterPolicy {
  if f & FlagEnableDeviceAllowList == FlagEnableDeviceAllowList {
    return filterPolicyAllowListedOnly
  }

  return filterPolicyAcceptAll
}

type scanType uint8

const (
  scanTypePassive scanType = iota
  scanTypeActive
)

func (s scanType) String() string {
  switch s {
  case scanTypeActive:
    return "Active"
  case scanTypePassive:
    return "Passive"
  default:
    panic("unknown scanType value: " + strconv.Itoa(int(s)))
  }
}

type filterPolicy uint8

const (
  filterPolicyAcceptAll filterPolicy = iota
  filterPolicyAllowListedOnly
)

func (f filterPolicy) String() string {
  switch f {
  case filterPolicyAcceptAll:
    return "Accept All"
  case filterPolicyAllowListedOnly:
    return "Allow-listed Only"
  default:
    panic("unknown filterPolicy value: " + strconv.Itoa(int(f)))
  }
}

// firmwareMode is the Gap::ScanningPolicyMode_t name of the policy.
func (f filterPolicy) firmwareMode() string {
  switch f {
  case filterPolicyAcceptAll:
    return "SCAN_POLICY_IGNORE_WHITELIST"
  case filterPolicyAllowListedOnly:
    return "SCAN_POLICY_FILTER_ALL_ADV"
  default:
    panic("unknown filterPolicy value: " + strconv.Itoa(int(f)))
  }
}
