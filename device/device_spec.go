package device

import (
  "fmt"
  "strconv"
  "strings"
  "time"

  "github.com/rs/zerolog/log"
)

// DeviceSpec describes a device binding given as `key=value,key=value`.
type DeviceSpec map[string]string

const (
  DeviceSpecFieldID = "id"
  DeviceSpecFieldName = "name"
  // Set from the bench trailer policy when missing, for transports which frame replies.
  DeviceSpecFieldTrailer = "trailer"
)

func NewDeviceSpec(s string) DeviceSpec {
  spec := DeviceSpec{}
  entries := strings.Split(s, ",")

  for _, entry := range entries {
    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ds DeviceSpec) ID() string {
  return ds[DeviceSpecFieldID]
}

// Name falls back to the identifier.
func (ds DeviceSpec) Name() string {
  if name := ds[DeviceSpecFieldName]; name != "" {
    return name
  }

  return ds.ID()
}

func (ds DeviceSpec) Int(field string, def int) (int, error) {
  v, ok := ds[field]
  if !ok || v == "" {
    return def, nil
  }

  i, err := strconv.Atoi(v)
  if err != nil {
    return def, fmt.Errorf("invalid %s: %w", field, err)
  }

  return i, nil
}

func (ds DeviceSpec) Bool(field string, def bool) (bool, error) {
  v, ok := ds[field]
  if !ok || v == "" {
    return def, nil
  }

  switch strings.ToLower(v) {
  case "yes", "true", "1", "on":
    return true, nil
  case "no", "false", "0", "off":
    return false, nil
  }

  return def, fmt.Errorf("invalid %s: %q is not a boolean", field, v)
}

func (ds DeviceSpec) Duration(field string, def time.Duration) (time.Duration, error) {
  v, ok := ds[field]
  if !ok || v == "" {
    return def, nil
  }

  d, err := time.ParseDuration(v)
  if err != nil {
    return def, fmt.Errorf("invalid %s: %w", field, err)
  }

  return d, nil
}
