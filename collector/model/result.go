package model

import (
	"fmt"

	"github.com/robertof/go-blecli-bench/device"
)

// Result is the outcome of probing a device: the firmware version it reported, or why it
// could not be reached.
type Result struct {
  Version string
  Error error
}

func (c Result) String() string {
  if c.Error != nil {
    return fmt.Sprintf("result:error(%v)", c.Error)
  } else {
    return fmt.Sprintf("result:success(%v)", c.Version)
  }
}

type DeviceResult struct {
	*device.Device
	Result
}
