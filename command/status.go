package command

import "strconv"

// Status is the status code carried in the JSON body of a command reply. Values follow the
// mbed-client-cli return codes used by the firmware.
type Status int

const (
  StatusBusy                Status = 2
  StatusExecutingContinue   Status = 1
  StatusSuccess             Status = 0
  StatusFail                Status = -1
  StatusInvalidParameters   Status = -2
  StatusNotImplemented      Status = -3
  StatusCallbackMissing     Status = -4
  StatusNotFound            Status = -5
)

func (s Status) String() string {
  switch s {
  case StatusBusy:
    return "Busy"
  case StatusExecutingContinue:
    return "ExecutingContinue"
  case StatusSuccess:
    return "Success"
  case StatusFail:
    return "Fail"
  case StatusInvalidParameters:
    return "InvalidParameters"
  case StatusNotImplemented:
    return "NotImplemented"
  case StatusCallbackMissing:
    return "CallbackMissing"
  case StatusNotFound:
    return "NotFound"
  default:
    return "Status(" + strconv.Itoa(int(s)) + ")"
  }
}
