package cases

import (
  "context"
  "fmt"

  "github.com/robertof/go-blecli-bench/ble"
  "github.com/robertof/go-blecli-bench/testcase"
)

func init() {
  testcase.AddTest(&testcase.Test{
    Name: "test_setdevicename",
    Status: testcase.StatusDevelopment,
    Component: []string{"ble"},
    Type: "smoke",
    Requirements: testcase.Requirements{
      Count: 2,
      Type: "hardware",
      Application: generalTestApplication,
    },
    RampUp: initAll(2),
    Func: SetDeviceName,
    RampDown: shutdownAll(2),
  })
}

// SetDeviceName gives each device its own name and reads it back.
func SetDeviceName(ctx context.Context, s *testcase.State) {
  for i := 1; i <= 2; i++ {
    gap := ble.NewGap(s.DUT(i))
    name := fmt.Sprintf("blecli-device-%d", i)

    if err := gap.SetDeviceName(ctx, name); err != nil {
      s.Fatalf("Failed to set the name of DUT %d: %v", i, err)
    }

    got, err := gap.DeviceName(ctx)
    if err != nil {
      s.Fatalf("Failed to get the name of DUT %d: %v", i, err)
    }

    if got != name {
      s.Errorf("DUT %d: got name %q, want %q", i, got, name)
    }
  }
}
