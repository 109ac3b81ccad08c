package cases

import (
  "context"

  "github.com/robertof/go-blecli-bench/ble"
  "github.com/robertof/go-blecli-bench/testcase"
)

func init() {
  testcase.AddTest(&testcase.Test{
    Name: "test_connparam",
    Title: "Set up connection parameters tuple and revert to original connection settings",
    Status: testcase.StatusReleased,
    Purpose: "Verify that connection parameters can be changed",
    Component: []string{"ble"},
    Feature: []string{"ifconfig"},
    Type: "regression",
    Requirements: testcase.Requirements{
      Count: 1,
      Type: "hardware",
      Application: generalTestApplication,
    },
    RampUp: initAll(1),
    Func: ConnParam,
    RampDown: shutdownAll(1),
  })
}

// ConnParam cycles through a few preferred connection parameters and restores the original
// ones.
func ConnParam(ctx context.Context, s *testcase.State) {
  gap := ble.NewGap(s.DUT(1))

  original, err := gap.PreferredConnectionParams(ctx)
  if err != nil {
    s.Fatal("Failed to get the preferred connection parameters: ", err)
  }

  // the stack is shut down in rampDown, restore while it is still up.
  defer func() {
    if err := gap.SetPreferredConnectionParams(ctx, original); err != nil {
      s.Error("Failed to restore the preferred connection parameters: ", err)
    }
  }()

  // (min interval, max interval, latency, supervision timeout)
  tuples := []string{
    "50,500,0,500",
    "40,400,0,400",
    "50,400,0,500",
  }

  for _, tuple := range tuples {
    want, err := ble.ParsePreferredConnParams(tuple)
    if err != nil {
      s.Fatal("Invalid connection parameters: ", err)
    }

    checkConnParams(ctx, s, gap, want)
  }

  // the presets used when connecting from a host adapter must be accepted as well
  for _, preset := range []ble.ConnParams{ble.ConnParamsDefault, ble.ConnParamsPowerSaving} {
    checkConnParams(ctx, s, gap, preset.Preferred())
  }
}

func checkConnParams(ctx context.Context, s *testcase.State, gap *ble.Gap, want ble.PreferredConnParams) {
  if err := gap.SetPreferredConnectionParams(ctx, want); err != nil {
    s.Fatalf("Failed to set connection parameters %v: %v", want, err)
  }

  got, err := gap.PreferredConnectionParams(ctx)
  if err != nil {
    s.Fatal("Failed to get the preferred connection parameters: ", err)
  }

  if got != want {
    s.Errorf("Got connection parameters %v, want %v", got, want)
  }
}
