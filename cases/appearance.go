package cases

import (
  "context"

  "github.com/robertof/go-blecli-bench/ble"
  "github.com/robertof/go-blecli-bench/testcase"
)

func init() {
  testcase.AddTest(&testcase.Test{
    Name: "test_appearance",
    Title: "Change BLE device appearance",
    Status: testcase.StatusReleased,
    Purpose: "Check if we can change BLE appearance to BLE_APPEARANCE_GENERIC_PHONE",
    Component: []string{"ble"},
    Feature: []string{"appearance"},
    Type: "regression",
    Requirements: testcase.Requirements{
      Count: 1,
      Type: "hardware",
      Application: generalTestApplication,
    },
    RampUp: func(ctx context.Context, s *testcase.State) {
      s.Require(s.DUT(1).Ble(ctx, "reset"))
    },
    Func: Appearance,
    RampDown: shutdownAll(1),
  })
}

func Appearance(ctx context.Context, s *testcase.State) {
  const appearance = "GENERIC_HEART_RATE_SENSOR"

  gap := ble.NewGap(s.DUT(1))

  if err := gap.SetAppearance(ctx, appearance); err != nil {
    s.Fatal("Failed to set appearance: ", err)
  }

  got, err := gap.Appearance(ctx)
  if err != nil {
    s.Fatal("Failed to get appearance: ", err)
  }

  if got != appearance {
    s.Errorf("Got appearance %s, want %s", got, appearance)
  }
}
