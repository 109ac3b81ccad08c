package cases

import (
  "context"
  "time"

  "github.com/robertof/go-blecli-bench/ble"
  "github.com/robertof/go-blecli-bench/testcase"
)

// Tolerance on the time between two advertisements received by the scanner.
const advertisingIntervalTolerance = 10 * time.Millisecond

func init() {
  testcase.AddTest(&testcase.Test{
    Name: "test_advertising_interval",
    Title: "Advertising interval validation",
    Status: testcase.StatusReleased,
    Purpose: "Verify that a the advertising interval can be properly setup on a device",
    Component: []string{"ble"},
    Feature: []string{"advertising interval"},
    Type: "regression",
    Requirements: testcase.Requirements{
      Count: 2,
      Type: "hardware",
      Application: generalTestApplication,
    },
    Timeout: 2 * time.Minute,
    RampUp: func(ctx context.Context, s *testcase.State) {
      initAll(2)(ctx, s)
      s.Require(s.DUT(1).Gap(ctx, "clearAdvertisingPayload"))
    },
    Func: AdvertisingInterval,
    RampDown: shutdownAll(2),
  })
}

func AdvertisingInterval(ctx context.Context, s *testcase.State) {
  advertiser := ble.NewGap(s.DUT(1))
  scanner := ble.NewGap(s.DUT(2))

  if err := advertiser.SetAdvertisingType(ctx, ble.AdvConnectableUndirected); err != nil {
    s.Fatal("Failed to set advertising type: ", err)
  }

  err := advertiser.AccumulateAdvertisingPayload(ctx, ble.FieldFlags, ble.FlagLEGeneralDiscoverable, ble.FlagBREDRNotSupported)
  if err != nil {
    s.Fatal("Failed to add flags to the payload: ", err)
  }

  if err := advertiser.SetAdvertisingInterval(ctx, 100); err != nil {
    s.Fatal("Failed to set advertising interval: ", err)
  }

  addr, err := advertiser.Address(ctx)
  if err != nil {
    s.Fatal("Failed to get the advertiser address: ", err)
  }

  for _, interval := range []uint16{1000, 1500} {
    if err := advertiser.SetAdvertisingInterval(ctx, interval); err != nil {
      s.Fatalf("Failed to set advertising interval to %d ms: %v", interval, err)
    }

    if err := advertiser.StartAdvertising(ctx); err != nil {
      s.Fatal("Failed to start advertising: ", err)
    }

    records, err := scanner.StartScan(ctx, 4 * interval, addr.Value)
    if err != nil {
      s.Fatal("Failed to scan: ", err)
    }

    want := time.Duration(interval) * time.Millisecond

    for i := 1; i < len(records); i++ {
      got := time.Duration(records[i].Time - records[i-1].Time) * time.Millisecond

      if got <= want - advertisingIntervalTolerance || got >= want + advertisingIntervalTolerance {
        s.Errorf("Interval %v: advertisements %d and %d are %v apart", want, i-1, i, got)
      }
    }

    s.Logf("Received %d advertisements at %v", len(records), want)

    if err := advertiser.StopAdvertising(ctx); err != nil {
      s.Fatal("Failed to stop advertising: ", err)
    }
  }
}
