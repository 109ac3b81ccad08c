package cases

import (
  "context"
  "time"

  "github.com/robertof/go-blecli-bench/ble"
  "github.com/robertof/go-blecli-bench/testcase"
  "golang.org/x/exp/slices"
)

func init() {
  testcase.AddTest(&testcase.Test{
    Name: "test_advertising",
    Title: "Advertising check",
    Status: testcase.StatusReleased,
    Purpose: "Verify that a device can advertise",
    Component: []string{"ble"},
    Feature: []string{"advertising"},
    Type: "regression",
    Requirements: testcase.Requirements{
      Count: 2,
      Type: "hardware",
      Application: generalTestApplication,
    },
    Timeout: time.Minute,
    RampUp: func(ctx context.Context, s *testcase.State) {
      initAll(2)(ctx, s)
      s.Require(s.DUT(1).Gap(ctx, "clearAdvertisingPayload"))
    },
    Func: Advertising,
    RampDown: shutdownAll(2),
  })
}

// Advertising makes the first device advertise and checks that the second one receives the
// advertised payload.
func Advertising(ctx context.Context, s *testcase.State) {
  advertiser := ble.NewGap(s.DUT(1))
  scanner := ble.NewGap(s.DUT(2))

  flags := []string{ble.FlagLEGeneralDiscoverable, ble.FlagBREDRNotSupported}
  const name = "fooDevice"

  if err := advertiser.SetAdvertisingType(ctx, ble.AdvConnectableUndirected); err != nil {
    s.Fatal("Failed to set advertising type: ", err)
  }

  if err := advertiser.AccumulateAdvertisingPayload(ctx, ble.FieldFlags, flags...); err != nil {
    s.Fatal("Failed to add flags to the payload: ", err)
  }

  if err := advertiser.AccumulateAdvertisingPayload(ctx, ble.FieldCompleteLocalName, name); err != nil {
    s.Fatal("Failed to add the name to the payload: ", err)
  }

  addr, err := advertiser.Address(ctx)
  if err != nil {
    s.Fatal("Failed to get the advertiser address: ", err)
  }

  if err := advertiser.SetAdvertisingInterval(ctx, 1000); err != nil {
    s.Fatal("Failed to set advertising interval: ", err)
  }

  if err := advertiser.StartAdvertising(ctx); err != nil {
    s.Fatal("Failed to start advertising: ", err)
  }

  records, err := scanner.StartScan(ctx, 3000, addr.Value)
  if err != nil {
    s.Fatal("Failed to scan: ", err)
  }

  if len(records) == 0 {
    s.Fatal("No advertisement received from ", addr)
  }

  for i := range records {
    r := &records[i]

    if r.LocalName() != name {
      s.Errorf("Record %d: got name %q, want %q", i, r.LocalName(), name)
    }

    if !slices.Equal(r.Flags(), flags) {
      s.Errorf("Record %d: got flags %v, want %v", i, r.Flags(), flags)
    }

    if !addr.Equal(r.PeerAddr) {
      s.Errorf("Record %d: got peer address %s, want %s", i, r.PeerAddr, addr.Value)
    }

    if r.Type != ble.AdvConnectableUndirected {
      s.Errorf("Record %d: got advertising type %s, want %s", i, r.Type, ble.AdvConnectableUndirected)
    }
  }
}
