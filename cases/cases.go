// Package cases contains the bench test cases of the BLE firmware. Each file registers one
// test from its init function.
package cases

import (
  "context"

  "github.com/robertof/go-blecli-bench/testcase"
)

// initAll brings up the stack of the first n devices.
func initAll(n int) testcase.Phase {
  return func(ctx context.Context, s *testcase.State) {
    for i := 1; i <= n; i++ {
      s.Require(s.DUT(i).Ble(ctx, "init"))
    }
  }
}

// shutdownAll shuts the stack of the first n devices down. A failure does not stop the others.
func shutdownAll(n int) testcase.Phase {
  return func(ctx context.Context, s *testcase.State) {
    for i := 1; i <= n; i++ {
      s.Check(s.DUT(i).Ble(ctx, "shutdown"))
    }
  }
}

var generalTestApplication = testcase.Application{
  Name: "generalTestApplication",
  Version: "1.0",
}
