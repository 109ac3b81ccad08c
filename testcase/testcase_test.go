package testcase_test

import (
  "context"
  "sync"
  "testing"
  "time"

  "github.com/robertof/go-blecli-bench/bench"
  "github.com/robertof/go-blecli-bench/command"
  "github.com/robertof/go-blecli-bench/testcase"
  "github.com/robertof/go-blecli-bench/transport"
  "github.com/robertof/go-blecli-bench/transport/fake"
  "github.com/stretchr/testify/assert"
  "github.com/stretchr/testify/require"
)

func newBench(t *testing.T, n int) (*bench.Bench, *fake.Firmware) {
  fw := fake.NewFirmware()
  var bindings []bench.Binding

  for i := 1; i <= n; i++ {
    id := string(rune('0' + i))
    fw.AddDevice(id, "aa:bb:cc:dd:ee:0" + id)
    bindings = append(bindings, bench.Binding{ID: id, Transport: fw})
  }

  b, err := bench.New(bindings...)
  require.NoError(t, err)

  return b, fw
}

func TestRunPhasesInOrder(t *testing.T) {
  b, fw := newBench(t, 2)
  var order []string

  res := testcase.Run(context.Background(), b, &testcase.Test{
    Name: "phases",
    Requirements: testcase.Requirements{Count: 2},
    RampUp: func(ctx context.Context, s *testcase.State) {
      order = append(order, "rampUp")
      s.Require(s.DUT(1).Ble(ctx, "init"))
      s.AddCleanup(func(context.Context) { order = append(order, "cleanup1") })
      s.AddCleanup(func(context.Context) { order = append(order, "cleanup2") })
    },
    Func: func(ctx context.Context, s *testcase.State) {
      order = append(order, "case")
      s.Require(s.DUT(2).Ble(ctx, "getVersion"))
    },
    RampDown: func(ctx context.Context, s *testcase.State) {
      order = append(order, "rampDown")
      s.Require(s.DUT(1).Ble(ctx, "shutdown"))
    },
  })

  assert.Equal(t, testcase.OutcomePass, res.Outcome)
  assert.True(t, res.Passed())
  assert.Empty(t, res.Errors)
  assert.Equal(t, []string{"rampUp", "case", "rampDown", "cleanup2", "cleanup1"}, order)
  assert.Equal(t, []string{"ble init ", "ble shutdown "}, fw.Texts("1"))
  assert.Equal(t, []string{"ble getVersion "}, fw.Texts("2"))
}

func TestFatalStopsPhaseButRampDownRuns(t *testing.T) {
  b, _ := newBench(t, 1)
  var reached, rampDown bool

  res := testcase.Run(context.Background(), b, &testcase.Test{
    Name: "fatal",
    Func: func(ctx context.Context, s *testcase.State) {
      // gap commands fail until the stack is initialized
      s.Require(s.DUT(1).Gap(ctx, "getAddress"))
      reached = true
    },
    RampDown: func(context.Context, *testcase.State) {
      rampDown = true
    },
  })

  assert.Equal(t, testcase.OutcomeFail, res.Outcome)
  assert.False(t, reached)
  assert.True(t, rampDown)
  require.Len(t, res.Errors, 1)
  assert.Contains(t, res.Errors[0], "getAddress")
}

func TestFailedRampUpSkipsCase(t *testing.T) {
  b, _ := newBench(t, 1)
  ran := false

  res := testcase.Run(context.Background(), b, &testcase.Test{
    Name: "rampup",
    RampUp: func(_ context.Context, s *testcase.State) {
      s.Error("not ready")
    },
    Func: func(context.Context, *testcase.State) {
      ran = true
    },
  })

  assert.Equal(t, testcase.OutcomeFail, res.Outcome)
  assert.False(t, ran)
  assert.Equal(t, []string{"not ready"}, res.Errors)
}

func TestErrorContinuesPhase(t *testing.T) {
  b, _ := newBench(t, 1)
  reached := false

  res := testcase.Run(context.Background(), b, &testcase.Test{
    Name: "errors",
    Func: func(ctx context.Context, s *testcase.State) {
      ok := s.Check(command.FromMap(map[string]any{"status": -1, "error": "nope"}))
      s.Errorf("first %d", 1)
      reached = !ok
    },
  })

  assert.True(t, reached)
  assert.Len(t, res.Errors, 2)
  assert.Equal(t, "first 1", res.Errors[1])
}

func TestPanicIsReported(t *testing.T) {
  b, _ := newBench(t, 1)

  res := testcase.Run(context.Background(), b, &testcase.Test{
    Name: "panics",
    Func: func(context.Context, *testcase.State) {
      panic("boom")
    },
  })

  assert.Equal(t, testcase.OutcomeFail, res.Outcome)
  assert.Equal(t, []string{"panic: boom"}, res.Errors)
}

func TestMissingDUTIsFatal(t *testing.T) {
  b, _ := newBench(t, 1)

  res := testcase.Run(context.Background(), b, &testcase.Test{
    Name: "missing",
    Func: func(_ context.Context, s *testcase.State) {
      s.DUT(2)
    },
  })

  assert.Equal(t, testcase.OutcomeFail, res.Outcome)
  assert.Contains(t, res.Errors[0], "DUT 2")
}

func TestSkipWhenBenchTooSmall(t *testing.T) {
  b, fw := newBench(t, 1)
  ran := false

  res := testcase.Run(context.Background(), b, &testcase.Test{
    Name: "two_devices",
    Requirements: testcase.Requirements{Count: 2},
    RampUp: func(context.Context, *testcase.State) { ran = true },
    Func: func(context.Context, *testcase.State) { ran = true },
  })

  assert.Equal(t, testcase.OutcomeSkipped, res.Outcome)
  assert.Equal(t, "skipped", res.Outcome.String())
  assert.NotEmpty(t, res.Reason)
  assert.False(t, ran)
  assert.Empty(t, fw.Sent())
}

func TestTimeout(t *testing.T) {
  b, _ := newBench(t, 1)

  res := testcase.Run(context.Background(), b, &testcase.Test{
    Name: "slow",
    Timeout: 20 * time.Millisecond,
    Func: func(ctx context.Context, s *testcase.State) {
      <-ctx.Done()
      s.Require(s.DUT(1).Ble(ctx, "init"))
    },
  })

  assert.Equal(t, testcase.OutcomeFail, res.Outcome)
}

func TestRampDownRunsAfterTimeout(t *testing.T) {
  var mu sync.Mutex
  var sent []string

  tr := transport.Func(func(ctx context.Context, _ string, text string) (*transport.Response, error) {
    if err := ctx.Err(); err != nil {
      return nil, err
    }

    mu.Lock()
    sent = append(sent, text)
    mu.Unlock()

    return &transport.Response{Lines: []string{`{"status": 0}`, "retcode: 0"}}, nil
  })

  b, err := bench.New(bench.Binding{ID: "1", Transport: tr})
  require.NoError(t, err)

  cleaned := false

  res := testcase.Run(context.Background(), b, &testcase.Test{
    Name: "slow_with_ramp_down",
    Timeout: 20 * time.Millisecond,
    Func: func(ctx context.Context, s *testcase.State) {
      s.AddCleanup(func(ctx context.Context) {
        cleaned = ctx.Err() == nil
      })
      <-ctx.Done()
    },
    RampDown: func(ctx context.Context, s *testcase.State) {
      s.Require(s.DUT(1).Ble(ctx, "shutdown"))
    },
  })

  assert.Equal(t, testcase.OutcomeFail, res.Outcome)
  assert.Equal(t, []string{"ble shutdown "}, sent)
  assert.True(t, cleaned)
  require.Len(t, res.Errors, 1)
  assert.Contains(t, res.Errors[0], "deadline exceeded")
}

func TestRunAllStopsWhenCanceled(t *testing.T) {
  b, _ := newBench(t, 1)
  ctx, cancel := context.WithCancel(context.Background())

  tests := []*testcase.Test{
    {Name: "first", Func: func(context.Context, *testcase.State) { cancel() }},
    {Name: "second", Func: func(context.Context, *testcase.State) {}},
  }

  var reported []string
  results := testcase.RunAll(ctx, b, tests, func(res testcase.Result) {
    reported = append(reported, res.Name)
  })
  require.Len(t, results, 1)
  assert.Equal(t, "first", results[0].Name)
  assert.Equal(t, []string{"first"}, reported)
}

func TestRegistry(t *testing.T) {
  test := &testcase.Test{
    Name: "registry_check",
    Type: "smoke",
    Func: func(context.Context, *testcase.State) {},
  }

  testcase.AddTest(test)

  got, ok := testcase.Lookup("registry_check")
  require.True(t, ok)
  assert.Same(t, test, got)
  assert.Contains(t, testcase.Registered(), test)

  selected, err := testcase.Select("registry_check")
  require.NoError(t, err)
  assert.Equal(t, []*testcase.Test{test}, selected)

  _, err = testcase.Select("nope")
  assert.ErrorIs(t, err, testcase.ErrUnknownTest)

  assert.Panics(t, func() { testcase.AddTest(test) })
  assert.Panics(t, func() {
    testcase.AddTest(&testcase.Test{Name: "Bad Name", Func: test.Func})
  })
  assert.Panics(t, func() {
    testcase.AddTest(&testcase.Test{Name: "bad_type", Type: "flaky", Func: test.Func})
  })
  assert.Panics(t, func() {
    testcase.AddTest(&testcase.Test{Name: "no_func"})
  })
}
