// Package testcase declares bench test cases and runs them against the devices of a bench.
//
// A test case is registered from an init function and runs in three phases: RampUp prepares
// the devices, Func is the test itself and RampDown puts the devices back in a known state.
package testcase

import (
  "context"
  "errors"
  "fmt"
  "regexp"
  "sort"
  "sync"
  "time"

  "golang.org/x/exp/maps"
  "golang.org/x/exp/slices"
)

var ErrUnknownTest = errors.New("unknown test")

// Allowed values of Test.Type.
var Types = []string{
  "installation",
  "compatibility",
  "smoke",
  "regression",
  "acceptance",
  "alpha",
  "beta",
  "destructive",
  "performance",
}

const (
  StatusReleased = "released"
  StatusDevelopment = "development"
)

type Application struct {
  Name string
  Version string
}

// Requirements of a test on the devices of the bench. Only Count is enforced: a test needing
// more devices than the bench has is skipped.
type Requirements struct {
  Count int
  Type string
  Application Application
}

// Phase is the body of a test phase. It reports problems through s.
type Phase func(ctx context.Context, s *State)

type Test struct {
  Name string
  Title string
  Status string
  Purpose string
  Component []string
  Feature []string
  Type string
  Requirements Requirements

  // Timeout of RampUp and Func together. Zero means no timeout. RampDown and the cleanups get
  // their own CleanupTimeout.
  Timeout time.Duration

  RampUp Phase
  Func Phase
  RampDown Phase
}

var testNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func (t *Test) validate() error {
  if !testNamePattern.MatchString(t.Name) {
    return fmt.Errorf("invalid test name %q", t.Name)
  }

  if t.Func == nil {
    return fmt.Errorf("test %s has no Func", t.Name)
  }

  if t.Type != "" && !slices.Contains(Types, t.Type) {
    return fmt.Errorf("test %s: unknown type %q (must be one of %v)", t.Name, t.Type, Types)
  }

  if t.Requirements.Count < 0 {
    return fmt.Errorf("test %s: negative device count", t.Name)
  }

  return nil
}

var registry = struct {
  mu sync.Mutex
  tests map[string]*Test
}{
  tests: make(map[string]*Test),
}

// AddTest registers a test. It is meant to be called from init functions, and panics when the
// test is invalid or its name is already taken.
func AddTest(t *Test) {
  if err := t.validate(); err != nil {
    panic(err)
  }

  registry.mu.Lock()
  defer registry.mu.Unlock()

  if _, ok := registry.tests[t.Name]; ok {
    panic(fmt.Sprintf("test %s registered twice", t.Name))
  }

  registry.tests[t.Name] = t
}

// Registered returns every registered test, sorted by name.
func Registered() []*Test {
  registry.mu.Lock()
  defer registry.mu.Unlock()

  names := maps.Keys(registry.tests)
  sort.Strings(names)

  out := make([]*Test, len(names))
  for i, name := range names {
    out[i] = registry.tests[name]
  }

  return out
}

func Lookup(name string) (*Test, bool) {
  registry.mu.Lock()
  defer registry.mu.Unlock()

  t, ok := registry.tests[name]
  return t, ok
}

// Select returns the named tests in the given order, or every registered test when no name
// is given.
func Select(names ...string) ([]*Test, error) {
  if len(names) == 0 {
    return Registered(), nil
  }

  out := make([]*Test, 0, len(names))

  for _, name := range names {
    t, ok := Lookup(name)
    if !ok {
      return nil, fmt.Errorf("%w: %s", ErrUnknownTest, name)
    }

    out = append(out, t)
  }

  return out, nil
}
