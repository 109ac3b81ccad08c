package metrics

import (
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-blecli-bench/collector/model"
  "github.com/robertof/go-blecli-bench/device"
  "github.com/robertof/go-blecli-bench/testcase"
)

var (
  descDeviceUp = prometheus.NewDesc(
    "blecli_bench_device_up",
    "Whether the device answered the last probe. 1 = up, 0 = down.",
    []string{"device"},
    nil,
  )

  descDeviceInfo = prometheus.NewDesc(
    "blecli_bench_device_info",
    "Firmware version reported by the device.",
    []string{"device", "version"},
    nil,
  )

  descTestResult = prometheus.NewDesc(
    "blecli_bench_test_result",
    "Outcome of the last run of a test. 1 = pass, 0 = fail, -1 = skipped.",
    []string{"name"},
    nil,
  )

  descTestDuration = prometheus.NewDesc(
    "blecli_bench_test_duration_seconds",
    "Time taken by the last run of a test.",
    []string{"name"},
    nil,
  )
)

type CollectFunc func() (map[*device.Device]model.Result, time.Time)

func withTimestamp(ts time.Time, m prometheus.Metric) prometheus.Metric {
  if ts.IsZero() {
    return m
  }

  return prometheus.NewMetricWithTimestamp(ts, m)
}

type collector struct {
  CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
  out, ts := c.CollectFunc()

  if out == nil {
    panic("collector got empty data!")
  }

  for dev, result := range out {
    up := 0.

    if result.Error == nil {
      up = 1

      info := prometheus.MustNewConstMetric(
        descDeviceInfo,
        prometheus.GaugeValue,
        1,
        dev.ID(),
        result.Version,
      )

      ch <- withTimestamp(ts, info)
    }

    deviceUp := prometheus.MustNewConstMetric(
      descDeviceUp,
      prometheus.GaugeValue,
      up,
      dev.ID(),
    )

    ch <- withTimestamp(ts, deviceUp)
  }
}

// RegisterCollector exports the probe results returned by f.
func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}

type ResultsFunc func() []testcase.Result

type resultsCollector struct {
  ResultsFunc
}

func (c *resultsCollector) Describe(ch chan<- *prometheus.Desc) {
  prometheus.DescribeByCollect(c, ch)
}

func outcomeValue(o testcase.Outcome) float64 {
  switch o {
  case testcase.OutcomePass:
    return 1
  case testcase.OutcomeSkipped:
    return -1
  default:
    return 0
  }
}

func (c *resultsCollector) Collect(ch chan<- prometheus.Metric) {
  for _, res := range c.ResultsFunc() {
    ch <- prometheus.MustNewConstMetric(
      descTestResult,
      prometheus.GaugeValue,
      outcomeValue(res.Outcome),
      res.Name,
    )

    if res.Outcome != testcase.OutcomeSkipped {
      ch <- prometheus.MustNewConstMetric(
        descTestDuration,
        prometheus.GaugeValue,
        res.Duration.Seconds(),
        res.Name,
      )
    }
  }
}

// RegisterResultsCollector exports the test results returned by f.
func RegisterResultsCollector(f ResultsFunc, reg prometheus.Registerer) {
  reg.MustRegister(&resultsCollector{f})
}
