package vdb

import (
	"fmt"
	"strconv"
	"strings"
)

// MetricType selects a category of coverage. The values follow the external
// database's own enumeration and are not range-checked here.
type MetricType uint32

const (
	MetricLine      MetricType = 4
	MetricToggle    MetricType = 5
	MetricFSM       MetricType = 6
	MetricCondition MetricType = 7
	MetricBranch    MetricType = 8
	MetricAssert    MetricType = 9
)

var metricNames = map[MetricType]string{
	MetricLine:      "line",
	MetricToggle:    "toggle",
	MetricFSM:       "fsm",
	MetricCondition: "condition",
	MetricBranch:    "branch",
	MetricAssert:    "assert",
}

// String returns the metric name, or its number for unknown selectors.
func (m MetricType) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return strconv.FormatUint(uint64(m), 10)
}

// ParseMetricType accepts a metric name ("line", "toggle", ...) or any
// unsigned integer. Integers are passed through unvalidated.
func ParseMetricType(s string) (MetricType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range metricNames {
		if name == s {
			return m, nil
		}
	}
	switch s {
	case "tgl":
		return MetricToggle, nil
	case "cond":
		return MetricCondition, nil
	}

	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown metric type %q", s)
	}
	return MetricType(n), nil
}
