// Package metric measures element throughput per component type.
package metric

import (
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/metricz"
)

const componentsLabel = "gmf.components"

const (
	// MessageCounter measures number of processed payloads.
	MessageCounter = "Messages"
	// ByteCounter measures number of produced bytes.
	ByteCounter = "Bytes"
	// LatencyCounter measures latency between processing calls.
	LatencyCounter = "Latency"
	// DurationCounter counts the duration of produced stream.
	DurationCounter = "Duration"
	// ComponentCounter counts number of metered components.
	ComponentCounter = "Components"
)

var (
	registry   = metricz.New()
	components = metrics{
		m: make(map[string]*metric),
	}
)

// Registry returns registry all meters report to.
func Registry() *metricz.Registry {
	return registry
}

// Get metrics values for provided component type.
func Get(component interface{}) map[string]string {
	return getCounters(getType(component))
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]string {
	components.Lock()
	types := make([]string, 0, len(components.m))
	for component := range components.m {
		types = append(types, component)
	}
	components.Unlock()
	m := make(map[string]map[string]string, len(types))
	for _, component := range types {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(componentType string) map[string]string {
	components.Lock()
	metric, ok := components.m[componentType]
	components.Unlock()
	if !ok {
		return map[string]string{}
	}
	return map[string]string{
		MessageCounter:   formatFloat(registry.Counter(key(componentType, MessageCounter)).Value()),
		ComponentCounter: formatFloat(registry.Counter(key(componentType, ComponentCounter)).Value()),
		LatencyCounter:   time.Duration(registry.Gauge(key(componentType, LatencyCounter)).Value()).String(),
		ByteCounter:      strconv.FormatInt(atomic.LoadInt64(&metric.bytes), 10),
		DurationCounter:  time.Duration(atomic.LoadInt64(&metric.duration)).String(),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ResetFunc returns new Measure closure. This closure is needed to postpone metrics
// capture until component is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when a payload is processed.
type MeasureFunc func(bytes int64)

// Meter creates new meter closure to capture component counters.
// BytesPerSecond is used to convert produced bytes into stream duration,
// zero disables duration.
func Meter(component interface{}, bytesPerSecond int) ResetFunc {
	t := getType(component)
	metric := components.get(t)
	registry.Counter(key(t, ComponentCounter)).Inc()
	return func() MeasureFunc {
		calledAt := time.Now()
		return func(n int64) {
			registry.Gauge(key(t, LatencyCounter)).Set(float64(time.Since(calledAt)))
			registry.Counter(key(t, MessageCounter)).Inc()
			registry.Gauge(key(t, ByteCounter)).Set(float64(atomic.AddInt64(&metric.bytes, n)))
			if bytesPerSecond > 0 {
				d := time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
				registry.Gauge(key(t, DurationCounter)).Set(float64(atomic.AddInt64(&metric.duration, int64(d))))
			}
			calledAt = time.Now()
		}
	}
}

type metrics struct {
	sync.Mutex
	m map[string]*metric
}

func (m *metrics) get(componentType string) *metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[componentType]; ok {
		// return existing metric if available
		return metric
	}
	metric := &metric{}
	m.m[componentType] = metric
	return metric
}

// metric keeps sums shared by all meters of the same type, gauges only
// hold snapshots.
type metric struct {
	bytes    int64
	duration int64
}

func key(componentType, counter string) metricz.Key {
	return metricz.Key(fmt.Sprintf("%s.%s.%s", componentsLabel, componentType, counter))
}

func getType(component interface{}) string {
	rv := reflect.ValueOf(component)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	return rv.Type().String()
}
