package metric_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/gmf/metric"
)

type meteredA struct{}

type meteredB struct{}

func TestMeter(t *testing.T) {
	var tests = []struct {
		component          interface{}
		routines           int
		payloads           int
		size               int64
		expectedBytes      string
		expectedMessages   string
		expectedComponents string
	}{
		{
			component:          meteredA{},
			routines:           2,
			payloads:           10,
			size:               100,
			expectedBytes:      "2000",
			expectedMessages:   "20",
			expectedComponents: "2",
		},
		{
			// same type through a pointer accumulates
			component:          &meteredA{},
			routines:           2,
			payloads:           10,
			size:               100,
			expectedBytes:      "4000",
			expectedMessages:   "40",
			expectedComponents: "4",
		},
		{
			component:          &meteredB{},
			routines:           1,
			payloads:           4,
			size:               4,
			expectedBytes:      "16",
			expectedMessages:   "4",
			expectedComponents: "1",
		},
	}
	testFn := func(fn metric.MeasureFunc, wg *sync.WaitGroup, payloads int, size int64) {
		for i := 0; i < payloads; i++ {
			fn(size)
		}
		wg.Done()
	}

	for _, c := range tests {
		wg := &sync.WaitGroup{}
		wg.Add(c.routines)
		meters := make([]metric.MeasureFunc, c.routines)
		for i := range meters {
			meters[i] = metric.Meter(c.component, 0)()
		}
		for i := 0; i < c.routines; i++ {
			go testFn(meters[i], wg, c.payloads, c.size)
		}
		wg.Wait()
		values := metric.Get(c.component)
		assert.Equal(t, c.expectedBytes, values[metric.ByteCounter])
		assert.Equal(t, c.expectedMessages, values[metric.MessageCounter])
		assert.Equal(t, c.expectedComponents, values[metric.ComponentCounter])
	}
	assert.Contains(t, metric.GetAll(), "metric_test.meteredB")
	assert.Empty(t, metric.Get(struct{ unknown int }{}))
}

func TestDuration(t *testing.T) {
	type metered struct{}
	measure := metric.Meter(metered{}, 1000)()
	measure(500)
	measure(1500)
	assert.Equal(t, "2s", metric.Get(metered{})[metric.DurationCounter])
}
