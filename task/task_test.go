package task_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zoobzio/clockz"
	"go.uber.org/goleak"

	"github.com/dudk/gmf/event"
	"github.com/dudk/gmf/job"
	"github.com/dudk/gmf/task"
)

var errJob = errors.New("job error")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type retFunc func(call int) (job.Result, error)

func okRet(int) (job.Result, error) { return job.OK, nil }

func failRet(int) (job.Result, error) { return job.Fail, errJob }

func doneAfter(calls int) retFunc {
	return func(n int) (job.Result, error) {
		if n >= calls {
			return job.Done, nil
		}
		return job.OK, nil
	}
}

func failAt(call int) retFunc {
	return func(n int) (job.Result, error) {
		if n == call {
			return job.Fail, errJob
		}
		return job.OK, nil
	}
}

type recorder struct {
	sync.Mutex
	counts map[string]int
	order  []string
}

func (r *recorder) fn(label string, d time.Duration, ret retFunc) job.Func {
	return func() (job.Result, error) {
		r.Lock()
		r.counts[label]++
		r.order = append(r.order, label)
		n := r.counts[label]
		r.Unlock()
		time.Sleep(d)
		return ret(n)
	}
}

func (r *recorder) count(label string) int {
	r.Lock()
	defer r.Unlock()
	return r.counts[label]
}

func (r *recorder) total() int {
	r.Lock()
	defer r.Unlock()
	return len(r.order)
}

// fixture is a task with three prepare, three working and three cleanup
// jobs. Cleanup jobs are registered when the job queue ends.
type fixture struct {
	*task.Task
	rec  *recorder
	rets map[string]retFunc
	ends chan event.State

	mu  sync.Mutex
	err error
}

func setup(t *testing.T, rets map[string]retFunc, options ...task.Option) *fixture {
	t.Helper()
	f := &fixture{
		rec:  &recorder{counts: map[string]int{}},
		rets: rets,
		ends: make(chan event.State, 16),
	}
	tsk, err := task.New(append([]task.Option{task.WithName("test"), task.WithEventFunc(f.handle)}, options...)...)
	assert.Nil(t, err)
	f.Task = tsk
	for i := 1; i <= 3; i++ {
		label := fmt.Sprintf("prepare%d", i)
		assert.Nil(t, f.RegisterReady(label, f.rec.fn(label, 0, f.ret(label)), job.Once, false))
	}
	for i := 1; i <= 3; i++ {
		label := fmt.Sprintf("working%d", i)
		assert.Nil(t, f.RegisterReady(label, f.rec.fn(label, time.Duration(i)*5*time.Millisecond, f.ret(label)), job.Infinite, false))
	}
	return f
}

func (f *fixture) ret(label string) retFunc {
	if r, ok := f.rets[label]; ok {
		return r
	}
	return okRet
}

func (f *fixture) handle(pkt event.Packet) error {
	switch pkt.Type {
	case event.LoadingJob:
		if err, ok := pkt.Payload.(error); ok {
			f.mu.Lock()
			f.err = err
			f.mu.Unlock()
		}
		for i := 1; i <= 3; i++ {
			label := fmt.Sprintf("cleanup%d", i)
			if err := f.RegisterReady(label, f.rec.fn(label, 0, f.ret(label)), job.Once, false); err != nil {
				return err
			}
		}
	case event.ChangeState:
		if pkt.State().Terminal() {
			f.ends <- pkt.State()
		}
	}
	return nil
}

func (f *fixture) wait(t *testing.T) event.State {
	t.Helper()
	select {
	case s := <-f.ends:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("task didn't end")
	}
	return event.None
}

func (f *fixture) jobErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fixture) assertCounts(t *testing.T, expected map[string]int) {
	t.Helper()
	for label, n := range expected {
		assert.Equal(t, n, f.rec.count(label), label)
	}
}

func TestWorkingDone(t *testing.T) {
	ctx := context.Background()
	f := setup(t, map[string]retFunc{
		"working1": doneAfter(3),
		"working2": doneAfter(3),
		"working3": doneAfter(3),
	})
	assert.Nil(t, f.Run(ctx))
	assert.Equal(t, event.Finished, f.wait(t))
	assert.Equal(t, event.Finished, f.State())
	f.assertCounts(t, map[string]int{
		"prepare1": 1, "prepare2": 1, "prepare3": 1,
		"working1": 3, "working2": 3, "working3": 3,
		"cleanup1": 1, "cleanup2": 1, "cleanup3": 1,
	})
	assert.Equal(t, float64(3), f.Metrics().Counter(task.JobsDone).Value())
	assert.Equal(t, float64(0), f.Metrics().Counter(task.JobsFailed).Value())
	assert.Nil(t, f.jobErr())
	assert.Nil(t, f.Close())
}

func TestStop(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	assert.Nil(t, f.Run(ctx))
	time.Sleep(100 * time.Millisecond)
	assert.Nil(t, f.Stop(ctx))
	assert.Equal(t, event.Stopped, f.State())
	assert.True(t, f.rec.count("working1") > 0)
	f.assertCounts(t, map[string]int{
		"prepare1": 1, "prepare2": 1, "prepare3": 1,
		"cleanup1": 1, "cleanup2": 1, "cleanup3": 1,
	})
	assert.Equal(t, event.Stopped, f.wait(t))

	// already stopped
	assert.Nil(t, f.Stop(ctx))
	assert.Nil(t, f.Close())
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	t.Run("prepare", func(t *testing.T) {
		f := setup(t, map[string]retFunc{"prepare2": failRet})
		assert.Nil(t, f.Run(ctx))
		assert.Equal(t, event.Error, f.wait(t))
		f.assertCounts(t, map[string]int{
			"prepare1": 1, "prepare2": 1, "prepare3": 0,
			"working1": 0, "working2": 0, "working3": 0,
			"cleanup1": 1, "cleanup2": 1, "cleanup3": 1,
		})
		assert.True(t, errors.Is(f.jobErr(), errJob))

		assert.Nil(t, f.Pause(ctx))
		assert.True(t, errors.Is(f.Resume(ctx), task.ErrNotSupported))
		assert.Nil(t, f.Stop(ctx))
		assert.Nil(t, f.Close())
	})
	t.Run("working", func(t *testing.T) {
		f := setup(t, map[string]retFunc{"working2": failAt(5)})
		assert.Nil(t, f.Run(ctx))
		assert.Equal(t, event.Error, f.wait(t))
		f.assertCounts(t, map[string]int{
			"working1": 5, "working2": 5, "working3": 4,
			"cleanup1": 1, "cleanup2": 1, "cleanup3": 1,
		})
		assert.Equal(t, float64(1), f.Metrics().Counter(task.JobsFailed).Value())
		assert.Nil(t, f.Close())
	})
	t.Run("cleanup", func(t *testing.T) {
		f := setup(t, map[string]retFunc{
			"working1": doneAfter(1),
			"working2": doneAfter(1),
			"working3": doneAfter(1),
			"cleanup2": failRet,
		})
		assert.Nil(t, f.Run(ctx))
		assert.Equal(t, event.Error, f.wait(t))
		// finished cleanup fails, error cleanup fails again
		f.assertCounts(t, map[string]int{
			"cleanup1": 2, "cleanup2": 2, "cleanup3": 0,
		})
		assert.Equal(t, event.Error, f.State())
		assert.Nil(t, f.Close())
	})
	t.Run("after stop", func(t *testing.T) {
		f := setup(t, map[string]retFunc{"cleanup2": failRet})
		assert.Nil(t, f.Run(ctx))
		time.Sleep(50 * time.Millisecond)
		assert.Nil(t, f.Stop(ctx))
		assert.Equal(t, event.Stopped, f.State())
		f.assertCounts(t, map[string]int{
			"cleanup1": 1, "cleanup2": 1, "cleanup3": 1,
		})
		assert.Nil(t, f.Close())
	})
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	assert.Nil(t, f.Run(ctx))
	assert.True(t, errors.Is(f.Run(ctx), task.ErrNotSupported))
	assert.True(t, errors.Is(f.Resume(ctx), task.ErrNotSupported))
	time.Sleep(50 * time.Millisecond)

	assert.Nil(t, f.Pause(ctx))
	assert.Equal(t, event.Paused, f.State())
	paused := f.rec.total()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, paused, f.rec.total())
	assert.Nil(t, f.Pause(ctx))
	assert.True(t, errors.Is(f.Run(ctx), task.ErrNotSupported))

	assert.Nil(t, f.Resume(ctx))
	assert.Equal(t, event.Running, f.State())
	assert.True(t, errors.Is(f.Resume(ctx), task.ErrNotSupported))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, f.rec.total() > paused)

	// stop while paused
	assert.Nil(t, f.Pause(ctx))
	assert.Nil(t, f.Stop(ctx))
	assert.Equal(t, event.Stopped, f.State())
	f.assertCounts(t, map[string]int{
		"cleanup1": 1, "cleanup2": 1, "cleanup3": 1,
	})
	assert.Nil(t, f.Close())
}

func TestContinue(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{counts: map[string]int{}}
	ends := make(chan event.State, 4)
	tsk, err := task.New(task.WithEventFunc(func(pkt event.Packet) error {
		if pkt.Type == event.ChangeState && pkt.State().Terminal() {
			ends <- pkt.State()
		}
		return nil
	}))
	assert.Nil(t, err)
	assert.Nil(t, tsk.RegisterReady("a", rec.fn("a", 0, func(n int) (job.Result, error) {
		if n < 4 {
			return job.Continue, nil
		}
		return job.Done, nil
	}), job.Infinite, false))
	assert.Nil(t, tsk.RegisterReady("b", rec.fn("b", 0, doneAfter(1)), job.Infinite, false))
	assert.Nil(t, tsk.Run(ctx))
	select {
	case s := <-ends:
		assert.Equal(t, event.Finished, s)
	case <-time.After(5 * time.Second):
		t.Fatal("task didn't finish")
	}
	rec.Lock()
	assert.Equal(t, []string{"a", "a", "a", "a", "b"}, rec.order)
	rec.Unlock()
	assert.Nil(t, tsk.Close())
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	f := setup(t, map[string]retFunc{
		"working1": doneAfter(1),
		"working2": doneAfter(1),
		"working3": doneAfter(1),
	})
	assert.Nil(t, f.Run(ctx))
	assert.Equal(t, event.Finished, f.wait(t))
	assert.Nil(t, f.Reset())
	assert.Equal(t, event.Initialized, f.State())

	// rerun with fresh jobs
	assert.Nil(t, f.RegisterReady("again", f.rec.fn("again", 0, doneAfter(2)), job.Infinite, false))
	assert.Nil(t, f.Run(ctx))
	assert.Equal(t, event.Finished, f.wait(t))
	assert.Equal(t, 2, f.rec.count("again"))
	assert.Equal(t, 2, f.rec.count("cleanup1"))
	assert.Nil(t, f.Close())
}

func TestTimeout(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	release := make(chan struct{})
	tsk, err := task.New(task.WithClock(clock), task.WithTimeout(time.Second))
	assert.Nil(t, err)
	assert.Nil(t, tsk.RegisterReady("blocked", func() (job.Result, error) {
		<-release
		return job.OK, nil
	}, job.Infinite, false))
	assert.Nil(t, tsk.Run(ctx))

	errc := make(chan error, 1)
	go func() {
		errc <- tsk.Pause(ctx)
	}()
	time.Sleep(10 * time.Millisecond)
	clock.Advance(time.Second)
	clock.BlockUntilReady()
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, task.ErrTimeout))
	case <-time.After(5 * time.Second):
		t.Fatal("pause didn't time out")
	}

	// worker pauses as soon as the job returns
	close(release)
	assert.Eventually(t, func() bool {
		return tsk.State() == event.Paused
	}, 5*time.Second, 5*time.Millisecond)
	assert.Nil(t, tsk.Stop(ctx))
	assert.Nil(t, tsk.Close())
}

func TestContextCancel(t *testing.T) {
	release := make(chan struct{})
	tsk, err := task.New()
	assert.Nil(t, err)
	assert.Nil(t, tsk.RegisterReady("blocked", func() (job.Result, error) {
		<-release
		return job.Done, nil
	}, job.Infinite, false))
	assert.Nil(t, tsk.Run(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(tsk.Pause(ctx), context.Canceled))
	close(release)
	assert.Nil(t, tsk.Close())
}

func TestRegister(t *testing.T) {
	tsk, err := task.New(task.WithName("register"))
	assert.Nil(t, err)
	assert.Equal(t, "register", tsk.Name())
	assert.Equal(t, event.Initialized, tsk.State())
	assert.True(t, errors.Is(tsk.Register(nil, false), task.ErrInvalidArg))
	assert.True(t, errors.Is(tsk.RegisterReady("nil", nil, job.Once, false), task.ErrInvalidArg))
	assert.Nil(t, tsk.RegisterReady("a", func() (job.Result, error) { return job.OK, nil }, job.Once, false))
	assert.Nil(t, tsk.Register(job.NewInfinite("b", func() (job.Result, error) { return job.Done, nil }), false))
	assert.Equal(t, []string{"a", "b"}, tsk.Jobs())

	_, err = task.New(task.WithTimeout(0))
	assert.True(t, errors.Is(err, task.ErrInvalidArg))

	assert.Nil(t, tsk.Close())
	assert.Nil(t, tsk.Close())
	assert.True(t, errors.Is(tsk.Run(context.Background()), task.ErrInvalidState))
	assert.Empty(t, tsk.Jobs())
}

func TestControlRacingFinish(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		op   func(*task.Task, context.Context) error
	}{
		{name: "pause", op: (*task.Task).Pause},
		{name: "stop", op: (*task.Task).Stop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			release := make(chan struct{})
			tsk, err := task.New(task.WithName(tt.name))
			assert.Nil(t, err)
			assert.Nil(t, tsk.RegisterReady("last", func() (job.Result, error) {
				<-release
				return job.Done, nil
			}, job.Infinite, false))
			assert.Nil(t, tsk.Run(ctx))

			errc := make(chan error, 1)
			go func() {
				errc <- tt.op(tsk, ctx)
			}()
			time.Sleep(10 * time.Millisecond)
			close(release)
			select {
			case err := <-errc:
				assert.Nil(t, err)
			case <-time.After(5 * time.Second):
				t.Fatalf("%s not acknowledged", tt.name)
			}
			assert.Eventually(t, func() bool {
				return tsk.State() == event.Finished
			}, 5*time.Second, 5*time.Millisecond)

			// next run isn't affected by the request
			assert.Nil(t, tsk.Reset())
			calls := 0
			assert.Nil(t, tsk.RegisterReady("again", func() (job.Result, error) {
				calls++
				if calls == 3 {
					return job.Done, nil
				}
				return job.OK, nil
			}, job.Infinite, false))
			assert.Nil(t, tsk.Run(ctx))
			assert.Eventually(t, func() bool {
				return tsk.State() == event.Finished
			}, 5*time.Second, 5*time.Millisecond)
			assert.Nil(t, tsk.Close())
			assert.Equal(t, 3, calls)
		})
	}
}
