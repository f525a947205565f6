package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/suite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Tsukikage7/cronjob/clock"
	"github.com/Tsukikage7/cronjob/logger"
	"github.com/Tsukikage7/cronjob/recovery"
	"github.com/Tsukikage7/cronjob/schedule"
)

// recordingMetrics 记录调用的 metrics.Recorder.
type recordingMetrics struct {
	mu      sync.Mutex
	ticks   map[string]int
	fails   map[string]int
	skips   map[string]int
	panics  map[string]int
	next    map[string]time.Time
	forgets []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		ticks:  map[string]int{},
		fails:  map[string]int{},
		skips:  map[string]int{},
		panics: map[string]int{},
		next:   map[string]time.Time{},
	}
}

func (m *recordingMetrics) RecordTick(job string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[job]++
	if err != nil {
		m.fails[job]++
	}
}

func (m *recordingMetrics) RecordSkip(job string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips[job]++
}

func (m *recordingMetrics) RecordPanic(job string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[job]++
}

func (m *recordingMetrics) SetNextRun(job string, next time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next[job] = next
}

func (m *recordingMetrics) Forget(job string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgets = append(m.forgets, job)
}

// stoppingTracer 在开启 span 时停止任务，模拟 Stop 与回调启动之间的竞争.
type stoppingTracer struct {
	trace.Tracer
	job **Job
}

func (t stoppingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	(*t.job).Stop()
	return t.Tracer.Start(ctx, name, opts...)
}

// JobTestSuite 任务状态机测试套件，所有时间由虚拟时钟驱动.
type JobTestSuite struct {
	suite.Suite
	epoch time.Time
	clock *clock.FakeClock
	ticks int
	fired []time.Time
	done  int
}

func TestJobSuite(t *testing.T) {
	suite.Run(t, new(JobTestSuite))
}

func (s *JobTestSuite) SetupTest() {
	s.epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.clock = clock.Fake(s.epoch)
	s.ticks = 0
	s.fired = nil
	s.done = 0
}

func (s *JobTestSuite) opts(extra ...Option) []Option {
	return append([]Option{
		WithClock(s.clock),
		WithLocation(time.UTC),
		WithLogger(logger.NewNop()),
	}, extra...)
}

func (s *JobTestSuite) onTick(context.Context, any) error {
	s.ticks++
	s.fired = append(s.fired, s.clock.Now())
	return nil
}

func (s *JobTestSuite) onComplete(any) {
	s.done++
}

func (s *JobTestSuite) advanceSeconds(n int) {
	for range n {
		s.clock.Advance(time.Second)
	}
}

func (s *JobTestSuite) TestEverySecond() {
	job := MustNewJob("* * * * * *", s.onTick, nil, true, "", nil, false, s.opts()...)

	s.advanceSeconds(5)

	s.Equal(5, s.ticks)
	s.Equal(JobStateScheduled, job.State())
	next, ok := job.NextRun()
	s.True(ok)
	s.Equal(s.epoch.Add(6*time.Second), next)
}

func (s *JobTestSuite) TestSecondsRange() {
	MustNewJob("0-8 * * * * *", s.onTick, nil, true, "", nil, false, s.opts()...)

	s.advanceSeconds(10)

	s.Equal(8, s.ticks)
	s.Equal(s.epoch.Add(8*time.Second), s.fired[len(s.fired)-1])
}

func (s *JobTestSuite) TestStepEveryTwoSeconds() {
	MustNewJob("*/2 * * * * *", s.onTick, nil, true, "", nil, false, s.opts()...)

	s.advanceSeconds(1)
	s.Equal(0, s.ticks)

	s.advanceSeconds(4)
	s.Equal(2, s.ticks)
}

func (s *JobTestSuite) TestFiveFieldFiresOncePerMinute() {
	MustNewJob("* * * * *", s.onTick, nil, true, "", nil, false, s.opts()...)

	s.clock.Advance(3*time.Minute + 30*time.Second)

	s.Equal(3, s.ticks)
	for _, at := range s.fired {
		s.Equal(0, at.Second())
	}
}

func (s *JobTestSuite) TestMonthRollover() {
	s.clock = clock.Fake(time.Date(2014, 12, 31, 23, 59, 59, 0, time.UTC))
	job := MustNewJob("0 0 0 1 * *", s.onTick, nil, true, "UTC", nil, false, s.opts()...)

	s.clock.Advance(1001 * time.Millisecond)
	s.Equal(1, s.ticks)

	s.clock.Advance(2678399001 * time.Millisecond)
	s.Equal(1, s.ticks)

	s.clock.Advance(2678400001 * time.Millisecond)
	s.Equal(3, s.ticks)

	s.Equal([]time.Time{
		time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2015, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC),
	}, s.fired)

	next, ok := job.NextRun()
	s.True(ok)
	s.Equal(time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC), next)
}

func (s *JobTestSuite) TestStopInsideOnTick() {
	var ctxErr error
	onTick := func(ctx context.Context, target any) error {
		s.ticks++
		target.(*Job).Stop()
		ctxErr = ctx.Err()
		return nil
	}
	job := MustNewJob("* * * * * *", onTick, s.onComplete, true, "", nil, false, s.opts()...)

	s.advanceSeconds(5)

	s.Equal(1, s.ticks)
	s.Equal(1, s.done)
	s.Equal(JobStateStopped, job.State())
	s.ErrorIs(ctxErr, context.Canceled)
	s.Equal(0, s.clock.PendingCount())
}

func (s *JobTestSuite) TestFixedInstantFiresOnce() {
	job := MustNewJob(s.epoch.Add(time.Second), s.onTick, s.onComplete, true, "", nil, false, s.opts()...)
	s.True(job.Schedule().OneShot())

	s.advanceSeconds(1)
	s.Equal(1, s.ticks)
	s.Equal(JobStateStopped, job.State())
	s.Equal(1, s.done)

	s.clock.Advance(time.Hour)
	s.Equal(1, s.ticks)
	s.Equal(1, s.done)

	job.Stop()
	s.Equal(1, s.done)
}

func (s *JobTestSuite) TestFixedInstantFromEpochMillis() {
	at := s.epoch.Add(90 * time.Second)
	job := MustNewJob(at.UnixMilli(), s.onTick, nil, true, "", nil, false, s.opts()...)

	s.clock.Advance(2 * time.Minute)

	s.Equal([]time.Time{at}, s.fired)
	s.Equal(JobStateStopped, job.State())
}

func (s *JobTestSuite) TestSetScheduleRequiresStop() {
	job := MustNewJob("* * * * * *", s.onTick, nil, true, "", nil, false, s.opts()...)
	s.advanceSeconds(1)
	s.Equal(1, s.ticks)

	s.ErrorIs(job.SetSchedule("*/2 * * * * *"), ErrInvalidMutation)
	s.ErrorIs(job.SetTime("*/2 * * * * *"), ErrInvalidMutation)

	job.Stop()
	s.Require().NoError(job.SetTime("*/2 * * * * *"))
	s.Equal(JobStateStopped, job.State())
	s.Equal("*/2 * * * * *", job.Schedule().String())

	job.Start()
	s.advanceSeconds(4)
	s.Equal(3, s.ticks)
}

func (s *JobTestSuite) TestSetScheduleInvalid() {
	job := MustNewJob("* * * * * *", s.onTick, nil, false, "", nil, false, s.opts()...)

	err := job.SetSchedule("* 60 * * * *")
	var parseErr *schedule.ParseError
	s.Require().ErrorAs(err, &parseErr)
	s.Equal("minute", parseErr.Field)
	s.Equal("* * * * * *", job.Schedule().String())
}

func (s *JobTestSuite) TestSetScheduleInsideOnTickRejected() {
	var err error
	onTick := func(_ context.Context, target any) error {
		err = target.(*Job).SetSchedule("0 * * * * *")
		return nil
	}
	MustNewJob("* * * * * *", onTick, nil, true, "", nil, false, s.opts()...)

	s.advanceSeconds(1)
	s.ErrorIs(err, ErrInvalidMutation)
}

func (s *JobTestSuite) TestRestartInsideOnTick() {
	onTick := func(_ context.Context, target any) error {
		s.ticks++
		job := target.(*Job)
		job.Start()
		if s.ticks == 1 {
			job.Stop()
			s.Require().NoError(job.SetSchedule("*/10 * * * * *"))
			job.Start()
		}
		return nil
	}
	job := MustNewJob("* * * * * *", onTick, s.onComplete, true, "", nil, false, s.opts()...)

	s.advanceSeconds(1)
	s.Equal(1, s.ticks)
	s.Equal(1, s.done)

	next, ok := job.NextRun()
	s.True(ok)
	s.Equal(s.epoch.Add(10*time.Second), next)

	s.advanceSeconds(9)
	s.Equal(2, s.ticks)
	s.Equal(1, s.clock.PendingCount())
}

func (s *JobTestSuite) TestTargetBinding() {
	type mailer struct{ sent int }
	m := &mailer{}
	onTick := func(_ context.Context, target any) error {
		target.(*mailer).sent++
		return nil
	}
	var completed any
	MustNewJob("* * * * * *", onTick, func(target any) { completed = target }, true, "", m, false, s.opts()...).Stop()
	s.Same(m, completed)

	job := MustNewJob("* * * * * *", onTick, nil, true, "", m, false, s.opts()...)
	s.advanceSeconds(2)
	s.Equal(2, m.sent)
	job.Stop()

	var got any
	job = MustNewJob("* * * * * *", func(_ context.Context, target any) error {
		got = target
		return nil
	}, nil, true, "", nil, false, s.opts()...)
	s.advanceSeconds(1)
	s.Same(job, got)
}

func (s *JobTestSuite) TestRunOnInit() {
	var manual []bool
	hooks := NewHooks().AfterTick(func(_ context.Context, tc *TickContext) {
		manual = append(manual, tc.Manual)
	}).Build()

	job := MustNewJob("* * * * * *", s.onTick, nil, false, "", nil, true, s.opts(WithHooks(hooks))...)
	s.Equal(1, s.ticks)
	s.Equal(JobStateIdle, job.State())
	s.Equal(s.epoch, job.LastRun())

	job.Start()
	s.advanceSeconds(1)
	s.Equal(2, s.ticks)
	s.Equal([]bool{true, false}, manual)
}

func (s *JobTestSuite) TestStartExhausted() {
	job := MustNewJob("0 0 0 31 2 *", s.onTick, s.onComplete, true, "", nil, false, s.opts()...)

	s.Equal(JobStateStopped, job.State())
	s.Equal(0, s.done)
	_, ok := job.NextRun()
	s.False(ok)
	s.Equal(0, s.clock.PendingCount())

	past := MustNewJob(s.epoch.Add(-time.Minute), s.onTick, s.onComplete, true, "", nil, false, s.opts()...)
	s.Equal(JobStateStopped, past.State())
	s.Equal(0, s.done)
	s.Equal(0, s.ticks)
}

func (s *JobTestSuite) TestStartIsIdempotent() {
	job := MustNewJob("* * * * * *", s.onTick, nil, true, "", nil, false, s.opts()...)
	job.Start()
	job.Start()

	s.Equal(1, s.clock.PendingCount())
	s.advanceSeconds(3)
	s.Equal(3, s.ticks)
}

func (s *JobTestSuite) TestStopIdempotent() {
	job := MustNewJob("* * * * * *", s.onTick, s.onComplete, true, "", nil, false, s.opts()...)

	job.Stop()
	job.Stop()
	s.Equal(1, s.done)

	s.advanceSeconds(3)
	s.Equal(0, s.ticks)

	idle := MustNewJob("* * * * * *", s.onTick, s.onComplete, false, "", nil, false, s.opts()...)
	idle.Stop()
	s.Equal(JobStateStopped, idle.State())
	s.Equal(1, s.done)
}

func (s *JobTestSuite) TestNamedConfigForm() {
	job, err := NewJobFromConfig(JobConfig{
		Name:       "heartbeat",
		Schedule:   "*/2 * * * * *",
		OnTick:     s.onTick,
		OnComplete: s.onComplete,
		Start:      true,
		Timezone:   "UTC",
	}, s.opts()...)
	s.Require().NoError(err)
	s.Equal("heartbeat", job.Name())
	s.NotEmpty(job.ID())

	s.advanceSeconds(5)
	s.Equal(2, s.ticks)

	job.Stop()
	s.Equal(1, s.done)
}

func (s *JobTestSuite) TestBuilderForm() {
	job := NewBuilder("builder").
		Schedule("* * * * * *").
		OnTick(s.onTick).
		OnComplete(s.onComplete).
		Timezone("UTC").
		Start().
		MustBuild(s.opts()...)

	s.advanceSeconds(2)
	s.Equal(2, s.ticks)
	s.Equal("builder", job.Name())
	s.Equal(time.UTC, job.Location())
}

func (s *JobTestSuite) TestConstructionErrors() {
	_, err := NewJob("* * * * * *", nil, nil, false, "", nil, false, s.opts()...)
	s.ErrorIs(err, ErrHandlerNil)

	_, err = NewJob("* * 24 * * *", s.onTick, nil, false, "", nil, false, s.opts()...)
	s.ErrorIs(err, schedule.ErrInvalidExpression)

	_, err = NewJob("* * * * * *", s.onTick, nil, false, "Mars/Olympus", nil, false, s.opts()...)
	s.ErrorIs(err, schedule.ErrInvalidTimezone)

	_, err = NewJob(nil, s.onTick, nil, false, "", nil, false, s.opts()...)
	s.ErrorIs(err, schedule.ErrEmptySchedule)

	s.Panics(func() { MustNewJobFromConfig(JobConfig{Schedule: "bad"}, s.opts()...) })
}

func (s *JobTestSuite) TestTimezoneAcrossDST() {
	s.clock = clock.Fake(time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC))
	job := MustNewJob("0 0 9 * * *", s.onTick, nil, true, "America/New_York", nil, false, s.opts()...)

	next, ok := job.NextRun()
	s.True(ok)
	s.Equal(time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC), next.UTC())

	s.clock.Advance(48 * time.Hour)

	s.Require().Len(s.fired, 2)
	s.Equal(time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC), s.fired[0].UTC())
	s.Equal(time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC), s.fired[1].UTC())
}

func (s *JobTestSuite) TestCallbackErrorKeepsSchedule() {
	var hookErrs []error
	hooks := NewHooks().OnError(func(_ context.Context, tc *TickContext) {
		hookErrs = append(hookErrs, tc.Error)
	}).Build()
	rec := newRecordingMetrics()

	calls := 0
	onTick := func(context.Context, any) error {
		calls++
		if calls == 1 {
			return errors.New("smtp down")
		}
		if calls == 2 {
			panic("nil pointer")
		}
		return nil
	}
	job := MustNewJobFromConfig(JobConfig{
		Name: "mail", Schedule: "* * * * * *", OnTick: onTick, Start: true,
	}, s.opts(WithHooks(hooks), WithMetrics(rec))...)

	s.advanceSeconds(3)

	s.Equal(3, calls)
	s.Equal(JobStateScheduled, job.State())
	s.Require().Len(hookErrs, 2)
	s.EqualError(hookErrs[0], "smtp down")
	var panicErr *recovery.PanicError
	s.ErrorAs(hookErrs[1], &panicErr)
	s.Equal("nil pointer", panicErr.Value)

	stats := job.Stats()
	s.Equal(int64(3), stats.RunCount)
	s.Equal(int64(1), stats.SuccessCount)
	s.Equal(int64(2), stats.FailCount)
	s.Nil(stats.LastError)
	s.Equal(s.epoch.Add(3*time.Second), stats.LastSuccessAt)

	s.Equal(3, rec.ticks["mail"])
	s.Equal(2, rec.fails["mail"])
	s.Equal(1, rec.panics["mail"])
	s.Equal(s.epoch.Add(4*time.Second), rec.next["mail"])
}

func (s *JobTestSuite) TestFireReturnsCallbackError() {
	cause := errors.New("disk full")
	job := MustNewJobFromConfig(JobConfig{
		Name:     "backup",
		Schedule: "* * * * * *",
		OnTick:   func(context.Context, any) error { return cause },
		Start:    true,
	}, s.opts()...)

	job.mu.Lock()
	gen, at := job.gen, job.next
	job.mu.Unlock()

	err := job.fire(gen, at)
	s.ErrorIs(err, ErrCallbackFailed)
	s.ErrorIs(err, cause)
	var cbErr *CallbackError
	s.Require().ErrorAs(err, &cbErr)
	s.Equal("backup", cbErr.Job)
	s.Equal(at, cbErr.Scheduled)
	s.Contains(err.Error(), "disk full")

	s.Equal(JobStateScheduled, job.State())
	next, _ := job.NextRun()
	s.Equal(at.Add(time.Second), next)

	s.NoError(job.fire(gen, at), "stale generation is ignored")
	s.Equal(int64(1), job.Stats().RunCount)
}

func (s *JobTestSuite) TestStaleTimerAfterStop() {
	job := MustNewJob("* * * * * *", s.onTick, nil, true, "", nil, false, s.opts()...)
	job.mu.Lock()
	gen, at := job.gen, job.next
	job.mu.Unlock()

	job.Stop()
	s.NoError(job.fire(gen, at))
	s.Equal(0, s.ticks)
}

func (s *JobTestSuite) TestBeforeTickSkips() {
	var skipped []string
	hooks := NewHooks().
		BeforeTick(func(_ context.Context, tc *TickContext) error {
			if tc.Scheduled.Second()%2 == 1 {
				return errors.New("odd second")
			}
			return nil
		}).
		OnSkip(func(_ context.Context, tc *TickContext) {
			skipped = append(skipped, tc.SkipReason)
		}).
		Build()
	rec := newRecordingMetrics()

	job := MustNewJobFromConfig(JobConfig{
		Name: "even", Schedule: "* * * * * *", OnTick: s.onTick, Start: true,
	}, s.opts(WithHooks(hooks), WithMetrics(rec))...)

	s.advanceSeconds(4)

	s.Equal(2, s.ticks)
	s.Equal([]string{"odd second", "odd second"}, skipped)
	s.Equal(int64(2), job.Stats().SkipCount)
	s.Equal(2, rec.skips["even"])
	s.Equal(JobStateScheduled, job.State())
}

func (s *JobTestSuite) TestTrigger() {
	job := MustNewJobFromConfig(JobConfig{
		Name:     "manual",
		Schedule: "0 0 0 1 1 *",
		OnTick: func(context.Context, any) error {
			s.ticks++
			if s.ticks == 2 {
				return errors.New("second run fails")
			}
			return nil
		},
	}, s.opts()...)

	s.NoError(job.Trigger(context.Background()))
	s.Equal(JobStateIdle, job.State())

	err := job.Trigger(nil) //nolint:staticcheck
	s.ErrorIs(err, ErrCallbackFailed)
	s.Equal(2, s.ticks)
	s.Equal(JobStateIdle, job.State())
}

func (s *JobTestSuite) TestTimeoutContext() {
	var deadline time.Time
	var hasDeadline bool
	onTick := func(ctx context.Context, _ any) error {
		deadline, hasDeadline = ctx.Deadline()
		return nil
	}

	bounded := MustNewJob("* * * * * *", onTick, nil, true, "", nil, false, s.opts(WithDefaultTimeout(time.Hour))...)
	s.advanceSeconds(1)
	s.True(hasDeadline)
	s.False(deadline.IsZero())
	bounded.Stop()

	hasDeadline = false
	MustNewJobFromConfig(JobConfig{Schedule: "* * * * * *", OnTick: onTick, Start: true}, s.opts()...)
	s.advanceSeconds(1)
	s.False(hasDeadline)
}

func (s *JobTestSuite) TestTickContextCarriesJobID() {
	var jobID any
	job := MustNewJob("* * * * * *", func(ctx context.Context, _ any) error {
		jobID = ctx.Value(logger.JobIDKey)
		return nil
	}, nil, true, "", nil, false, s.opts()...)

	s.advanceSeconds(1)
	s.Equal(job.ID(), jobID)
}

func (s *JobTestSuite) TestTracingSpans() {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	var traceID any
	MustNewJobFromConfig(JobConfig{
		Name:     "traced",
		Schedule: "* * * * * *",
		OnTick: func(ctx context.Context, _ any) error {
			traceID = ctx.Value(logger.TraceIDKey)
			return nil
		},
		Start: true,
	}, s.opts(WithTracer(tp.Tracer("test")))...)

	s.advanceSeconds(2)

	spans := recorder.Ended()
	s.Require().Len(spans, 2)
	s.Equal("cronjob.tick traced", spans[0].Name())
	s.Equal(spans[1].SpanContext().TraceID().String(), traceID)
}

func (s *JobTestSuite) TestJobStateString() {
	s.Equal("idle", JobStateIdle.String())
	s.Equal("scheduled", JobStateScheduled.String())
	s.Equal("running", JobStateRunning.String())
	s.Equal("stopped", JobStateStopped.String())
	s.Equal("unknown", JobState(42).String())
}

func (s *JobTestSuite) TestStateWhileRunning() {
	var inside JobState
	var running bool
	job := MustNewJob("* * * * * *", func(_ context.Context, target any) error {
		inside = target.(*Job).State()
		running = target.(*Job).Running()
		return nil
	}, nil, true, "", nil, false, s.opts()...)

	s.advanceSeconds(1)
	s.Equal(JobStateRunning, inside)
	s.True(running)
	s.Contains(job.String(), "state:scheduled")
}

func (s *JobTestSuite) TestStopWhileTickStartingSkipsCallback() {
	var job *Job
	var reasons []string
	hooks := NewHooks().OnSkip(func(_ context.Context, tc *TickContext) {
		reasons = append(reasons, tc.SkipReason)
	}).Build()
	tracer := stoppingTracer{Tracer: noop.NewTracerProvider().Tracer("test"), job: &job}

	job = MustNewJob("* * * * * *", s.onTick, s.onComplete, true, "", nil, false,
		s.opts(WithTracer(tracer), WithHooks(hooks))...)

	s.advanceSeconds(3)

	s.Equal(0, s.ticks)
	s.Equal(1, s.done)
	s.Equal(JobStateStopped, job.State())
	s.Equal([]string{"job stopped before callback started"}, reasons)

	stats := job.Stats()
	s.Equal(int64(0), stats.RunCount)
	s.Equal(int64(1), stats.SkipCount)
}
