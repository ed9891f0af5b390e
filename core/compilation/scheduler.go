package compilation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/result"
	"github.com/trezcool/masomo-results/core/user"
)

var (
	// errors
	ErrJobNotFound = errors.New("compilation job not found")
)

type (
	Repository interface {
		QueryJobs(ctx context.Context, filter JobFilter) ([]Job, error)
		GetJob(ctx context.Context, id string) (Job, error)
		// MutateJobs hands every job to fn under the store's write lock and saves what fn returns.
		MutateJobs(ctx context.Context, fn func(jobs []Job) ([]Job, error)) error
	}

	// Notifier is told when a job reaches a terminal status.
	Notifier interface {
		JobFinished(ctx context.Context, job Job) error
	}

	// ReportGenerator renders the report cards of a compiled group.
	ReportGenerator interface {
		GenerateGroupReports(ctx context.Context, key result.GroupKey) error
	}

	timer interface {
		Stop() bool
	}

	// memberError is a failure scoped to one group member; the job goes on.
	memberError struct {
		studentID string
		msg       string
	}
)

func (e *memberError) Error() string {
	return fmt.Sprintf("student %s: %s", e.studentID, e.msg)
}

// Scheduler turns submitted groups into graded, ranked and optionally approved results.
// Groups are picked up by a periodic scan and by GroupSubmitted events; each job runs after
// the configured delay so that late submissions are batched.
type Scheduler struct {
	jobs     Repository
	results  result.Repository
	notifier Notifier
	reports  ReportGenerator
	conf     core.CompilationConfig
	policy   result.Policy
	logger   core.Logger

	afterFunc func(d time.Duration, f func()) timer // mockable
	cron      *cron.Cron
	events    chan result.GroupKey

	mu      sync.Mutex
	timers  map[string]timer // {jobID: timer}; pending jobs waiting for their delay
	running map[string]bool  // {jobID: true}
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ result.SubmissionListener = (*Scheduler)(nil)

// NewScheduler returns a stopped Scheduler. notifier and reports are optional.
func NewScheduler(
	jobs Repository,
	results result.Repository,
	notifier Notifier,
	reports ReportGenerator,
	conf *core.Config,
	logger core.Logger,
) (*Scheduler, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(jobs, "jobs"),
		vala.IsNotNil(results, "results"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "creating scheduler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:     jobs,
		results:  results,
		notifier: notifier,
		reports:  reports,
		conf:     conf.Compilation,
		policy:   result.ParsePolicy(conf.GradingPolicy),
		logger:   logger,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		events:  make(chan result.GroupKey, 64),
		timers:  make(map[string]timer),
		running: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start runs a first scan, then scans every ScanInterval and on every GroupSubmitted event
// until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	spec := "@every " + s.conf.ScanInterval.String()
	if _, err := s.cron.AddFunc(spec, func() { s.scanAndLog("interval") }); err != nil {
		return errors.Wrapf(err, "scheduling scan %q", spec)
	}
	s.cron.Start()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info(fmt.Sprintf("compilation scheduler started: scan %s, delay %s", spec, s.conf.Delay))
	return nil
}

// Stop cancels the pending timers and the periodic scan, then waits for in-flight work.
// Pending jobs stay durable and are picked up by the next process.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	c := s.cron
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("compilation scheduler stopped")
}

// GroupSubmitted queues a scan for key. It never blocks; when the queue is full the
// periodic scan picks the group up.
func (s *Scheduler) GroupSubmitted(key result.GroupKey) {
	select {
	case s.events <- key:
	default:
		s.logger.Warn("compilation event queue full, waiting for next scan: " + key.String())
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	s.scanAndLog("startup")
	for {
		select {
		case <-s.ctx.Done():
			return
		case key := <-s.events:
			s.scanAndLog("submission of " + key.String())
		}
	}
}

func (s *Scheduler) scanAndLog(reason string) {
	created, err := s.Scan(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error(fmt.Sprintf("compilation scan (%s): %v", reason, err), err)
		}
		return
	}
	for _, job := range created {
		s.logger.Info(fmt.Sprintf("compilation job %s queued for %s (%d students)", job.ID, job.Group(), job.TotalStudents))
	}
}

type groupState struct {
	size       int
	stale      bool // some member was not compiled since its last submission
	lastSubmit time.Time
}

// Scan creates a pending job for every submitted group that needs compilation and holds no
// active job, and reconciles abandoned jobs. It returns the jobs it created.
func (s *Scheduler) Scan(ctx context.Context) ([]Job, error) {
	submitted, err := s.results.QueryResults(ctx, result.QueryFilter{Statuses: []result.Status{result.StatusSubmitted}})
	if err != nil {
		return nil, errors.Wrap(err, "querying submitted results")
	}

	order := make([]result.GroupKey, 0)
	groups := make(map[result.GroupKey]*groupState)
	for i := range submitted {
		r := &submitted[i]
		key := r.Group()
		g, ok := groups[key]
		if !ok {
			g = new(groupState)
			groups[key] = g
			order = append(order, key)
		}
		g.size++
		if r.NeedsCompilation() {
			g.stale = true
		}
		if r.SubmittedAt.Valid && r.SubmittedAt.Time.After(g.lastSubmit) {
			g.lastSubmit = r.SubmittedAt.Time
		}
	}

	var created, resumed []Job
	staleAfter := time.Duration(s.conf.StaleAfterScans) * s.conf.ScanInterval
	err = s.jobs.MutateJobs(ctx, func(jobs []Job) ([]Job, error) {
		created, resumed = nil, nil
		now := core.Now()

		latest := make(map[result.GroupKey]int)
		for i := range jobs {
			job := &jobs[i]
			switch job.Status {
			case JobPending:
				if !s.hasTimer(job.ID) && !s.isRunning(job.ID) {
					if now.Sub(job.QueuedAt) > staleAfter {
						s.logger.Warn(fmt.Sprintf("restarting stale compilation job %s (%s)", job.ID, job.Group()))
						job.QueuedAt = now
					}
					resumed = append(resumed, *job)
				}
			case JobProcessing:
				if !s.isRunning(job.ID) && job.StartedAt.Valid && now.Sub(job.StartedAt.Time) > staleAfter {
					s.logger.Warn(fmt.Sprintf("compilation job %s abandoned while processing", job.ID))
					job.Status = JobFailed
					job.Errors = append(job.Errors, "abandoned: processing did not finish")
					job.CompletedAt = null.TimeFrom(now)
				}
			}

			key := job.Group()
			if j, ok := latest[key]; !ok || supersedes(*job, jobs[j]) {
				latest[key] = i
			}
		}

		for _, key := range order {
			g := groups[key]
			if !g.stale {
				continue
			}
			if j, ok := latest[key]; ok {
				last := jobs[j]
				if last.Status.Active() {
					continue // absorbed by the active job
				}
				// nothing submitted since the last run: failed jobs wait for a manual retry
				if last.CompletedAt.Valid && !g.lastSubmit.After(last.CompletedAt.Time) {
					continue
				}
			}
			job := Job{
				ID:            uuid.New().String(),
				ClassID:       key.ClassID,
				SubjectID:     key.SubjectID,
				Session:       key.Session,
				Term:          key.Term,
				Status:        JobPending,
				TotalStudents: g.size,
				Errors:        []string{},
				CreatedAt:     now,
				QueuedAt:      now,
			}
			jobs = append(jobs, job)
			created = append(created, job)
		}
		return jobs, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating compilation jobs")
	}

	for _, job := range append(resumed, created...) {
		s.schedule(job)
	}
	return created, nil
}

// supersedes reports whether a is the job that speaks for the group over b:
// an active job first, then the most recent one.
func supersedes(a, b Job) bool {
	if a.Status.Active() != b.Status.Active() {
		return a.Status.Active()
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// schedule arms the delay timer of a pending job.
func (s *Scheduler) schedule(job Job) {
	delay := s.conf.Delay - core.Now().Sub(job.QueuedAt)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, ok := s.timers[job.ID]; ok {
		return
	}
	id := job.ID
	s.timers[id] = s.afterFunc(delay, func() { s.fire(id) })
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	delete(s.timers, id)
	if s.stopped {
		s.mu.Unlock()
		return
	}
	// handed from the timer to Run without a gap a scan could see
	s.running[id] = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	job, err := s.Run(s.ctx, id)
	if err != nil {
		s.logger.Error(fmt.Sprintf("running compilation job %s: %v", id, err), err)
		return
	}
	s.logger.Info(fmt.Sprintf("compilation job %s %s: %d/%d students, %d errors",
		job.ID, job.Status, job.ProcessedStudents, job.TotalStudents, len(job.Errors)))
}

func (s *Scheduler) hasTimer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

func (s *Scheduler) isRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[id]
}

func (s *Scheduler) setRunning(id string, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if running {
		s.running[id] = true
	} else {
		delete(s.running, id)
	}
}

// Run processes a pending job now. Group-level failures are recorded on the returned job,
// the error is reserved for jobs that could not be started.
func (s *Scheduler) Run(ctx context.Context, id string) (Job, error) {
	s.setRunning(id, true)
	defer s.setRunning(id, false)

	var job Job
	err := s.jobs.MutateJobs(ctx, func(jobs []Job) ([]Job, error) {
		for i := range jobs {
			if jobs[i].ID != id {
				continue
			}
			if jobs[i].Status != JobPending {
				return nil, core.NewStateConflictError(id, string(jobs[i].Status), string(JobProcessing))
			}
			jobs[i].Status = JobProcessing
			jobs[i].StartedAt = null.TimeFrom(core.Now())
			jobs[i].CompletedAt = null.Time{}
			jobs[i].ProcessedStudents = 0
			jobs[i].Progress = 0
			jobs[i].Errors = []string{}
			jobs[i].Attempts++
			job = jobs[i]
			return jobs, nil
		}
		return nil, errors.Wrap(ErrJobNotFound, id)
	})
	if err != nil {
		return Job{}, err
	}

	job, err = s.process(ctx, job)
	if err != nil {
		job = s.fail(ctx, job, err)
	}
	s.finished(ctx, job)
	return job, nil
}

func (s *Scheduler) process(ctx context.Context, job Job) (Job, error) {
	key := job.Group()
	members, err := s.results.QueryResults(ctx, result.GroupFilter(key, result.StatusSubmitted))
	if err != nil {
		return job, errors.Wrap(err, "reading group")
	}
	job.TotalStudents = len(members)

	compiled := make(map[string]bool, len(members))
	for _, m := range members {
		err := s.compileMember(ctx, m, core.Now())
		var mErr *memberError
		switch {
		case err == nil:
			compiled[m.ID] = true
		case errors.As(err, &mErr):
			job.Errors = append(job.Errors, mErr.Error())
		default:
			return job, errors.Wrapf(err, "compiling student %s", m.StudentID)
		}

		job.ProcessedStudents++
		job.setProgress()
		if err := s.saveJob(ctx, job); err != nil {
			return job, errors.Wrap(err, "saving progress")
		}
	}
	job.setProgress()

	var approveErrs []string
	before := make(map[string]result.Result)
	err = s.results.MutateResults(ctx, func(ledger []result.Result) ([]result.Result, error) {
		approveErrs = nil
		approved := false
		for _, r := range ledger {
			if r.Group() == key {
				before[r.ID] = r
			}
		}
		if s.conf.AutoApprove {
			now := core.Now()
			for i := range ledger {
				r := &ledger[i]
				if !compiled[r.ID] || r.Status != result.StatusSubmitted {
					continue
				}
				req := result.TransitionRequest{To: result.StatusApproved, Actor: user.Compiler, Action: user.ActionAutoApprove, At: now}
				if err := result.Transition(r, req); err != nil {
					approveErrs = append(approveErrs, (&memberError{studentID: r.StudentID, msg: err.Error()}).Error())
					continue
				}
				approved = true
			}
		}
		// approval always ranks the group
		if s.conf.AutoCalculatePositions || approved {
			result.RankGroup(ledger, key)
		}
		return ledger, nil
	})
	if err != nil {
		return job, errors.Wrap(err, "ranking group")
	}
	job.Errors = append(job.Errors, approveErrs...)

	err = s.jobs.MutateJobs(ctx, func(jobs []Job) ([]Job, error) {
		for i := range jobs {
			if jobs[i].ID == job.ID {
				job.Status = JobCompleted
				job.CompletedAt = null.TimeFrom(core.Now())
				jobs[i] = job
				return jobs, nil
			}
		}
		return nil, errors.Wrap(ErrJobNotFound, job.ID)
	})
	if err != nil {
		if rErr := s.restoreMembers(ctx, before); rErr != nil {
			job.Errors = append(job.Errors, "restoring members: "+rErr.Error())
		}
		return job, errors.Wrap(err, "completing job")
	}
	return job, nil
}

// restoreMembers puts back the status and position the members had before auto-approval and
// ranking, so a job that fails afterwards leaves its group as it found it.
func (s *Scheduler) restoreMembers(ctx context.Context, before map[string]result.Result) error {
	return s.results.MutateResults(ctx, func(ledger []result.Result) ([]result.Result, error) {
		for i := range ledger {
			r := &ledger[i]
			prev, ok := before[r.ID]
			if !ok {
				continue
			}
			if r.Status == result.StatusApproved && r.ApprovedBy.String == user.Compiler.ID && prev.Status != result.StatusApproved {
				r.Status = prev.Status
				r.ApprovedAt = prev.ApprovedAt
				r.ApprovedBy = prev.ApprovedBy
				r.UpdatedAt = prev.UpdatedAt
			}
			r.Position = prev.Position
		}
		return ledger, nil
	})
}

// compileMember regrades one member when its grade is not current and stamps CompiledAt.
func (s *Scheduler) compileMember(ctx context.Context, m result.Result, at time.Time) error {
	return s.results.MutateResults(ctx, func(ledger []result.Result) (out []result.Result, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				out, err = nil, &memberError{studentID: m.StudentID, msg: fmt.Sprintf("panic: %v", rec)}
			}
		}()

		for i := range ledger {
			r := &ledger[i]
			if r.ID != m.ID {
				continue
			}
			if r.Status != result.StatusSubmitted {
				return nil, &memberError{studentID: m.StudentID, msg: "no longer submitted (" + string(r.Status) + ")"}
			}
			if !r.GradeIsCurrent(s.policy) {
				r.ApplyGrade(s.policy)
			}
			r.CompiledAt = null.TimeFrom(at)
			return ledger, nil
		}
		return nil, &memberError{studentID: m.StudentID, msg: "no longer in the ledger"}
	})
}

func (s *Scheduler) saveJob(ctx context.Context, job Job) error {
	return s.jobs.MutateJobs(ctx, func(jobs []Job) ([]Job, error) {
		for i := range jobs {
			if jobs[i].ID == job.ID {
				jobs[i] = job
				return jobs, nil
			}
		}
		return nil, errors.Wrap(ErrJobNotFound, job.ID)
	})
}

// fail marks job failed with cause. Member statuses are left as they are.
func (s *Scheduler) fail(ctx context.Context, job Job, cause error) Job {
	job.Status = JobFailed
	job.Errors = append(job.Errors, cause.Error())
	job.CompletedAt = null.TimeFrom(core.Now())
	if err := s.saveJob(ctx, job); err != nil {
		s.logger.Error(fmt.Sprintf("marking compilation job %s failed: %v", job.ID, err), err)
	}
	s.logger.Error(fmt.Sprintf("compilation job %s failed: %v", job.ID, cause), cause, job.Group())
	return job
}

func (s *Scheduler) finished(ctx context.Context, job Job) {
	if job.Status == JobCompleted && s.conf.AutoGeneratePDFs && s.reports != nil {
		if err := s.reports.GenerateGroupReports(ctx, job.Group()); err != nil {
			s.logger.Error(fmt.Sprintf("generating reports for %s: %v", job.Group(), err), err)
		}
	}
	if s.conf.NotifyOnCompletion && s.notifier != nil {
		if err := s.notifier.JobFinished(ctx, job); err != nil {
			s.logger.Error(fmt.Sprintf("notifying completion of job %s: %v", job.ID, err), err)
		}
	}
}

// Retry puts a failed job back in pending and arms its delay.
func (s *Scheduler) Retry(ctx context.Context, actor user.User, id string) (Job, error) {
	var job Job
	err := s.jobs.MutateJobs(ctx, func(jobs []Job) ([]Job, error) {
		idx := -1
		for i := range jobs {
			if jobs[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, errors.Wrap(ErrJobNotFound, id)
		}
		target := &jobs[idx]
		if err := user.CanPerform(actor, user.ActionRetryJob, user.Target{ClassID: target.ClassID, SubjectID: target.SubjectID}); err != nil {
			return nil, err
		}
		if target.Status != JobFailed {
			return nil, core.NewStateConflictError(id, string(target.Status), string(JobPending))
		}
		key := target.Group()
		for i := range jobs {
			if i != idx && jobs[i].Status.Active() && jobs[i].Group() == key {
				return nil, core.NewStateConflictError(id, "active job "+jobs[i].ID, string(JobPending))
			}
		}

		target.Status = JobPending
		target.Errors = []string{}
		target.ProcessedStudents = 0
		target.Progress = 0
		target.StartedAt = null.Time{}
		target.CompletedAt = null.Time{}
		target.QueuedAt = core.Now()
		job = *target
		return jobs, nil
	})
	if err != nil {
		return Job{}, err
	}

	s.logger.Info(fmt.Sprintf("compilation job %s retried", job.ID), actor)
	s.schedule(job)
	return job, nil
}

// Jobs is the admin job monitor.
func (s *Scheduler) Jobs(ctx context.Context, actor user.User, filter JobFilter) ([]Job, error) {
	if err := user.CanPerform(actor, user.ActionViewJobs, user.Target{ClassID: filter.ClassID}); err != nil {
		return nil, err
	}
	return s.jobs.QueryJobs(ctx, filter)
}

func (s *Scheduler) Job(ctx context.Context, actor user.User, id string) (Job, error) {
	if err := user.CanPerform(actor, user.ActionViewJobs, user.Target{}); err != nil {
		return Job{}, err
	}
	return s.jobs.GetJob(ctx, id)
}

// cronLogger reports cron's own events through core.Logger.
type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s: %v", msg, err), append([]interface{}{err}, keysAndValues...)...)
}
