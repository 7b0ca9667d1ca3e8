package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "memewrangler/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Timezone string // IANA TZ used for cron fields, e.g. "Asia/Kolkata"
}

type Job func(ctx context.Context) error

type ScheduleInfo struct {
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	Timeout  time.Duration `json:"timeout"`
	Next     time.Time     `json:"next,omitempty"`
	Prev     time.Time     `json:"prev,omitempty"`
	Runs     uint64        `json:"runs"`
	Skipped  uint64        `json:"skipped"`
	Failures uint64        `json:"failures"`
	LastErr  string        `json:"last_err,omitempty"`
	LastTook time.Duration `json:"last_took"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}

type task struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID

	running sync.Mutex

	mu       sync.Mutex
	runs     uint64
	skipped  uint64
	failures uint64
	lastErr  string
	lastTook time.Duration
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	tasks  map[string]*task

	// ctx is the parent of every run; cancelled by Stop.
	cmu    sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("comp", "task.scheduler")),
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		tasks:  map[string]*task{},
	}
}

// AddSchedule parses schedule (see ParseSchedule) and registers it under
// name, replacing any previous schedule with that name.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, job)
	}
	return fmt.Errorf("unsupported schedule kind")
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.add(name, spec, timeout, job)
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) error {
	if every <= 0 {
		return fmt.Errorf("schedule %s: interval must be > 0", name)
	}
	return s.add(name, "@every "+every.String(), timeout, job)
}

func (s *Service) add(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(name)
	t := &task{name: name, spec: spec, timeout: timeout, job: job}
	s.tasks[name] = t
	if s.c != nil {
		if err := s.registerLocked(t); err != nil {
			delete(s.tasks, name)
			return err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout))
	return nil
}

// Remove unregisters name. It reports whether something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	t, ok := s.tasks[name]
	if !ok {
		return false
	}
	if s.c != nil && t.entryID != 0 {
		s.c.Remove(t.entryID)
	}
	delete(s.tasks, name)
	return true
}

func (s *Service) registerLocked(t *task) error {
	id, err := s.c.AddFunc(t.spec, func() { s.run(t) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", t.name, err)
	}
	t.entryID = id
	return nil
}

// Trigger runs name now, outside its schedule. It returns false when name is
// unknown, the service is stopped, or a run is already in progress.
func (s *Service) Trigger(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	started := s.c != nil
	s.mu.Unlock()
	if !ok || !started {
		return false
	}
	if !t.running.TryLock() {
		t.noteSkip()
		return false
	}
	parent, ok := s.begin()
	if !ok {
		t.running.Unlock()
		return false
	}
	go func() {
		defer s.wg.Done()
		defer t.running.Unlock()
		s.exec(parent, t)
	}()
	return true
}

// run is the cron callback.
func (s *Service) run(t *task) {
	if !t.running.TryLock() {
		t.noteSkip()
		s.log.Debug("schedule trigger skipped", logx.String("name", t.name))
		return
	}
	defer t.running.Unlock()
	parent, ok := s.begin()
	if !ok {
		return
	}
	defer s.wg.Done()
	s.exec(parent, t)
}

// begin registers a run with wg while the service context is live. Stop
// cancels under the same lock, so no run is added once it starts waiting.
func (s *Service) begin() (context.Context, bool) {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil {
		return nil, false
	}
	s.wg.Add(1)
	return s.ctx, true
}

func (s *Service) exec(parent context.Context, t *task) {
	ctx := parent
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, t.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("scheduled job panicked", logx.String("name", t.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.job(ctx)
	}()
	took := time.Since(start)
	t.noteRun(took, err)

	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("scheduled job failed", logx.String("name", t.name), logx.Duration("took", took), logx.Err(err))
	}
}

func (t *task) noteSkip() {
	t.mu.Lock()
	t.skipped++
	t.mu.Unlock()
}

func (t *task) noteRun(took time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs++
	t.lastTook = took
	if err != nil {
		t.failures++
		t.lastErr = err.Error()
	} else {
		t.lastErr = ""
	}
}

// Apply swaps the config. A timezone change restarts cron with every
// registered schedule.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || !changed {
		return
	}
	<-s.c.Stop().Done()
	s.startCronLocked()
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.tasks)))
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.cmu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cmu.Unlock()
	s.startCronLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.tasks)))
}

func (s *Service) startCronLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, t := range s.tasks {
		if err := s.registerLocked(t); err != nil {
			s.log.Error("schedule register failed", logx.String("name", t.name), logx.Err(err))
		}
	}
	s.c.Start()
}

// Stop halts triggering, cancels in-flight runs and waits for them until ctx
// is done. Registered schedules survive a later Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	s.cmu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cmu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Running: s.c != nil, Timezone: s.cfg.Timezone}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	for _, t := range s.tasks {
		info := ScheduleInfo{Name: t.name, Spec: t.spec, Timeout: t.timeout}
		if s.c != nil && t.entryID != 0 {
			e := s.c.Entry(t.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		t.mu.Lock()
		info.Runs, info.Skipped, info.Failures = t.runs, t.skipped, t.failures
		info.LastErr, info.LastTook = t.lastErr, t.lastTook
		t.mu.Unlock()
		snap.Schedules = append(snap.Schedules, info)
	}
	sort.Slice(snap.Schedules, func(i, j int) bool { return snap.Schedules[i].Name < snap.Schedules[j].Name })
	return snap
}
