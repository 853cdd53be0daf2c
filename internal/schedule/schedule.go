// Package schedule runs periodic maintenance jobs (lock sweep, print lease
// reaper) on cron expressions.
package schedule

import (
	"context"
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/kiwari-pos/tableservice/internal/logging"
)

// Scheduler wraps a cron runner. Jobs never overlap with themselves and a
// panicking job is recovered and logged.
type Scheduler struct {
	cron    *rcron.Cron
	log     logging.Logger
	timeout time.Duration
}

// New returns a scheduler whose jobs each get at most timeout to finish.
func New(log logging.Logger, timeout time.Duration) *Scheduler {
	log = logging.OrNop(log)
	if timeout <= 0 {
		timeout = time.Minute
	}
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: rcron.New(
			rcron.WithParser(rcron.NewParser(
				rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
			)),
			rcron.WithChain(rcron.Recover(cl), rcron.SkipIfStillRunning(cl)),
			rcron.WithLogger(cl),
		),
		log:     log,
		timeout: timeout,
	}
}

// Add registers fn under a cron expression such as "@every 1m" or "*/5 * * * *".
func (s *Scheduler) Add(spec, name string, fn func(ctx context.Context) error) error {
	if spec == "" {
		return fmt.Errorf("%s: cron expression cannot be empty", name)
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		started := time.Now()
		if err := fn(ctx); err != nil {
			s.log.WithFields(map[string]any{"job": name, "error": err.Error()}).Error("scheduled job failed")
			return
		}
		s.log.WithFields(map[string]any{"job": name, "took_ms": time.Since(started).Milliseconds()}).Debug("scheduled job done")
	})
	if err != nil {
		return fmt.Errorf("%s: add job: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(pairs(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := pairs(keysAndValues)
	fields["error"] = fmt.Sprint(err)
	l.log.WithFields(fields).Error("cron: " + msg)
}

func pairs(kv []interface{}) map[string]any {
	fields := make(map[string]any, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
