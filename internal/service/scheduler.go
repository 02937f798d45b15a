package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/content-orchestrator/internal/config"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/pkg/icron"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

type SettingsProvider interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
}

// Scheduler creates INDUSTRY_NEWS_AUTOMATION jobs on the news cron expression.
type Scheduler struct {
	cron     *cron.Cron
	settings SettingsProvider
	triggers *Triggers

	group singleflight.Group

	mu      sync.Mutex
	entryID cron.EntryID
	expr    string
}

func NewScheduler(c *cron.Cron, settings SettingsProvider, triggers *Triggers) *Scheduler {
	return &Scheduler{cron: c, settings: settings, triggers: triggers}
}

// Schedule registers the cron entry for the current settings.
func (s *Scheduler) Schedule(ctx context.Context) error {
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		return err
	}
	return s.Apply(ctx, settings)
}

// Apply replaces the cron entry after a settings change.
func (s *Scheduler) Apply(ctx context.Context, settings config.RuntimeSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 && s.expr == settings.CronExpr {
		return nil
	}
	id, err := s.cron.AddFunc(settings.CronExpr, func() { s.tick(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule news automation: %w", err)
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = id
	s.expr = settings.CronExpr
	log.Info("[Scheduler] news automation scheduled with %q", settings.CronExpr)
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		log.Error("[Scheduler] failed to read settings: %v", err)
		return
	}
	if !settings.Enabled {
		log.Debug("[Scheduler] news automation disabled, skipping tick")
		return
	}
	if _, err := s.RunNow(ctx); err != nil {
		log.Error("[Scheduler] failed to start news automation: %v", err)
	}
}

// RunNow creates and queues one news job. Overlapping calls share a single job.
func (s *Scheduler) RunNow(ctx context.Context) (*jobs.Job, error) {
	v, err, _ := s.group.Do("news", func() (any, error) {
		return s.triggers.CreateAndEnqueue(ctx, CreateRequest{Type: jobs.TypeIndustryNewsAutomation})
	})
	if err != nil {
		return nil, err
	}
	return v.(*jobs.Job), nil
}

// Next reports the surrounding trigger times of the current expression.
func (s *Scheduler) Next(now time.Time) (*icron.TriggerInfo, error) {
	s.mu.Lock()
	expr := s.expr
	s.mu.Unlock()
	if expr == "" {
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			return nil, err
		}
		expr = settings.CronExpr
	}
	return icron.GetTriggerInfo(expr, now)
}
