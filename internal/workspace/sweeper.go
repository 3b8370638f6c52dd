package workspace

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Sweeper struct {
	cron  *cron.Cron
	store *Store
	ttl   time.Duration
	log   *zap.Logger
}

func NewSweeper(store *Store, schedule string, ttl time.Duration, log *zap.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:  cron.New(),
		store: store,
		ttl:   ttl,
		log:   log,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return s, nil
}

func (s *Sweeper) Start() {
	s.log.Info("Workspace sweeper started", zap.Duration("ttl", s.ttl))
	s.cron.Start()
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Workspace sweeper stopped")
}

func (s *Sweeper) run() {
	removed, err := s.store.Sweep(s.ttl)
	if err != nil {
		s.log.Warn("Workspace sweep incomplete", zap.Error(err))
	}
	if removed > 0 {
		s.log.Info("Workspace sweep finished", zap.Int("removed", removed))
	}
}
