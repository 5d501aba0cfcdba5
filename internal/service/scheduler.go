package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"instantin-core-api/internal/model"
)

// SchedulerConfig holds configuration for the raffle scheduler.
type SchedulerConfig struct {
	// TickInterval is how often the scheduler checks for period rollover
	// and due draws. Default: 10 minutes.
	TickInterval time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{TickInterval: 10 * time.Minute}
}

// RaffleScheduler keeps the monthly raffle cadence running: it opens the
// current period's raffle and triggers the draw once a period's draw date
// passes.
type RaffleScheduler struct {
	raffles   *RaffleService
	config    SchedulerConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewRaffleScheduler creates a new raffle scheduler.
func NewRaffleScheduler(raffles *RaffleService, config SchedulerConfig) *RaffleScheduler {
	if config.TickInterval == 0 {
		config.TickInterval = 10 * time.Minute
	}
	return &RaffleScheduler{
		raffles: raffles,
		config:  config,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the scheduler loop.
func (s *RaffleScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.TickInterval)
	s.mu.Unlock()

	log.Printf("[RaffleScheduler] Started - Interval: %v", s.config.TickInterval)

	go func() {
		s.RunNow()
		for {
			select {
			case <-s.ticker.C:
				s.RunNow()
			case <-s.stopCh:
				log.Printf("[RaffleScheduler] Stopped")
				return
			}
		}
	}()
}

// RunNow performs one scheduling pass: ensure the current period's raffle
// exists and is open, then draw the previous period if its draw date has
// arrived. Every step is idempotent, so overlapping passes are harmless.
func (s *RaffleScheduler) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()

	current, err := s.raffles.EnsurePeriod(ctx, now.Year(), now.Month())
	if err != nil {
		log.Printf("[RaffleScheduler] Failed to ensure current period: %v", err)
		return
	}
	if current.Status == model.RaffleUpcoming {
		if err := s.raffles.Open(ctx, current.ID); err != nil && !errors.Is(err, model.ErrInvalidTransition) {
			log.Printf("[RaffleScheduler] Failed to open raffle %s: %v", current.ID, err)
		}
	}

	prev := now.AddDate(0, -1, 0)
	previous, err := s.raffles.EnsurePeriod(ctx, prev.Year(), prev.Month())
	if err != nil {
		log.Printf("[RaffleScheduler] Failed to load previous period: %v", err)
		return
	}
	if previous.Drawable(now) {
		winners, err := s.raffles.Draw(ctx, previous.ID, now)
		if err != nil {
			if errors.Is(err, model.ErrRaffleNotDrawable) {
				return // another instance drew it first
			}
			log.Printf("[RaffleScheduler] Draw failed for raffle %s: %v", previous.ID, err)
			return
		}
		log.Printf("[RaffleScheduler] Drew raffle %s - %d winners", previous.ID, len(winners))
	}
}

// Stop stops the scheduler.
func (s *RaffleScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
