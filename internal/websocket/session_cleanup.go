package websocket

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionExpirer ends tutoring sessions older than a ceiling
type SessionExpirer interface {
	EndExpiredSessions(ctx context.Context, maxDuration time.Duration) (int64, error)
}

// SessionCleanupService handles background tasks for session management
type SessionCleanupService struct {
	expirer     SessionExpirer
	maxDuration time.Duration
	logger      *zap.Logger

	// Interval between runs and delay before the first one.
	Interval     time.Duration
	InitialDelay time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(expirer SessionExpirer, maxDuration time.Duration, logger *zap.Logger) *SessionCleanupService {
	return &SessionCleanupService{
		expirer:      expirer,
		maxDuration:  maxDuration,
		logger:       logger,
		Interval:     30 * time.Minute,
		InitialDelay: time.Minute,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	s.wg.Add(1)
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started",
		zap.Duration("interval", s.Interval),
		zap.Duration("maxDuration", s.maxDuration))
}

// Stop gracefully stops the cleanup service. Safe to call more than once.
func (s *SessionCleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		s.logger.Info("Session cleanup service stopped")
	})
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	initialTimer := time.NewTimer(s.InitialDelay)
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.runCleanup()
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup ends every active session past the ceiling
func (s *SessionCleanupService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ended, err := s.expirer.EndExpiredSessions(ctx, s.maxDuration)
	if err != nil {
		s.logger.Error("Failed to expire sessions", zap.Error(err))
		return
	}

	if ended > 0 {
		s.logger.Info("Session cleanup completed", zap.Int64("ended", ended))
	}
}
