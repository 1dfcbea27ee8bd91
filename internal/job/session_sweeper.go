package job

import (
	"context"
	"log"
	"time"
)

// SessionSweeper periodically purges conversations whose owner walked away.
// Expiry is otherwise only detected lazily on the next input, so without the
// sweeper an abandoned session would hold memory indefinitely.
type SessionSweeper struct {
	engine   SessionPurger
	interval time.Duration
}

type SessionPurger interface {
	SweepExpired() int
	ActiveSessions() int
}

func NewSessionSweeper(engine SessionPurger, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SessionSweeper{engine: engine, interval: interval}
}

// Start runs the sweep loop. Blocks until ctx is cancelled.
func (s *SessionSweeper) Start(ctx context.Context) {
	if s.engine == nil {
		log.Println("Session sweeper disabled: no engine")
		<-ctx.Done()
		return
	}

	log.Println("Session sweeper starting...")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Session sweeper stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *SessionSweeper) sweep() {
	if n := s.engine.SweepExpired(); n > 0 {
		log.Printf("swept %d expired sessions, %d active", n, s.engine.ActiveSessions())
	}
}
