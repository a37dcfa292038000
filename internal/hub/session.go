package hub

import (
	"sync"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

// Session is one live client connection. It is never persisted.
type Session struct {
	id       string
	identity domain.Identity
	conn     Conn
	send     chan domain.Notification
	done     chan struct{}
	once     sync.Once
}

// ID returns the session id given to Register.
func (s *Session) ID() string { return s.id }

// Identity returns the authenticated identity the session was opened with.
func (s *Session) Identity() domain.Identity { return s.identity }

// Done is closed when the session has been removed from the hub.
func (s *Session) Done() <-chan struct{} { return s.done }

// close is idempotent. The send channel stays open: Deliver may still hold
// an old snapshot containing this session and selects on done instead.
// The transport is closed on its own goroutine, tracked by wg, because a
// close frame waits behind any write still in flight on a stalled peer.
func (s *Session) close(wg *sync.WaitGroup) {
	s.once.Do(func() {
		wg.Add(1)
		close(s.done)
		go func() {
			defer wg.Done()
			_ = s.conn.Close()
		}()
	})
}
