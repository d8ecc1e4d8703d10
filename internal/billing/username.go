package billing

import (
	"fmt"
	"sync"
	"time"
)

const usernameLayout = "20060102150405"

// Username builds the VPN account name for a user: "{user_id}d{YYYYMMDDhhmmss}".
func Username(userID int64, t time.Time) string {
	return fmt.Sprintf("%dd%s", userID, t.Format(usernameLayout))
}

// usernameSource hands out distinct usernames even when one user is
// provisioned twice within the same second.
type usernameSource struct {
	mu   sync.Mutex
	last map[int64]time.Time
}

func newUsernameSource() *usernameSource {
	return &usernameSource{last: make(map[int64]time.Time)}
}

func (s *usernameSource) next(userID int64, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := now.Truncate(time.Second)
	if prev, ok := s.last[userID]; ok && !t.After(prev) {
		t = prev.Add(time.Second)
	}
	s.last[userID] = t
	return Username(userID, t)
}
