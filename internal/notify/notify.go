package notify

import (
	"log/slog"
	"sync"
)

// Notifier shows a message to the viewer.
type Notifier interface {
	Notify(msg string)
}

// Log writes notices to a logger; used where no viewer is attached.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(msg string) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notice", "message", msg)
}

// Collector keeps notices so a request handler can return them.
type Collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *Collector) Notify(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *Collector) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Last returns the most recent notice, or "".
func (c *Collector) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return ""
	}
	return c.msgs[len(c.msgs)-1]
}
