// Package notify keeps the transient banners of one session and pushes
// them to open pages.
package notify

import (
	"sync"
	"time"

	iface "TableDetFront/interface"

	"github.com/google/uuid"
)

const (
	EventShow    = "show"
	EventDismiss = "dismiss"
)

type Event struct {
	Type   string       `json:"type"`
	Notice iface.Notice `json:"notice"`
}

// Publisher delivers events to whatever is listening for a session.
type Publisher interface {
	Publish(session string, ev Event)
}

type TTLs struct {
	Error   time.Duration
	Success time.Duration
	Warning time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{Error: 5 * time.Second, Success: 3 * time.Second, Warning: 5 * time.Second}
}

// Center holds at most one error banner at a time; success and warning
// banners stack.
type Center struct {
	mu      sync.Mutex
	session string
	ttl     TTLs
	pub     Publisher
	notices []iface.Notice
	now     func() time.Time
}

func NewCenter(session string, ttl TTLs, pub Publisher) *Center {
	return &Center{session: session, ttl: ttl, pub: pub, now: time.Now}
}

func (c *Center) Error(msg string) iface.Notice {
	return c.Push(iface.NoticeError, msg)
}

func (c *Center) Success(msg string) iface.Notice {
	return c.Push(iface.NoticeSuccess, msg)
}

func (c *Center) Warning(msg string) iface.Notice {
	return c.Push(iface.NoticeWarning, msg)
}

func (c *Center) Push(kind, msg string) iface.Notice {
	n := iface.Notice{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: msg,
		Created: c.now(),
		TTL:     c.ttlFor(kind),
	}
	var replaced []iface.Notice
	c.mu.Lock()
	if kind == iface.NoticeError {
		kept := c.notices[:0]
		for _, old := range c.notices {
			if old.Kind == iface.NoticeError {
				replaced = append(replaced, old)
				continue
			}
			kept = append(kept, old)
		}
		c.notices = kept
	}
	c.notices = append(c.notices, n)
	c.mu.Unlock()

	if c.pub != nil {
		for _, old := range replaced {
			c.pub.Publish(c.session, Event{Type: EventDismiss, Notice: old})
		}
		c.pub.Publish(c.session, Event{Type: EventShow, Notice: n})
	}
	return n
}

// Dismiss removes a banner before its timer runs out.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	var removed *iface.Notice
	for i, n := range c.notices {
		if n.ID == id {
			removed = &n
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	if removed == nil {
		return false
	}
	if c.pub != nil {
		c.pub.Publish(c.session, Event{Type: EventDismiss, Notice: *removed})
	}
	return true
}

// Active drops expired banners and returns the rest, oldest first.
func (c *Center) Active() []iface.Notice {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.notices[:0]
	for _, n := range c.notices {
		if !n.Expired(now) {
			kept = append(kept, n)
		}
	}
	c.notices = kept
	out := make([]iface.Notice, len(kept))
	copy(out, kept)
	return out
}

func (c *Center) ttlFor(kind string) time.Duration {
	switch kind {
	case iface.NoticeError:
		return c.ttl.Error
	case iface.NoticeSuccess:
		return c.ttl.Success
	default:
		return c.ttl.Warning
	}
}
