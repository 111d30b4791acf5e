// Package notify delivers user-visible notifications.
package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Level is the severity shown to the writer.
type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Icon is the glyph shown before a message of this level.
func (l Level) Icon() string {
	switch l {
	case Success:
		return "✓"
	case Warning:
		return "⚠"
	case Error:
		return "✗"
	default:
		return "ℹ"
	}
}

// Notification is one message for the writer. Persistent notifications
// stay on screen until the condition that raised them goes away.
type Notification struct {
	ID         int
	Level      Level
	Message    string
	Persistent bool
	Time       time.Time
}

// Notifier is what persistence components use to report to the writer.
type Notifier interface {
	Notify(level Level, message string)
}

// DefaultKeep is the number of notifications Center remembers.
const DefaultKeep = 50

// Center logs every notification, keeps the most recent ones and fans
// them out to subscribers. Persistent notifications are kept for the life
// of the Center regardless of how many transient ones follow.
type Center struct {
	mu          sync.Mutex
	log         logrus.FieldLogger
	keep        int
	recent      []Notification
	persistent  []Notification
	nextID      int
	subscribers map[int]func(Notification)
	nextSub     int
}

var _ Notifier = (*Center)(nil)

// NewCenter creates a notification center.
func NewCenter(log logrus.FieldLogger) *Center {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Center{
		log:         log,
		keep:        DefaultKeep,
		subscribers: make(map[int]func(Notification)),
	}
}

// Notify posts a transient notification.
func (c *Center) Notify(level Level, message string) {
	c.post(level, message, false)
}

// NotifyPersistent posts a notification that stays visible.
func (c *Center) NotifyPersistent(level Level, message string) {
	c.post(level, message, true)
}

func (c *Center) post(level Level, message string, persistent bool) {
	entry := c.log.WithField("notification", level.String())
	switch level {
	case Error:
		entry.Error(message)
	case Warning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}

	c.mu.Lock()
	c.nextID++
	n := Notification{
		ID:         c.nextID,
		Level:      level,
		Message:    message,
		Persistent: persistent,
		Time:       time.Now(),
	}
	c.recent = append(c.recent, n)
	if persistent {
		c.persistent = append(c.persistent, n)
	}
	if over := len(c.recent) - c.keep; over > 0 {
		c.recent = append(c.recent[:0:0], c.recent[over:]...)
	}
	subs := make([]func(Notification), 0, len(c.subscribers))
	for id := 0; id < c.nextSub; id++ {
		if fn, ok := c.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
}

// Recent returns the remembered notifications, oldest first.
func (c *Center) Recent() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification{}, c.recent...)
}

// Persistent returns every persistent notification, oldest first.
func (c *Center) Persistent() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.persistent...)
}

// Subscribe registers fn for every future notification.
func (c *Center) Subscribe(fn func(Notification)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}
