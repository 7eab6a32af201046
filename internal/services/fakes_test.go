package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

type auditCall struct {
	Actor    string
	Action   string
	Target   string
	Metadata map[string]string
}

type memoryAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (a *memoryAudit) Record(_ context.Context, actor, action, target string, metadata map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, auditCall{Actor: actor, Action: action, Target: target, Metadata: metadata})
}

func (a *memoryAudit) count(action string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, call := range a.calls {
		if call.Action == action {
			n++
		}
	}
	return n
}

func (a *memoryAudit) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
