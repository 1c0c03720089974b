package authcore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Audit event names emitted by the engine.
const (
	AuditSignInSuccess     = "signin.success"
	AuditSignInFailure     = "signin.failure"
	AuditSignInRateLimited = "signin.rate_limited"
	AuditUserCreated       = "federated.user_created"
	AuditAccountLinked     = "federated.account_linked"
	AuditTwoFactorVerified = "two_factor.verified"
	AuditTwoFactorFailed   = "two_factor.failed"
	AuditPasswordSet       = "password.set"
)

// AuditEvent is one security-relevant occurrence. Email is the normalized
// form; Reason is the sentinel error text on failures.
type AuditEvent struct {
	Time    time.Time
	Event   string
	UserID  string
	Email   string
	IP      string
	Success bool
	Reason  string
}

// AuditSink receives events from the dispatcher goroutine, one at a time.
// Implementations own their own durability and may block; the engine never
// waits on them.
type AuditSink interface {
	Write(event AuditEvent)
}

// auditDispatcher decouples request latency from sink latency: emit is
// non-blocking, events overflow to a drop counter rather than stalling a
// sign-in.
type auditDispatcher struct {
	events  chan AuditEvent
	dropped atomic.Uint64
	wg      sync.WaitGroup
	once    sync.Once
}

func newAuditDispatcher(sink AuditSink, buffer int) *auditDispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &auditDispatcher{events: make(chan AuditEvent, buffer)}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.events {
			sink.Write(event)
		}
	}()

	return d
}

func (d *auditDispatcher) emit(event AuditEvent) {
	if d == nil {
		return
	}
	select {
	case d.events <- event:
	default:
		d.dropped.Add(1)
	}
}

// close drains buffered events before returning.
func (d *auditDispatcher) close() {
	if d == nil {
		return
	}
	d.once.Do(func() { close(d.events) })
	d.wg.Wait()
}

func (d *auditDispatcher) droppedCount() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// AuditDropped reports how many audit events were discarded because the
// sink could not keep up with the buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.droppedCount()
}

func (e *Engine) emitAudit(ctx context.Context, name, userID, email string, success bool, reason error) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Time:    time.Now(),
		Event:   name,
		UserID:  userID,
		Email:   email,
		IP:      clientIPFromContext(ctx),
		Success: success,
	}
	if reason != nil {
		event.Reason = reason.Error()
	}
	e.audit.emit(event)
}
