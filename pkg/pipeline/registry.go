package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CallSession groups everything alive for one phone call: the frame
// engine plus the cancellation scope the transport uses to tear it down.
type CallSession struct {
	CallSID  string
	StreamID string
	TraceID  string
	Engine   Engine
	Ctx      context.Context
	Cancel   context.CancelFunc
	Created  time.Time
}

type SessionFactory func(ctx context.Context, callSID, streamID, traceID string) (Engine, error)

type SessionRegistry struct {
	sessions sync.Map
	count    atomic.Int64
	factory  SessionFactory
	draining atomic.Bool
}

func NewSessionRegistry(factory SessionFactory) *SessionRegistry {
	return &SessionRegistry{factory: factory}
}

func (r *SessionRegistry) GetOrCreate(callSID, streamID, traceID string) (*CallSession, bool, error) {
	if callSID == "" {
		return nil, false, nil
	}
	if v, ok := r.sessions.Load(callSID); ok {
		return v.(*CallSession), false, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	eng, err := r.factory(ctx, callSID, streamID, traceID)
	if err != nil {
		cancel()
		return nil, false, err
	}
	if err := eng.Start(); err != nil {
		cancel()
		return nil, false, err
	}
	sess := &CallSession{
		CallSID:  callSID,
		StreamID: streamID,
		TraceID:  traceID,
		Engine:   eng,
		Ctx:      ctx,
		Cancel:   cancel,
		Created:  time.Now(),
	}
	actual, loaded := r.sessions.LoadOrStore(callSID, sess)
	if loaded {
		_ = eng.Stop()
		cancel()
		return actual.(*CallSession), false, nil
	}
	r.count.Add(1)
	return sess, true, nil
}

func (r *SessionRegistry) Get(callSID string) (*CallSession, bool) {
	if v, ok := r.sessions.Load(callSID); ok {
		return v.(*CallSession), true
	}
	return nil, false
}

func (r *SessionRegistry) Remove(callSID string) {
	if v, ok := r.sessions.LoadAndDelete(callSID); ok {
		sess := v.(*CallSession)
		if sess.Cancel != nil {
			sess.Cancel()
		}
		if sess.Engine != nil {
			_ = sess.Engine.Stop()
		}
		r.count.Add(-1)
	}
}

func (r *SessionRegistry) CloseAll() {
	r.sessions.Range(func(key, value any) bool {
		callSID, ok := key.(string)
		if ok {
			r.Remove(callSID)
		}
		return true
	})
}

func (r *SessionRegistry) Count() int64 {
	return r.count.Load()
}

func (r *SessionRegistry) SetDraining(v bool) {
	r.draining.Store(v)
}

func (r *SessionRegistry) Draining() bool {
	return r.draining.Load()
}

// WaitForEmpty blocks until every call session is gone or ctx expires.
// Used during graceful shutdown so in-flight calls can finish their turn.
func (r *SessionRegistry) WaitForEmpty(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if r.Count() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
