// Package router dispatches typed request envelopes to registered handlers
// and fans state-change events out to subscribers. The router owns the
// session: all handlers run on a single dispatch goroutine, so exactly one
// mutation is in flight at any time without shared-memory locking.
package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/session"
	"github.com/archivekit/conversion-assistant/pkg/metrics"
)

// Handler processes one envelope against the session. Returning a *Error
// sets the response error code; any other error becomes HANDLER_EXCEPTION.
type Handler func(ctx context.Context, env api.Envelope, state *session.Session) (map[string]any, error)

type handlerKey struct {
	group     string
	operation string
}

type dispatchRequest struct {
	ctx   context.Context
	env   api.Envelope
	reply chan api.Response
}

type Router struct {
	state *session.Session

	mu       sync.Mutex
	handlers map[handlerKey]Handler

	subscribers *subscriberSet

	requests chan dispatchRequest
	done     chan struct{}
	stopOnce sync.Once

	log *zap.SugaredLogger
}

// New creates a router owning the given session and starts its dispatch
// goroutine. The caller must Stop it when done.
func New(state *session.Session) *Router {
	r := &Router{
		state:       state,
		handlers:    map[handlerKey]Handler{},
		subscribers: newSubscriberSet(),
		requests:    make(chan dispatchRequest),
		done:        make(chan struct{}),
		log:         zap.S().Named("router"),
	}
	go r.run()
	return r
}

// Session exposes the router-owned state for read-side callers (CLI, tests).
func (r *Router) Session() *session.Session {
	return r.state
}

// Register stores one handler per (group, operation) pair. Re-registration
// overwrites.
func (r *Router) Register(group, operation string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handlerKey{group: group, operation: operation}] = h
}

// Dispatch hands the envelope to the dispatch goroutine and waits for the
// structured response. Cancellation of ctx abandons the wait and is reported
// as a failure, never as a crash.
func (r *Router) Dispatch(ctx context.Context, env api.Envelope) api.Response {
	req := dispatchRequest{ctx: ctx, env: env, reply: make(chan api.Response, 1)}

	select {
	case r.requests <- req:
	case <-ctx.Done():
		return errorResponse(ErrHandlerException, "dispatch cancelled: %v", ctx.Err())
	case <-r.done:
		return errorResponse(ErrHandlerException, "router stopped")
	}

	select {
	case resp := <-req.reply:
		return resp
	case <-ctx.Done():
		return errorResponse(ErrHandlerException, "dispatch cancelled: %v", ctx.Err())
	}
}

// DispatchInline runs the envelope on the calling goroutine. It exists for
// handlers that sequence further dispatches (the correction-loop coordinator
// driving the engines): they already run on the dispatch goroutine, so going
// through Dispatch again would deadlock, while DispatchInline preserves the
// one-mutation-in-flight discipline.
func (r *Router) DispatchInline(ctx context.Context, env api.Envelope) api.Response {
	return r.handle(ctx, env)
}

// Stop shuts the dispatch goroutine down. In-flight work finishes first.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Router) run() {
	for {
		select {
		case <-r.done:
			return
		case req := <-r.requests:
			req.reply <- r.handle(req.ctx, req.env)
		}
	}
}

func (r *Router) handle(ctx context.Context, env api.Envelope) api.Response {
	resp := r.invoke(ctx, env)

	outcome := "success"
	logCtx := map[string]any{
		"group":     env.TargetGroup,
		"operation": env.Operation,
		"messageId": env.MessageID,
	}
	if !resp.Success {
		outcome = resp.Error.Code
		logCtx["error"] = resp.Error.Message
		logCtx["code"] = resp.Error.Code
	}
	metrics.IncDispatch(env.TargetGroup, env.Operation, outcome)
	r.state.Append(session.LevelDebug, "dispatch handled", logCtx)

	return resp
}

func (r *Router) invoke(ctx context.Context, env api.Envelope) (resp api.Response) {
	r.mu.Lock()
	handler, ok := r.handlers[handlerKey{group: env.TargetGroup, operation: env.Operation}]
	groupKnown := r.groupRegisteredLocked(env.TargetGroup)
	r.mu.Unlock()

	if !ok {
		if !groupKnown {
			return errorResponse(ErrUnknownGroup, "no handlers registered for group %q", env.TargetGroup)
		}
		return errorResponse(ErrUnknownOperation, "group %q has no operation %q", env.TargetGroup, env.Operation)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorw("handler panicked", "group", env.TargetGroup, "operation", env.Operation, "panic", rec)
			r.state.Append(session.LevelError, "handler panicked", map[string]any{
				"group":     env.TargetGroup,
				"operation": env.Operation,
				"panic":     fmt.Sprint(rec),
				"stack":     string(debug.Stack()),
			})
			resp = errorResponse(ErrHandlerException, "handler panicked: %v", rec)
		}
	}()

	result, err := handler(ctx, env, r.state)
	if err != nil {
		var coded *Error
		if errors.As(err, &coded) {
			return api.Response{Success: false, Error: &api.Error{Code: coded.Code, Message: coded.Message, Context: coded.Context}}
		}
		return errorResponse(ErrHandlerException, "%v", err)
	}
	return api.Response{Success: true, Result: result}
}

func (r *Router) groupRegisteredLocked(group string) bool {
	for k := range r.handlers {
		if k.group == group {
			return true
		}
	}
	return false
}

func errorResponse(code, format string, args ...any) api.Response {
	return api.Response{
		Success: false,
		Error:   &api.Error{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}
