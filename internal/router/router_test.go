package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/session"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := New(session.New())
	t.Cleanup(r.Stop)
	return r
}

func envelope(group, op string) api.Envelope {
	return api.Envelope{TargetGroup: group, Operation: op, MessageID: "test"}
}

func TestDispatchRouting(t *testing.T) {
	r := newTestRouter(t)
	r.Register("conversion", "run_conversion", func(context.Context, api.Envelope, *session.Session) (map[string]any, error) {
		return map[string]any{"outputPath": "/out/file.std"}, nil
	})

	tests := []struct {
		name     string
		env      api.Envelope
		wantOK   bool
		wantCode string
	}{
		{
			name:   "registered operation succeeds",
			env:    envelope("conversion", "run_conversion"),
			wantOK: true,
		},
		{
			name:     "unknown group",
			env:      envelope("nonsense", "run_conversion"),
			wantCode: ErrUnknownGroup,
		},
		{
			name:     "known group unknown operation",
			env:      envelope("conversion", "nonsense"),
			wantCode: ErrUnknownOperation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := r.Dispatch(context.Background(), tt.env)
			assert.Equal(t, tt.wantOK, resp.Success)
			if !tt.wantOK {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantCode, resp.Error.Code)
			} else {
				assert.Equal(t, "/out/file.std", resp.Result["outputPath"])
			}
		})
	}
}

func TestCodedErrorsKeepTheirCode(t *testing.T) {
	r := newTestRouter(t)
	r.Register("workflow", "retry_decision", func(context.Context, api.Envelope, *session.Session) (map[string]any, error) {
		return nil, NewError(ErrInvalidDecision, "unknown decision %q", "perhaps").WithContext(map[string]any{"decision": "perhaps"})
	})

	resp := r.Dispatch(context.Background(), envelope("workflow", "retry_decision"))
	require.False(t, resp.Success)
	assert.Equal(t, ErrInvalidDecision, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "perhaps")
	assert.NotNil(t, resp.Error.Context)
}

func TestPlainErrorsBecomeHandlerException(t *testing.T) {
	r := newTestRouter(t)
	r.Register("conversion", "run_conversion", func(context.Context, api.Envelope, *session.Session) (map[string]any, error) {
		return nil, fmt.Errorf("engine unreachable")
	})

	resp := r.Dispatch(context.Background(), envelope("conversion", "run_conversion"))
	require.False(t, resp.Success)
	assert.Equal(t, ErrHandlerException, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "engine unreachable")
}

func TestHandlerPanicIsContained(t *testing.T) {
	r := newTestRouter(t)
	r.Register("conversion", "run_conversion", func(context.Context, api.Envelope, *session.Session) (map[string]any, error) {
		panic("nil dereference somewhere deep")
	})
	r.Register("conversion", "detect_format", func(context.Context, api.Envelope, *session.Session) (map[string]any, error) {
		return map[string]any{"format": "rawbin"}, nil
	})

	resp := r.Dispatch(context.Background(), envelope("conversion", "run_conversion"))
	require.False(t, resp.Success)
	assert.Equal(t, ErrHandlerException, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "nil dereference")

	// The router must keep serving after a panic.
	resp = r.Dispatch(context.Background(), envelope("conversion", "detect_format"))
	assert.True(t, resp.Success)

	var panicEntry bool
	for _, entry := range r.Session().Journal() {
		if entry.Message == "handler panicked" {
			panicEntry = true
			assert.NotEmpty(t, entry.Context["stack"])
		}
	}
	assert.True(t, panicEntry, "panic must be journaled with a stack trace")
}

func TestDispatchSerializesHandlers(t *testing.T) {
	r := newTestRouter(t)

	var inFlight, maxInFlight int
	var mu sync.Mutex
	r.Register("conversion", "run_conversion", func(context.Context, api.Envelope, *session.Session) (map[string]any, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Dispatch(context.Background(), envelope("conversion", "run_conversion"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "at most one handler may run at a time")
}

func TestDispatchHonorsContextCancellation(t *testing.T) {
	r := newTestRouter(t)
	release := make(chan struct{})
	r.Register("conversion", "run_conversion", func(context.Context, api.Envelope, *session.Session) (map[string]any, error) {
		<-release
		return nil, nil
	})

	// Occupy the dispatch goroutine, then cancel a queued dispatch.
	go r.Dispatch(context.Background(), envelope("conversion", "run_conversion"))
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp := r.Dispatch(ctx, envelope("conversion", "run_conversion"))
	close(release)

	require.False(t, resp.Success)
	assert.Equal(t, ErrHandlerException, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "cancelled")
}

func TestBroadcastIsolatesSubscriberPanics(t *testing.T) {
	r := newTestRouter(t)

	var delivered []string
	r.Subscribe(func(Event) { panic("bad subscriber") })
	r.Subscribe(func(e Event) { delivered = append(delivered, e.Type) })

	r.Broadcast(Event{Type: "status_changed"})
	assert.Equal(t, []string{"status_changed"}, delivered)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := newTestRouter(t)

	var count int
	id := r.Subscribe(func(Event) { count++ })
	r.Broadcast(Event{Type: "status_changed"})
	r.Unsubscribe(id)
	r.Broadcast(Event{Type: "status_changed"})

	assert.Equal(t, 1, count)
}

func TestSessionMutationsReachSubscribersInOrder(t *testing.T) {
	state := session.New()
	r := New(state)
	t.Cleanup(r.Stop)
	state.AttachNotifier(r)

	var types []string
	r.Subscribe(func(e Event) {
		if e.Type != "log_appended" {
			types = append(types, e.Type)
		}
	})

	require.NoError(t, state.UpdateStatus(session.StatusUploading))
	state.SetProgress(30)
	require.NoError(t, state.UpdateStatus(session.StatusDetectingFormat))

	assert.Equal(t, []string{"status_changed", "progress_updated", "status_changed"}, types)
}
