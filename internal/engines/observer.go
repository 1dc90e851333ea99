package engines

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/archivekit/conversion-assistant/internal/session"
)

// progressObserver polls the output artifact size while the main dispatch
// blocks on the conversion engine, and feeds the session's monotonic
// progress percentage. It only reads filesystem state; its only writes are
// the progress field and journal appends.
type progressObserver struct {
	artifactPath  string
	expectedBytes int64
	interval      time.Duration
	joinTimeout   time.Duration

	state *session.Session
	log   *zap.SugaredLogger

	stopCh chan struct{}
	doneCh chan struct{}
}

func newProgressObserver(state *session.Session, artifactPath string, expectedBytes int64, interval, joinTimeout time.Duration) *progressObserver {
	return &progressObserver{
		artifactPath:  artifactPath,
		expectedBytes: expectedBytes,
		interval:      interval,
		joinTimeout:   joinTimeout,
		state:         state,
		log:           zap.S().Named("progress_observer"),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

func (o *progressObserver) Start() {
	go o.run()
}

// Stop signals the observer to finish and waits for it with a bounded join.
func (o *progressObserver) Stop() {
	close(o.stopCh)
	select {
	case <-o.doneCh:
	case <-time.After(o.joinTimeout):
		o.log.Warnw("observer did not stop within join timeout", "timeout", o.joinTimeout)
	}
}

func (o *progressObserver) run() {
	defer close(o.doneCh)
	// A failure inside the observer must never reach the main task.
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Errorw("observer panicked", "panic", rec)
			o.state.Append(session.LevelError, "progress observer crashed", map[string]any{"panic": rec})
		}
	}()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.observe()
		}
	}
}

func (o *progressObserver) observe() {
	info, err := os.Stat(o.artifactPath)
	if err != nil {
		// The engine may not have created the artifact yet.
		return
	}
	if o.expectedBytes <= 0 {
		return
	}
	pct := float64(info.Size()) / float64(o.expectedBytes) * 100
	if pct > 99 {
		// The engine call itself reports completion; the observer never
		// claims 100%.
		pct = 99
	}
	o.state.SetProgress(pct)
}
