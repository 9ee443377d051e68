package reporter

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"yaftp/internal/transport"
)

// LogReporter writes transfer events to a logrus logger. Starts and
// terminal events are logged at info (failures at warn); chunk advances at
// debug. It is safe for concurrent transfers.
type LogReporter struct {
	log *logrus.Entry

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// NewLogReporter creates a reporter logging to log
func NewLogReporter(log *logrus.Entry) *LogReporter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogReporter{
		log:     log.WithField("component", "reporter"),
		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

// OnEvent implements transport.Observer
func (r *LogReporter) OnEvent(e transport.Event) {
	fields := logrus.Fields{
		"direction": e.Direction.String(),
		"name":      e.Name,
		"seq":       e.Seq,
		"bytes":     e.Bytes,
		"size":      e.Size,
	}
	if e.Peer != nil {
		fields["addr"] = e.Peer.String()
	}

	key := transferKey(e)
	switch {
	case e.Done():
		if elapsed, ok := r.finish(key); ok {
			fields["duration"] = elapsed.Round(time.Millisecond).String()
		}
		if e.Failed() {
			r.log.WithFields(fields).WithField("error", e.Err).Warn("Transfer failed")
			return
		}
		r.log.WithFields(fields).Info("Transfer finished")
	case r.start(key):
		r.log.WithFields(fields).Info("Transfer started")
	default:
		r.log.WithFields(fields).WithField("state", state(e)).Debug("Transfer progress")
	}
}

// start records the first event of a transfer and reports whether e was it
func (r *LogReporter) start(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.started[key]; ok {
		return false
	}
	r.started[key] = r.now()
	return true
}

func (r *LogReporter) finish(key string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.started[key]
	delete(r.started, key)
	if !ok {
		return 0, false
	}
	return r.now().Sub(t), true
}

func transferKey(e transport.Event) string {
	peer := ""
	if e.Direction == transport.Upload && e.Peer != nil {
		peer = e.Peer.String()
	}
	return fmt.Sprintf("%s|%s|%s", e.Direction, e.Name, peer)
}

func state(e transport.Event) string {
	if e.Direction == transport.Upload {
		return e.SenderState.String()
	}
	return e.ReceiverState.String()
}
