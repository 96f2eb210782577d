package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/reflex-coffee/internal/display"
	"github.com/kingrea/reflex-coffee/internal/logging"
)

const appendTimeout = 2 * time.Second

// Recorder is a display.Sink that writes every event log entry of one
// session to the store. Write failures are logged and otherwise ignored so
// a broken journal never stalls the UI.
type Recorder struct {
	store     *Store
	sessionID string
	logger    *slog.Logger
}

// NewRecorder starts a new session id on store.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{store: store, sessionID: uuid.NewString(), logger: logger}
}

// SessionID identifies the rows written by this recorder.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// Record implements display.Sink.
func (r *Recorder) Record(entry display.EventLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := r.store.Append(ctx, r.sessionID, entry); err != nil {
		r.logger.Warn("journal append failed", "session", r.sessionID, "seq", entry.ID, "error", err)
	}
}
