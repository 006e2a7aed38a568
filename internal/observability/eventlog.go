// File: internal/observability/eventlog.go
package observability

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level classifies a diagnostic event.
type Level int8

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// String returns the uppercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Event is a single recorded diagnostic entry. Events are never mutated after
// creation.
type Event struct {
	Time    time.Time
	Level   Level
	Message string
}

// Observer receives a notification for every recorded event. Observers run
// outside the event log's internal lock, so an observer may itself call back
// into Record without deadlocking.
type Observer func(level Level, message string)

// EventLog is a process-wide, thread-safe sink for diagnostic events. The
// internal store is protected by a narrowly scoped mutex; observer
// notification and zap forwarding happen after the mutex is released.
type EventLog struct {
	mu        sync.Mutex
	events    []Event
	observers []Observer

	logger *zap.Logger
}

// NewEventLog creates an event log that forwards every record to the given
// zap logger. A nil logger disables forwarding.
func NewEventLog(logger *zap.Logger) *EventLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLog{logger: logger.Named("events")}
}

// AddObserver registers an external observer. Registration is expected at
// startup; it is guarded only so the observer list cannot be corrupted.
func (e *EventLog) AddObserver(fn Observer) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

// Record appends an event to the store and notifies observers. The append is
// atomic; the only work done under the lock is the in-memory append and a
// snapshot of the observer list. A panicking observer is contained and logged,
// never raised out of Record.
func (e *EventLog) Record(level Level, message string) {
	ev := Event{Time: time.Now(), Level: level, Message: message}

	e.mu.Lock()
	e.events = append(e.events, ev)
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.mu.Unlock()

	switch level {
	case LevelError:
		e.logger.Error(message)
	case LevelWarning:
		e.logger.Warn(message)
	default:
		e.logger.Info(message)
	}

	for _, fn := range observers {
		e.notify(fn, level, message)
	}
}

// Recordf is Record with fmt formatting.
func (e *EventLog) Recordf(level Level, format string, args ...any) {
	e.Record(level, fmt.Sprintf(format, args...))
}

// Info records an event at LevelInfo.
func (e *EventLog) Info(message string) { e.Record(LevelInfo, message) }

// Warning records an event at LevelWarning.
func (e *EventLog) Warning(message string) { e.Record(LevelWarning, message) }

// Error records an event at LevelError.
func (e *EventLog) Error(message string) { e.Record(LevelError, message) }

// Infof records a formatted event at LevelInfo.
func (e *EventLog) Infof(format string, args ...any) { e.Recordf(LevelInfo, format, args...) }

// Warningf records a formatted event at LevelWarning.
func (e *EventLog) Warningf(format string, args ...any) { e.Recordf(LevelWarning, format, args...) }

// Errorf records a formatted event at LevelError.
func (e *EventLog) Errorf(format string, args ...any) { e.Recordf(LevelError, format, args...) }

// Events returns a copy of all recorded events.
func (e *EventLog) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// Len returns the number of recorded events.
func (e *EventLog) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func (e *EventLog) notify(fn Observer, level Level, message string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event observer panicked", zap.Any("panic", r))
		}
	}()
	fn(level, message)
}
