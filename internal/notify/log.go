package notify

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/example/libseat/internal/reservation"
)

// Logger writes every event to log at the matching level.
func Logger(log *zap.Logger) reservation.Notifier {
	return reservation.NotifierFunc(func(e reservation.Event) {
		fields := []zap.Field{
			zap.String("run_id", e.RunID),
			zap.Stringer("state", e.State),
		}
		if e.SlotID != 0 {
			fields = append(fields, zap.Int("slot_id", e.SlotID))
		}
		if e.Attempt != 0 {
			fields = append(fields, zap.Int("attempt", e.Attempt))
		}
		if e.Level == reservation.LevelWarning {
			fields = append(fields, zap.Stringer("kind", e.Kind))
		}
		if ce := log.Check(zapLevel(e.Level), e.Message); ce != nil {
			ce.Write(fields...)
		}
	})
}

func zapLevel(l reservation.Level) zapcore.Level {
	switch l {
	case reservation.LevelDebug:
		return zapcore.DebugLevel
	case reservation.LevelWarning:
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}

// Writer prints one line per event at or above min, in the form
// "2006-01-02 15:04:05 - INFO - message".
func Writer(w io.Writer, min reservation.Level) reservation.Notifier {
	var mu sync.Mutex
	return reservation.NotifierFunc(func(e reservation.Event) {
		if e.Level < min {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s - %s - %s\n", e.Time.Format("2006-01-02 15:04:05"), e.Level, e.Message)
	})
}
