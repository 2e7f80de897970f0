package systems

import (
	"log/slog"
	"strings"

	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

// TypeLog emits one structured log line and completes.
const TypeLog = "Log"

// Log properties. A value on the message port wins over the property.
const (
	PropLogMessage = "message"
	PropLogLevel   = "level"

	PortLogMessage = "message"
)

func init() {
	mustRegister(TypeLog, func(log *slog.Logger) engine.System {
		return NewLogSystem(log)
	})
}

// LogSystem is the designer's printf: it logs the message with the action id
// and current Tick attached, then completes. Unknown levels fall back to
// info.
type LogSystem struct {
	engine.Base
	log *slog.Logger
}

// NewLogSystem returns the System handling the Log type.
func NewLogSystem(log *slog.Logger) *LogSystem {
	if log == nil {
		log = slog.Default()
	}
	return &LogSystem{
		Base: engine.NewBase("log", engine.GroupBusiness),
		log:  log,
	}
}

// Update logs every running Log action's message and completes it.
func (s *LogSystem) Update(f *engine.Frame) error {
	for _, i := range f.ActionIndices(TypeLog) {
		st := f.State(i)
		if st.Phase != schema.PhaseRunning {
			continue
		}
		st.IsFirstEntry = false

		message, ok := f.DataPortValue(i, PortLogMessage)
		if !ok {
			message = f.Property(i, PropLogMessage)
		}
		attrs := []any{
			slog.String("action_id", f.ActionID(i)),
			slog.Uint64("tick", f.Tick()),
		}
		switch strings.ToLower(f.Property(i, PropLogLevel)) {
		case "debug":
			s.log.Debug(message, attrs...)
		case "warn", "warning":
			s.log.Warn(message, attrs...)
		case "error":
			s.log.Error(message, attrs...)
		default:
			s.log.Info(message, attrs...)
		}

		_ = st.MarkCompleted()
	}
	return nil
}
