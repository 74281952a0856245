package log

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap/zapcore"

	"github.com/chrissnell/pistation/internal/types"
)

// LineSink receives log entries destined for the database
type LineSink interface {
	StoreLog(line types.LogLine) error
}

type sinkHolder struct {
	sink LineSink
}

var backend atomic.Pointer[sinkHolder]

// SetBackend installs the sink that backend cores forward to. Passing nil
// stops forwarding.
func SetBackend(sink LineSink) {
	if sink == nil {
		backend.Store(nil)
		return
	}
	backend.Store(&sinkHolder{sink: sink})
}

// excludedPrefixes name the loggers used on the path that writes log lines.
// Forwarding their entries would re-enter that path.
var excludedPrefixes = []string{"database", "backlog", "storage"}

func excluded(loggerName string) bool {
	for _, p := range excludedPrefixes {
		if loggerName == p || strings.HasPrefix(loggerName, p+".") {
			return true
		}
	}
	return false
}

// backendCore is a zapcore.Core that turns entries into types.LogLine
type backendCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
}

// NewBackendCore returns a core that forwards entries at or above enab to the
// sink installed with SetBackend. The sink is called on the logging goroutine,
// so a log call can block for as long as one database write takes, including
// a reconnect attempt while the database is down.
func NewBackendCore(enab zapcore.LevelEnabler) zapcore.Core {
	return &backendCore{LevelEnabler: enab}
}

func (c *backendCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &backendCore{
		LevelEnabler: c.LevelEnabler,
		fields:       make([]zapcore.Field, 0, len(c.fields)+len(fields)),
	}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *backendCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if excluded(ent.LoggerName) || !c.Enabled(ent.Level) {
		return ce
	}
	return ce.AddCore(ent, c)
}

func (c *backendCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	h := backend.Load()
	if h == nil {
		return nil
	}

	all := fields
	if len(c.fields) > 0 {
		all = append(append([]zapcore.Field{}, c.fields...), fields...)
	}

	// delivery failures are the backlog's concern, not the caller's
	_ = h.sink.StoreLog(ToLogLine(ent, all))
	return nil
}

func (c *backendCore) Sync() error {
	return nil
}

// ToLogLine renders an entry as a database log line
func ToLogLine(ent zapcore.Entry, fields []zapcore.Field) types.LogLine {
	source := ent.LoggerName
	if ent.Caller.Defined {
		if source != "" {
			source += " "
		}
		source += ent.Caller.TrimmedPath()
	}

	return types.LogLine{
		Time:   ent.Time,
		Level:  ent.Level.CapitalString(),
		Source: source,
		Text:   ent.Message + formatFields(fields),
	}
}

func formatFields(fields []zapcore.Field) string {
	if len(fields) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range fields {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)

		keys := make([]string, 0, len(enc.Fields))
		for k := range enc.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, enc.Fields[k])
		}
	}
	return b.String()
}
