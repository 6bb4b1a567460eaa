package nextrush

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"text/template"
	"time"
)

// Log levels, ordered from most to least verbose. Matches teacher
// logger.go's level table.
const (
	lvlDebug = iota
	lvlInfo
	lvlWarn
	lvlError
	lvlFatal
)

var levelNames = []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// Logger is a small structured logger, grounded on teacher logger.go:
// a text/template line format, a `sync.Pool` of buffers to keep logging
// allocation-light on the hot path, and a JSON mode for machine
// consumption. No example repo in the corpus imports a third-party
// logging library, so this stays stdlib (`text/template`, `encoding/json`).
type Logger struct {
	Output io.Writer
	Level  int
	JSON   bool

	template   *template.Template
	bufferPool *sync.Pool
	mutex      sync.Mutex
}

const defaultLogFormat = `{{.Time}} {{.Level}} {{.Message}}` + "\n"

// NewLogger returns a `*Logger` writing text lines to output using format,
// or the default format if format is empty.
func NewLogger(output io.Writer, format string) *Logger {
	if output == nil {
		output = os.Stderr
	}
	if format == "" {
		format = defaultLogFormat
	}

	tmpl := template.Must(template.New("log").Parse(format))

	return &Logger{
		Output:   output,
		Level:    lvlDebug,
		template: tmpl,
		bufferPool: &sync.Pool{
			New: func() interface{} { return &bytes.Buffer{} },
		},
	}
}

type logLine struct {
	Time    string
	Level   string
	Message string
	Fields  map[string]interface{}
}

func (l *Logger) log(level int, message string, fields map[string]interface{}) {
	if level < l.Level {
		return
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	buf := l.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer l.bufferPool.Put(buf)

	if l.JSON {
		entry := map[string]interface{}{
			"time":    time.Now().Format(time.RFC3339),
			"level":   levelNames[level],
			"message": message,
		}
		for k, v := range fields {
			entry[k] = v
		}

		enc := json.NewEncoder(buf)
		if err := enc.Encode(entry); err == nil {
			l.Output.Write(buf.Bytes())
		}
	} else {
		line := logLine{
			Time:    time.Now().Format(time.RFC3339),
			Level:   levelNames[level],
			Message: message,
			Fields:  fields,
		}

		if err := l.template.Execute(buf, line); err == nil {
			l.Output.Write(buf.Bytes())
		}
	}

	if level == lvlFatal {
		os.Exit(1)
	}
}

// Debug logs message at debug level.
func (l *Logger) Debug(message string) { l.log(lvlDebug, message, nil) }

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(lvlDebug, fmt.Sprintf(format, args...), nil)
}

// Debugj logs fields at debug level with no separate message.
func (l *Logger) Debugj(fields map[string]interface{}) { l.log(lvlDebug, "", fields) }

// Info logs message at info level.
func (l *Logger) Info(message string) { l.log(lvlInfo, message, nil) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(lvlInfo, fmt.Sprintf(format, args...), nil)
}

// Infoj logs fields at info level.
func (l *Logger) Infoj(fields map[string]interface{}) { l.log(lvlInfo, "", fields) }

// Warn logs message at warn level.
func (l *Logger) Warn(message string) { l.log(lvlWarn, message, nil) }

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(lvlWarn, fmt.Sprintf(format, args...), nil)
}

// Warnj logs fields at warn level.
func (l *Logger) Warnj(fields map[string]interface{}) { l.log(lvlWarn, "", fields) }

// Error logs message at error level.
func (l *Logger) Error(message string) { l.log(lvlError, message, nil) }

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(lvlError, fmt.Sprintf(format, args...), nil)
}

// Errorj logs fields at error level.
func (l *Logger) Errorj(fields map[string]interface{}) { l.log(lvlError, "", fields) }

// Fatal logs message at fatal level then terminates the process, matching
// teacher logger.go's Fatal semantics.
func (l *Logger) Fatal(message string) { l.log(lvlFatal, message, nil) }

// Fatalf logs a formatted message at fatal level then terminates.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(lvlFatal, fmt.Sprintf(format, args...), nil)
}
