package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"optibooking/pkg/errors"
)

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Logger wraps zap.SugaredLogger with optional error tracking
type Logger struct {
	*zap.SugaredLogger
	errorTracker errors.Tracker
	component    string
}

// Init initializes the global logger.
// Production uses the JSON encoder, everything else the colored console encoder.
func Init(level string, env string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	zl, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	globalMu.Lock()
	globalLogger = &Logger{SugaredLogger: zl.Sugar()}
	globalMu.Unlock()
	return nil
}

// SetErrorTracker sets the error tracker for automatic error reporting
func SetErrorTracker(tracker errors.Tracker) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		globalLogger.errorTracker = tracker
	}
}

// Get returns the global logger, falling back to a development logger before Init
func Get() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		zl, _ := zap.NewDevelopment()
		globalLogger = &Logger{SugaredLogger: zl.Sugar()}
	}
	return globalLogger
}

// Nop returns a logger that discards everything (tests)
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// With creates a child logger with additional fields.
// A "component" key is remembered and used as the tracker tag.
func (l *Logger) With(args ...interface{}) *Logger {
	component := l.component
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok && k == "component" {
			component = fmt.Sprint(args[i+1])
		}
	}
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		errorTracker:  l.tracker(),
		component:     component,
	}
}

// WithTracker returns a child logger that reports to t instead of the global tracker
func (l *Logger) WithTracker(t errors.Tracker) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger,
		errorTracker:  t,
		component:     l.component,
	}
}

// WithFields creates a child logger with a map of fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.With(args...)
}

// Error logs an error and forwards it to the error tracker
func (l *Logger) Error(args ...interface{}) {
	l.SugaredLogger.Error(args...)

	if t := l.tracker(); t != nil {
		err := errors.Wrapf(errors.ErrInternal, "%v", args)
		_ = t.CaptureError(context.Background(), err, l.tags())
	}
}

// Errorf logs a formatted error and forwards it to the error tracker
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.SugaredLogger.Errorf(template, args...)

	if t := l.tracker(); t != nil {
		_ = t.CaptureError(context.Background(), fmt.Errorf(template, args...), l.tags())
	}
}

// Errorw logs an error with key/value pairs and forwards the message to the tracker
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)

	if t := l.tracker(); t != nil {
		_ = t.CaptureError(context.Background(), errors.Newf("%s %v", msg, keysAndValues), l.tags())
	}
}

// ErrorWithContext logs an error with context and sends it to the error tracker
func (l *Logger) ErrorWithContext(ctx context.Context, err error, tags map[string]string) {
	l.SugaredLogger.Error(err)

	if t := l.tracker(); t != nil {
		merged := l.tags()
		for k, v := range tags {
			merged[k] = v
		}
		if jobID, ok := errors.JobIDFrom(ctx); ok {
			merged["job_id"] = jobID
		}
		_ = t.CaptureError(ctx, err, merged)
	}
}

// tracker prefers the instance tracker and falls back to the global one,
// so child loggers created before SetErrorTracker still report.
func (l *Logger) tracker() errors.Tracker {
	if l.errorTracker != nil {
		return l.errorTracker
	}
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger.errorTracker
	}
	return nil
}

func (l *Logger) tags() map[string]string {
	component := l.component
	if component == "" {
		component = "logger"
	}
	return map[string]string{"component": component}
}

// Convenience functions that use the global logger
func Debug(args ...interface{})                   { Get().Debug(args...) }
func Debugf(template string, args ...interface{}) { Get().Debugf(template, args...) }
func Info(args ...interface{})                    { Get().Info(args...) }
func Infof(template string, args ...interface{})  { Get().Infof(template, args...) }
func Warn(args ...interface{})                    { Get().Warn(args...) }
func Warnf(template string, args ...interface{})  { Get().Warnf(template, args...) }
func Error(args ...interface{})                   { Get().Error(args...) }
func Errorf(template string, args ...interface{}) { Get().Errorf(template, args...) }
func Fatal(args ...interface{})                   { Get().Fatal(args...) }
func Fatalf(template string, args ...interface{}) { Get().Fatalf(template, args...) }

// Sync flushes any buffered log entries
func Sync() error {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
