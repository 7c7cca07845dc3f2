package elog

// NopLogger discards everything. It is the default logger for library
// entry points that are given no logger at all.
type NopLogger struct {
}

func (nop *NopLogger) Debugf(format string, args ...interface{}) {
}

func (nop *NopLogger) Errorf(format string, args ...interface{}) {
}

func (nop *NopLogger) Infof(format string, args ...interface{}) {
}

func (nop *NopLogger) IsLogLevelEnabled(level LogLevel) bool {
	return false
}

func (nop *NopLogger) Logf(level LogLevel, format string, args ...interface{}) {
}

func (nop *NopLogger) Scoped(scope string) Logger {
	return nop
}

func (nop *NopLogger) Tracef(format string, args ...interface{}) {
}

func (nop *NopLogger) Warnf(format string, args ...interface{}) {
}
