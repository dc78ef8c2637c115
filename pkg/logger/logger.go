package logger

// Field is a structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// Client is the logging surface used across the module.
type Client interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type nopLogger struct{}

// Nop returns a Client that discards everything.
func Nop() Client {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}
