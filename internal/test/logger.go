package test

import "github.com/go-logr/logr"

// recordingSink is a minimal logr.LogSink that flips a flag on the first
// Info or Error call, letting tests assert a Session actually used an injected
// logger rather than silently falling back to its default.
type recordingSink struct {
	called *bool
}

func (s recordingSink) Init(logr.RuntimeInfo)                                 {}
func (s recordingSink) Enabled(int) bool                                      { return true }
func (s recordingSink) Info(level int, msg string, kv ...interface{})         { *s.called = true }
func (s recordingSink) Error(err error, msg string, kv ...interface{})        { *s.called = true }
func (s recordingSink) WithValues(kv ...interface{}) logr.LogSink            { return s }
func (s recordingSink) WithName(name string) logr.LogSink                    { return s }

// NewRecordingLogger returns a logr.Logger that sets *called to true on the
// first Info or Error call.
func NewRecordingLogger(called *bool) logr.Logger {
	return logr.New(recordingSink{called: called})
}
