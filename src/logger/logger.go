// Package logger provides the logging interface used across nightwatch.
package logger

import (
	"fmt"
	"os"
)

// Logger is implemented by all log sinks in the application.
// Console is the default; Silent is used when stdout belongs to the MCP
// transport and log lines would corrupt the protocol stream.
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// ConsoleLogger writes human-readable logs to stdout/stderr.
type ConsoleLogger struct {
	// DebugEnabled gates Debug output. Info and Error are always written.
	DebugEnabled bool
}

func NewConsoleLogger() *ConsoleLogger {
	return &ConsoleLogger{}
}

func (c *ConsoleLogger) Info(msg string, args ...interface{}) {
	fmt.Printf("[INFO] "+msg+"\n", args...)
}

func (c *ConsoleLogger) Error(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[ERROR] "+msg+"\n", args...)
}

func (c *ConsoleLogger) Debug(msg string, args ...interface{}) {
	if c.DebugEnabled {
		fmt.Printf("[DEBUG] "+msg+"\n", args...)
	}
}

// SilentLogger discards all log messages.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}

// PrefixLogger wraps another Logger and prepends a fixed prefix, typically
// the agent or component name (e.g. "[Analyzer]").
type PrefixLogger struct {
	prefix string
	next   Logger
}

func NewPrefixLogger(prefix string, next Logger) *PrefixLogger {
	return &PrefixLogger{prefix: prefix, next: next}
}

func (p *PrefixLogger) Info(msg string, args ...interface{}) {
	p.next.Info(p.prefix+" "+msg, args...)
}

func (p *PrefixLogger) Error(msg string, args ...interface{}) {
	p.next.Error(p.prefix+" "+msg, args...)
}

func (p *PrefixLogger) Debug(msg string, args ...interface{}) {
	p.next.Debug(p.prefix+" "+msg, args...)
}
