package sst25

import "time"

// Progress is reported by Stream every 1024 bytes written.
type Progress struct {
	// Addr is the address the next byte will be written to
	Addr int

	// BytesWritten is the number of bytes written so far
	BytesWritten int

	// KiB is BytesWritten in whole kibibytes
	KiB int

	// Elapsed is the time since the first byte arrived
	Elapsed time.Duration
}

// ProgressCallback receives stream progress. It runs on the streaming
// goroutine between two byte writes, so it should return quickly.
type ProgressCallback func(Progress)

// Logger receives driver events as a message plus key-value pairs.
//
// Example with the standard log package:
//
//	type StdLogger struct{}
//	func (StdLogger) Debug(msg string, kv ...any) { log.Println(msg, kv) }
//	func (StdLogger) Info(msg string, kv ...any)  { log.Println(msg, kv) }
//	func (StdLogger) Error(msg string, kv ...any) { log.Println(msg, kv) }
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
