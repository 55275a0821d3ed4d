// Package protocol defines the fixed-size messages exchanged between the
// supervisory goroutine and the RT thread.
//
// Every message is plain data: no pointers, slices, maps or strings, so a
// value copied through an spsc.Channel carries nothing the other thread
// could still mutate.
package protocol

import (
	"strconv"
	"unicode/utf8"

	"rtcore/constants"
)

// ============================================================================
// COMMANDS (supervisor → RT)
// ============================================================================

// CommandKind enumerates requests the RT thread understands.
type CommandKind uint8

const (
	Ping CommandKind = iota + 1
	RequestShutdown
	EnableIo
	Log
)

func (k CommandKind) String() string {
	switch k {
	case Ping:
		return "Ping"
	case RequestShutdown:
		return "RequestShutdown"
	case EnableIo:
		return "EnableIo"
	case Log:
		return "Log"
	default:
		return "CommandKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Command is one request. Seq is echoed in the matching response.
type Command struct {
	Kind CommandKind
	Seq  uint32
	Log  LogRecord // Kind == Log only
}

// ============================================================================
// RESPONSES (RT → supervisor)
// ============================================================================

// ResponseKind enumerates what the RT thread sends back.
type ResponseKind uint8

const (
	Pong ResponseKind = iota + 1
	Ack
	Nack
	StabilityChanged
	LogEntry
)

func (k ResponseKind) String() string {
	switch k {
	case Pong:
		return "Pong"
	case Ack:
		return "Ack"
	case Nack:
		return "Nack"
	case StabilityChanged:
		return "StabilityChanged"
	case LogEntry:
		return "Log"
	default:
		return "ResponseKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Stability is the payload of a StabilityChanged notification.
type Stability uint8

const (
	Unstable Stability = iota
	Stable
)

func (s Stability) String() string {
	if s == Stable {
		return "Stable"
	}
	return "Unstable"
}

// Response is one reply or notification. Seq is the request sequence for
// Pong/Ack/Nack and relayed Log records, and zero for unsolicited messages.
type Response struct {
	Kind      ResponseKind
	Seq       uint32
	Stability Stability // Kind == StabilityChanged
	Log       LogRecord // Kind == LogEntry
}

// ============================================================================
// LOG RECORDS
// ============================================================================

// Level is a log record severity.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// LogRecord is a bounded text payload. Text longer than the payload is
// truncated on a UTF-8 boundary and Truncated is set.
type LogRecord struct {
	Level     Level
	Truncated bool
	Len       uint8
	Payload   [constants.LogPayloadSize]byte
}

// NewLogRecord copies text into a fixed record, truncating if needed.
func NewLogRecord(level Level, text string) LogRecord {
	r := LogRecord{Level: level}
	n := len(text)
	if n > len(r.Payload) {
		n = len(r.Payload)
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		r.Truncated = true
	}
	copy(r.Payload[:], text[:n])
	r.Len = uint8(n)
	return r
}

// Text returns the payload as a string. It allocates; call it on the
// supervisory side only.
func (r LogRecord) Text() string {
	n := int(r.Len)
	if n > len(r.Payload) {
		n = len(r.Payload)
	}
	if !utf8.Valid(r.Payload[:n]) {
		return "[invalid utf-8]"
	}
	return string(r.Payload[:n])
}

// String implements fmt.Stringer.
func (r LogRecord) String() string { return r.Text() }
