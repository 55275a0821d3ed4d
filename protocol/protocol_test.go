package protocol

import (
	"strings"
	"testing"
	"unicode/utf8"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"rtcore/constants"
)

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "Ping", Ping.String())
	assert.Equal(t, "RequestShutdown", RequestShutdown.String())
	assert.Equal(t, "EnableIo", EnableIo.String())
	assert.Equal(t, "Log", Log.String())
	assert.Equal(t, "CommandKind(0)", CommandKind(0).String())

	assert.Equal(t, "Pong", Pong.String())
	assert.Equal(t, "Ack", Ack.String())
	assert.Equal(t, "Nack", Nack.String())
	assert.Equal(t, "StabilityChanged", StabilityChanged.String())
	assert.Equal(t, "Log", LogEntry.String())
	assert.Equal(t, "ResponseKind(99)", ResponseKind(99).String())

	assert.Equal(t, "Stable", Stable.String())
	assert.Equal(t, "Unstable", Unstable.String())
	assert.Equal(t, "warn", LevelWarn.String())
}

func TestLogRecordFits(t *testing.T) {
	r := NewLogRecord(LevelInfo, "io enabled")
	assert.False(t, r.Truncated)
	assert.Equal(t, "io enabled", r.Text())
	assert.Equal(t, "io enabled", r.String())
	assert.Equal(t, LevelInfo, r.Level)
}

func TestLogRecordExactFit(t *testing.T) {
	text := strings.Repeat("x", constants.LogPayloadSize)
	r := NewLogRecord(LevelDebug, text)
	assert.False(t, r.Truncated)
	assert.Equal(t, text, r.Text())
}

func TestLogRecordTruncates(t *testing.T) {
	text := strings.Repeat("y", constants.LogPayloadSize+10)
	r := NewLogRecord(LevelWarn, text)
	assert.True(t, r.Truncated)
	assert.Equal(t, text[:constants.LogPayloadSize], r.Text())
}

func TestLogRecordTruncatesOnRuneBoundary(t *testing.T) {
	// 63 ASCII bytes then a 3-byte rune straddling the payload edge.
	text := strings.Repeat("a", constants.LogPayloadSize-1) + "€tail"
	r := NewLogRecord(LevelInfo, text)
	assert.True(t, r.Truncated)
	assert.True(t, utf8.ValidString(r.Text()))
	assert.Equal(t, strings.Repeat("a", constants.LogPayloadSize-1), r.Text())
}

func TestLogRecordInvalidBytes(t *testing.T) {
	var r LogRecord
	r.Payload[0] = 0xff
	r.Len = 1
	assert.Equal(t, "[invalid utf-8]", r.Text())
}

func TestMessagesArePlainData(t *testing.T) {
	// Fixed-size values copied through the channel; guard against someone
	// adding a string or slice field.
	assert.Less(t, int(unsafe.Sizeof(Command{})), 128)
	assert.Less(t, int(unsafe.Sizeof(Response{})), 128)

	a := Command{Kind: Log, Seq: 7, Log: NewLogRecord(LevelInfo, "hi")}
	b := a
	b.Log.Payload[0] = 'H'
	assert.Equal(t, "hi", a.Log.Text())
}
