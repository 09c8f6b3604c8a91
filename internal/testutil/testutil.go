package testutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
)

var RunLong = flag.Bool("long", false, "run the long randomized stripe tests")

// RequireLong skips t unless the -long flag is set.
func RequireLong(t testing.TB) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

// Message returns a printable message of n bytes derived from seed.
func Message(seed int64, n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}

// LogBuffer collects the JSON records of a logger made by NewLogger.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLogger returns a debug level JSON logger writing into the returned
// buffer.
func NewLogger() (*slog.Logger, *LogBuffer) {
	b := &LogBuffer{}
	return slog.New(slog.NewJSONHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug})), b
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Reset drops every record collected so far.
func (b *LogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// Entries decodes the records written so far. Numbers decode as float64.
func (b *LogBuffer) Entries() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e map[string]any
		if err := json.Unmarshal(sc.Bytes(), &e); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the records with message msg.
func (b *LogBuffer) Find(msg string) []map[string]any {
	var out []map[string]any
	for _, e := range b.Entries() {
		if e[slog.MessageKey] == msg {
			out = append(out, e)
		}
	}
	return out
}

// HasLevel reports whether any record was logged at lvl.
func (b *LogBuffer) HasLevel(lvl slog.Level) bool {
	for _, e := range b.Entries() {
		if e[slog.LevelKey] == lvl.String() {
			return true
		}
	}
	return false
}
