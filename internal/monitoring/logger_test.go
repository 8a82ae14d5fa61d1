package monitoring

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"testing"
)

func TestPrefixed(t *testing.T) {
	var got []string
	base := func(format string, v ...any) {
		got = append(got, fmt.Sprintf(format, v...))
	}

	logf := Prefixed(base, "[trip abc] ")
	logf("loading sensor %s", "radar")

	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0] != "[trip abc] loading sensor radar" {
		t.Errorf("unexpected message %q", got[0])
	}
}

func TestPrefixed_NilBaseUsesDefault(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	origFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(orig)
		log.SetFlags(origFlags)
	}()

	Prefixed(nil, "x: ")("hello %d", 1)

	if !strings.Contains(buf.String(), "x: hello 1") {
		t.Errorf("expected default logger output, got %q", buf.String())
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(nil) == nil {
		t.Fatal("OrDefault(nil) returned nil")
	}

	called := false
	l := OrDefault(func(string, ...any) { called = true })
	l("test")
	if !called {
		t.Error("custom logger was not used")
	}

	// Must not panic.
	Discard("dropped %s", "message")
}
