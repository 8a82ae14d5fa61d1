package testutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "file.txt")
	WriteFile(t, path, []byte("hello"))
	if got := string(ReadFile(t, path)); got != "hello" {
		t.Errorf("ReadFile = %q, want hello", got)
	}
}

func TestAssertions(t *testing.T) {
	AssertNoError(t, nil)

	base := errors.New("base")
	AssertErrorIs(t, fmt.Errorf("wrapped: %w", base), base)
}
