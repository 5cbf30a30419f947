package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/xonecas/agentcore/internal/tool"
)

func TestReadFileReturnsFullContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("one\ntwo\nthree"), 0o644)

	rf := NewReadFile(dir)
	args, _ := json.Marshal(readFileArgs{Path: "a.txt"})
	res, toolErr := rf.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr != nil {
		t.Fatalf("unexpected error: %v", toolErr)
	}
	if res.Blocks[0].Text != "one\ntwo\nthree" {
		t.Fatalf("unexpected content: %q", res.Blocks[0].Text)
	}
}

func TestReadFileLineRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("one\ntwo\nthree\nfour"), 0o644)

	rf := NewReadFile(dir)
	args, _ := json.Marshal(readFileArgs{Path: "a.txt", Start: 2, End: 3})
	res, toolErr := rf.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr != nil {
		t.Fatalf("unexpected error: %v", toolErr)
	}
	if res.Blocks[0].Text != "two\nthree" {
		t.Fatalf("unexpected content: %q", res.Blocks[0].Text)
	}
}

func TestReadFileRejectsEscapingRoot(t *testing.T) {
	dir := t.TempDir()
	rf := NewReadFile(dir)
	args, _ := json.Marshal(readFileArgs{Path: "../../etc/passwd"})
	_, toolErr := rf.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr == nil || toolErr.Kind != tool.ErrInvalidArgs {
		t.Fatalf("expected invalid_args error, got %v", toolErr)
	}
}

func TestReadFileMissingFile(t *testing.T) {
	dir := t.TempDir()
	rf := NewReadFile(dir)
	args, _ := json.Marshal(readFileArgs{Path: "missing.txt"})
	_, toolErr := rf.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr == nil || toolErr.Kind != tool.ErrNotFound {
		t.Fatalf("expected not_found error, got %v", toolErr)
	}
}
