package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xonecas/agentcore/internal/tool"
)

// maxReadFileBytes caps how much of a file is read into memory at once.
const maxReadFileBytes = 2 << 20 // 2 MiB

// ReadFile reads a file confined to a root directory, optionally restricted
// to a 1-indexed line range. It is built on the standard library only: a
// literal file read with a path-confinement check has no third-party
// library in the examined ecosystem that does it any better.
type ReadFile struct {
	root string
}

// NewReadFile builds a ReadFile tool confined to root; any path resolving
// outside root is rejected.
func NewReadFile(root string) *ReadFile {
	return &ReadFile{root: root}
}

func (t *ReadFile) Name() string  { return "read_file" }
func (t *ReadFile) Label() string { return "Read File" }
func (t *ReadFile) Description() string {
	return "Read a file's contents, optionally restricted to a line range."
}

func (t *ReadFile) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path":  {"type": "string", "minLength": 1, "description": "Path to the file to read"},
			"start": {"type": "integer", "description": "Starting line number (1-indexed, inclusive)"},
			"end":   {"type": "integer", "description": "Ending line number (1-indexed, inclusive)"}
		},
		"required": ["path"]
	}`)
}

type readFileArgs struct {
	Path  string `json:"path"`
	Start int    `json:"start,omitempty"`
	End   int    `json:"end,omitempty"`
}

func (t *ReadFile) Execute(ctx context.Context, ectx tool.ExecContext, rawArgs json.RawMessage) (tool.Result, *tool.Error) {
	if verr := tool.ValidateArgs(t.Schema(), rawArgs); verr != nil {
		return tool.Result{}, verr
	}

	var args readFileArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return tool.Result{}, tool.InvalidArgs("invalid arguments: %v", err)
	}

	absPath, err := t.resolve(args.Path)
	if err != nil {
		return tool.Result{}, tool.InvalidArgs("%v", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return tool.Result{}, tool.NotFound("%v", err)
	}
	if info.IsDir() {
		return tool.Result{}, tool.InvalidArgs("%s is a directory", args.Path)
	}
	if info.Size() > maxReadFileBytes {
		return tool.Result{}, tool.Failed("file too large (%d bytes, max %d)", info.Size(), maxReadFileBytes)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return tool.Result{}, tool.Failed("read failed: %v", err)
	}

	text := string(content)
	if args.Start > 0 || args.End > 0 {
		var rangeErr *tool.Error
		text, rangeErr = sliceLines(text, args.Start, args.End)
		if rangeErr != nil {
			return tool.Result{}, rangeErr
		}
	}

	return tool.TextResult(text), nil
}

// resolve confines path to t.root, rejecting anything that escapes it.
func (t *ReadFile) resolve(path string) (string, error) {
	root := t.root
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	absPath, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	rel, err := filepath.Rel(root, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("access denied: path outside root directory")
	}
	return absPath, nil
}

func sliceLines(content string, start, end int) (string, *tool.Error) {
	lines := strings.Split(content, "\n")
	if start <= 0 {
		start = 1
	}
	if start > len(lines) {
		return "", tool.InvalidArgs("start line %d out of range (file has %d lines)", start, len(lines))
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return "", tool.InvalidArgs("invalid range: start (%d) > end (%d)", start, end)
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}
