package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/shell"
	"github.com/xonecas/agentcore/internal/tool"
)

const (
	defaultShellTimeoutSec = 60
	maxShellTimeoutSec     = 600
	maxShellOutputChars    = 30000
)

// Shell executes a command in an in-process POSIX interpreter. Shell state
// (cwd, env vars) persists across calls on the same Tool instance.
type Shell struct {
	sh *shell.Shell
}

// NewShell builds a Shell tool rooted at dir, blocking the given commands
// (pass shell.DefaultBlockFuncs() for the built-in deny list).
func NewShell(dir string, blockers []shell.BlockFunc) *Shell {
	return &Shell{sh: shell.New(dir, blockers)}
}

func (t *Shell) Name() string  { return "shell" }
func (t *Shell) Label() string { return "Shell" }
func (t *Shell) Description() string {
	return `Execute a shell command in an in-process POSIX interpreter.
Commands run inside the working directory. Shell state (cwd, env vars) persists across calls within the same session.
Dangerous commands (network, sudo, package managers, system modification) are blocked.`
}

func (t *Shell) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command":     {"type": "string", "minLength": 1, "description": "The shell command to execute"},
			"description": {"type": "string", "description": "Brief description of what this command does (5-10 words)"},
			"timeout":     {"type": "integer", "description": "Timeout in seconds (default 60)"}
		},
		"required": ["command", "description"]
	}`)
}

type shellArgs struct {
	Command     string `json:"command"`
	Description string `json:"description"`
	Timeout     int    `json:"timeout,omitempty"`
}

func (t *Shell) Execute(ctx context.Context, ectx tool.ExecContext, rawArgs json.RawMessage) (tool.Result, *tool.Error) {
	if verr := tool.ValidateArgs(t.Schema(), rawArgs); verr != nil {
		return tool.Result{}, verr
	}

	var args shellArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return tool.Result{}, tool.InvalidArgs("invalid arguments: %v", err)
	}

	timeout := defaultShellTimeoutSec
	if args.Timeout > 0 {
		timeout = args.Timeout
	}
	if timeout > maxShellTimeoutSec {
		timeout = maxShellTimeoutSec
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	if ectx.OnProgress != nil && args.Description != "" {
		ectx.OnProgress(args.Description)
	}

	var stdout, stderr bytes.Buffer
	var execErr error
	if ectx.OnUpdate != nil {
		sw := &streamWriter{buf: &stdout, onChunk: func(s string) {
			snapshot := message.NewToolResult(ectx.CallID, ectx.ToolName, []message.Content{message.Text(stdout.String())}, false)
			ectx.OnUpdate(snapshot)
		}}
		execErr = t.sh.ExecStream(ctx, args.Command, sw, &stderr)
	} else {
		execErr = t.sh.ExecStream(ctx, args.Command, &stdout, &stderr)
	}

	exitCode := shell.ExitCode(execErr)
	output := formatShellOutput(stdout.String(), stderr.String(), exitCode, ctx.Err())
	if output == "" {
		output = "(no output)\n"
	}
	if len([]rune(output)) > maxShellOutputChars {
		output = truncateMiddle(output, maxShellOutputChars)
	}

	if exitCode != 0 {
		return tool.Result{}, tool.Failed("%s", output)
	}
	return tool.TextResult(output), nil
}

type streamWriter struct {
	buf     *bytes.Buffer
	onChunk func(string)
}

func (w *streamWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if n > 0 && w.onChunk != nil {
		w.onChunk(string(p[:n]))
	}
	return n, err
}

func formatShellOutput(stdout, stderr string, exitCode int, ctxErr error) string {
	var b strings.Builder
	if stdout != "" {
		b.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if stderr != "" {
		b.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			b.WriteByte('\n')
		}
	}
	if ctxErr != nil {
		fmt.Fprintf(&b, "[timed out]\n")
	}
	if exitCode != 0 {
		fmt.Fprintf(&b, "[exit code: %d]\n", exitCode)
	}
	return b.String()
}

func truncateMiddle(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	half := maxChars / 2
	return string(runes[:half]) + "\n\n... [truncated] ...\n\n" + string(runes[len(runes)-half:])
}
