package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/xonecas/agentcore/internal/shell"
	"github.com/xonecas/agentcore/internal/tool"
)

func TestShellRunsCommandAndCapturesOutput(t *testing.T) {
	sh := NewShell(t.TempDir(), nil)
	args, _ := json.Marshal(shellArgs{Command: "echo hi", Description: "print hi"})

	res, toolErr := sh.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr != nil {
		t.Fatalf("unexpected error: %v", toolErr)
	}
	if !strings.Contains(res.Blocks[0].Text, "hi") {
		t.Fatalf("unexpected output: %q", res.Blocks[0].Text)
	}
}

func TestShellNonZeroExitIsToolError(t *testing.T) {
	sh := NewShell(t.TempDir(), nil)
	args, _ := json.Marshal(shellArgs{Command: "exit 3", Description: "fail"})

	_, toolErr := sh.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr == nil || toolErr.Kind != tool.ErrFailed {
		t.Fatalf("expected failed error, got %v", toolErr)
	}
	if !strings.Contains(toolErr.Text, "exit code: 3") {
		t.Fatalf("expected exit code in output, got %q", toolErr.Text)
	}
}

func TestShellBlocksBannedCommands(t *testing.T) {
	sh := NewShell(t.TempDir(), shell.DefaultBlockFuncs())
	args, _ := json.Marshal(shellArgs{Command: "curl https://example.com", Description: "fetch"})

	_, toolErr := sh.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr == nil {
		t.Fatal("expected blocked command to fail")
	}
}

func TestShellRequiresCommand(t *testing.T) {
	sh := NewShell(t.TempDir(), nil)
	args, _ := json.Marshal(shellArgs{Description: "nothing"})

	_, toolErr := sh.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr == nil || toolErr.Kind != tool.ErrInvalidArgs {
		t.Fatalf("expected invalid_args error, got %v", toolErr)
	}
}
