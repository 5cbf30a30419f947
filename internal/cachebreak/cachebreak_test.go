package cachebreak

import "testing"

func TestAutoMarksEverythingSupported(t *testing.T) {
	p := AutoPlacer()
	hints := p.Place(5, true)
	if !hints.SystemPrompt || !hints.ToolDefs || !hints.HistoryTail {
		t.Errorf("expected all hints set, got %+v", hints)
	}
}

func TestAutoSkipsToolsWhenNoneRegistered(t *testing.T) {
	p := AutoPlacer()
	hints := p.Place(5, false)
	if hints.ToolDefs {
		t.Error("expected ToolDefs unset with no tools")
	}
}

func TestAutoSkipsHistoryTailOnShortHistory(t *testing.T) {
	p := AutoPlacer()
	hints := p.Place(1, true)
	if hints.HistoryTail {
		t.Error("expected HistoryTail unset with fewer than 2 messages")
	}
}

func TestDisabledMarksNothing(t *testing.T) {
	p := DisabledPlacer()
	hints := p.Place(10, true)
	if hints.SystemPrompt || hints.ToolDefs || hints.HistoryTail {
		t.Errorf("expected no hints set, got %+v", hints)
	}
}

func TestManualHonorsOnlyEnabledBreakpoints(t *testing.T) {
	p := NewManual(ManualConfig{SystemPrompt: true})
	hints := p.Place(10, true)
	if !hints.SystemPrompt {
		t.Error("expected SystemPrompt set")
	}
	if hints.ToolDefs || hints.HistoryTail {
		t.Errorf("expected only SystemPrompt set, got %+v", hints)
	}
}
