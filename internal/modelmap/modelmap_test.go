package modelmap

import "testing"

const (
	big    = "gpt-4o"
	middle = "gpt-4.1"
	small  = "gpt-4o-mini"
)

func TestResolveTiered(t *testing.T) {
	cases := []struct {
		model string
		want  string
	}{
		// exact table matches
		{"claude-3-5-haiku-20241022", small},
		{"claude-3-haiku-20240307", small},
		{"claude-3-5-sonnet-20241022", middle},
		{"claude-sonnet-4-20250514", middle},
		{"claude-3-opus-20240229", big},
		{"claude-opus-4-1-20250805", big},
		// substring fallback, case-insensitive
		{"claude-9-haiku-preview", small},
		{"CLAUDE-HAIKU-FUTURE", small},
		{"anything-Sonnet-here", middle},
		{"my-OPUS-build", big},
		// backend-native identifiers pass through
		{"gpt-4o-mini", "gpt-4o-mini"},
		{"o1-preview", "o1-preview"},
		{"deepseek-chat", "deepseek-chat"},
		{"doubao-pro", "doubao-pro"},
		{"ep-20240101", "ep-20240101"},
		// unknown defaults to big
		{"totally-unknown-model", big},
		{"", big},
	}
	for _, tc := range cases {
		if got := ResolveTiered(tc.model, big, middle, small); got != tc.want {
			t.Errorf("ResolveTiered(%q) = %q, want %q", tc.model, got, tc.want)
		}
	}
}

func TestResolveCollapsesSonnetToBig(t *testing.T) {
	if got := Resolve("claude-3-5-sonnet-20241022", big, small); got != big {
		t.Fatalf("sonnet should resolve to big target, got %q", got)
	}
	if got := Resolve("claude-3-5-haiku-20241022", big, small); got != small {
		t.Fatalf("haiku should resolve to small target, got %q", got)
	}
}

func TestResolveEmptyMiddleFallsBackToBig(t *testing.T) {
	if got := ResolveTiered("claude-3-5-sonnet-20241022", big, "", small); got != big {
		t.Fatalf("empty middle should fall back to big, got %q", got)
	}
}

// Resolution is total: any input yields a non-empty target and never panics.
func TestResolveNeverEmpty(t *testing.T) {
	inputs := []string{"", "x", "haiku", "sonnet", "opus", "HAIKU-sonnet", "gpt-", "\x00weird"}
	for _, model := range inputs {
		if got := Resolve(model, big, small); got == "" {
			t.Errorf("Resolve(%q) returned empty target", model)
		}
	}
}
