package pattern

import (
	"errors"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern   string
		candidate string
		want      bool
	}{
		{"read_*", "read_file", true},
		{"read_*", "write_file", false},
		{"*", "anything at all", true},
		{"*", "", true},
		{"", "anything", false},
		{"", "", false},
		{"exec", "exec", true},
		{"exec", "exec2", false},
		{"e?ec", "exec", true},
		{"e?ec", "eec", false},
		{"rm -rf /*", "rm -rf /", true},
		{"rm -rf /*", "rm -rf /home/user", true},
		{"rm -rf /*", "ls -la", false},
		{"*multiple*", "update_multiple_items", true},
		{"[rw]ead", "read", true},
		{"[rw]ead", "wead", true},
		{"[rw]ead", "lead", false},
		{"[!rw]ead", "lead", true},
		{"[!rw]ead", "read", false},
		{"[a-z]*", "hello", true},
		{"[a-z]*", "Hello", false},
		{"file[0-9]", "file7", true},
		{"file[0-9]", "filex", false},
		// ']' right after the opener is a literal member.
		{"[]x]", "]", true},
		{"[]x]", "x", true},
		{"[]x]", "y", false},
	}
	for _, tt := range tests {
		if got := Match(tt.pattern, tt.candidate); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.candidate, got, tt.want)
		}
	}
}

func TestMatchName(t *testing.T) {
	tests := []struct {
		pattern   string
		candidate string
		want      bool
	}{
		{"impl:file_system:read_*", "impl:file_system:read_file", true},
		{"impl:file_system:read_*", "impl:file_system:write_file", false},
		{"impl:*:*multiple*", "impl:todo:update_multiple_items", true},
		{"impl:*:*", "impl:terminal:run_command", true},
		{"impl:*:*", "mcp:terminal:run_command", false},
		{"read_file", "read_file", true},
		{"read_file", "impl:file_system:read_file", false},
		{"impl:terminal:run_command", "impl:terminal:run_command", true},
		{"", "impl:terminal:run_command", false},
	}
	for _, tt := range tests {
		if got := MatchName(tt.pattern, tt.candidate); got != tt.want {
			t.Errorf("MatchName(%q, %q) = %v, want %v", tt.pattern, tt.candidate, got, tt.want)
		}
	}
}

func TestCompileRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"[abc", "x[", "[!", "read_[a-"} {
		if _, err := Compile(raw); !errors.Is(err, ErrBadPattern) {
			t.Errorf("Compile(%q) err = %v, want ErrBadPattern", raw, err)
		}
	}
}

func TestCompileAccepts(t *testing.T) {
	for _, raw := range []string{"*", "read_*", "impl:*:*", "[a-z]?*", "[]x]"} {
		p, err := Compile(raw)
		if err != nil {
			t.Fatalf("Compile(%q): %v", raw, err)
		}
		if p.String() != raw {
			t.Errorf("String() = %q, want %q", p.String(), raw)
		}
	}
}

func TestMalformedPatternMatchesNothing(t *testing.T) {
	if Match("[abc", "a") || Match("[abc", "[abc") {
		t.Error("malformed pattern must not match")
	}
}
