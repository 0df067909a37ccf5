package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/midodimori/langrepl/internal/pattern"
	"github.com/midodimori/langrepl/internal/tools"
)

// Rule matches tool calls by name and optionally by arguments. Name is
// a glob over the category:module:function identifier; Args, when
// non-empty, is a glob over the call's serialized arguments.
type Rule struct {
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}

// Matches reports whether the rule applies to a call. The name glob
// matches segment-wise against the identifier. An args glob matches the
// call's full "key=value ..." serialization; globs that carry no '='
// are additionally tried against each argument value alone, so a rule
// like {name: "impl:terminal:run_command", args: "rm -rf /*"} fires on
// the command string without naming the key.
func (r Rule) Matches(call tools.Call) bool {
	if !pattern.MatchName(r.Name, call.Name) {
		return false
	}
	if r.Args == "" {
		return true
	}
	if pattern.Match(r.Args, call.SerializeArgs()) {
		return true
	}
	if !strings.Contains(r.Args, "=") {
		for _, v := range tools.ArgValues(call.Args) {
			if pattern.Match(r.Args, v) {
				return true
			}
		}
	}
	return false
}

func (r Rule) String() string {
	if r.Args == "" {
		return r.Name
	}
	return r.Name + " (" + r.Args + ")"
}

func (r Rule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule with empty name")
	}
	if _, err := pattern.Compile(r.Name); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	if r.Args != "" {
		if _, err := pattern.Compile(r.Args); err != nil {
			return fmt.Errorf("rule %q args: %w", r.Name, err)
		}
	}
	return nil
}

// Rules is the persisted approval policy: two ordered rule lists.
// Deny rules are authoritative; they are consulted before allow rules
// in every mode that consults rules at all.
type Rules struct {
	AlwaysAllow []Rule `json:"always_allow"`
	AlwaysDeny  []Rule `json:"always_deny"`
}

// LoadRules reads the policy file at path. A missing file yields empty
// rules. Malformed patterns are rejected here so a bad edit to the
// policy file surfaces at startup, not mid-session.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Rules{}, nil
		}
		return nil, fmt.Errorf("read approval rules: %w", err)
	}
	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse approval rules: %w", err)
	}
	for _, r := range append(append([]Rule{}, rules.AlwaysAllow...), rules.AlwaysDeny...) {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}
	return &rules, nil
}

// Save writes the policy file, creating parent directories as needed.
func (rs *Rules) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create rules dir: %w", err)
	}
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode approval rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write approval rules: %w", err)
	}
	return nil
}

// AddAllow appends an allow rule unless an identical one exists.
func (rs *Rules) AddAllow(r Rule) {
	rs.AlwaysAllow = appendUnique(rs.AlwaysAllow, r)
}

// AddDeny appends a deny rule unless an identical one exists.
func (rs *Rules) AddDeny(r Rule) {
	rs.AlwaysDeny = appendUnique(rs.AlwaysDeny, r)
}

func appendUnique(list []Rule, r Rule) []Rule {
	for _, have := range list {
		if have == r {
			return list
		}
	}
	return append(list, r)
}
