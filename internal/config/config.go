// Package config provides configuration types and loading for langrepl.
package config

// Config is the root configuration struct.
type Config struct {
	Paths       PathsConfig       `json:"paths"`
	Model       ModelConfig       `json:"model"`
	Approval    ApprovalConfig    `json:"approval"`
	Session     SessionConfig     `json:"session"`
	Compression CompressionConfig `json:"compression"`
}

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	// DataDir holds the thread database and approval rules. Defaults
	// to ~/.langrepl.
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
	// AgentsFile and CheckpointersFile point at the YAML catalogs.
	AgentsFile        string `json:"agentsFile" envconfig:"AGENTS_FILE"`
	CheckpointersFile string `json:"checkpointersFile" envconfig:"CHECKPOINTERS_FILE"`
}

// ModelConfig groups reasoning model settings.
type ModelConfig struct {
	Name        string  `json:"name" envconfig:"MODEL"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
}

// ApprovalConfig groups tool approval settings.
type ApprovalConfig struct {
	// Mode is semi-active, active, or aggressive.
	Mode string `json:"mode" envconfig:"MODE"`
	// RulesFile is the persisted allow/deny rule list. Defaults to
	// approvals.json under DataDir.
	RulesFile string `json:"rulesFile" envconfig:"RULES_FILE"`
}

// SessionConfig groups session loop settings.
type SessionConfig struct {
	// MaxSteps caps consecutive agent steps without a human turn.
	MaxSteps int `json:"maxSteps" envconfig:"MAX_STEPS"`
	// ResumeLast resumes the most recent thread on startup.
	ResumeLast bool `json:"resumeLast" envconfig:"RESUME_LAST"`
}

// CompressionConfig groups history compression settings.
type CompressionConfig struct {
	// TriggerTokens compresses the thread once its input token count
	// crosses this threshold. 0 disables automatic compression.
	TriggerTokens int64 `json:"triggerTokens" envconfig:"TRIGGER_TOKENS"`
	// KeepRecent is the number of trailing messages handed to the
	// summarizer verbatim.
	KeepRecent int `json:"keepRecent" envconfig:"KEEP_RECENT"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			MaxTokens:   8192,
			Temperature: 0.2,
		},
		Approval: ApprovalConfig{
			Mode: "semi-active",
		},
		Session: SessionConfig{
			MaxSteps: 50,
		},
		Compression: CompressionConfig{
			TriggerTokens: 120000,
			KeepRecent:    10,
		},
	}
}
