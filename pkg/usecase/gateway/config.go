package gateway

import "time"

const (
	defaultMemoryMaxMessages = 16
	defaultMemoryResetAfter  = 30 * time.Minute
	defaultLongTermMaxChars  = 1500
	defaultMaxRounds         = 8
	defaultBackendAttempts   = 3
	defaultRetryInterval     = time.Second
	defaultTurnTimeout       = 5 * time.Minute
)

// AdmissionConfig holds the static admission rules. Empty lists mean
// "no restriction" for their rule.
type AdmissionConfig struct {
	AllowDMs    bool `yaml:"allow_dms"`
	AllowGroups bool `yaml:"allow_groups"`

	DMAllowlistIDs       []string `yaml:"dm_allowlist_ids"`
	DMAllowlistUsernames []string `yaml:"dm_allowlist_usernames"`
	DMUsernamePatterns   []string `yaml:"dm_allowlist_username_patterns"`
	DMRequirePatterns    []string `yaml:"dm_require_patterns"`

	GroupAllowlistIDs    []string `yaml:"group_allowlist_ids"`
	GroupTitlePatterns   []string `yaml:"group_title_patterns"`
	GroupRequirePatterns []string `yaml:"group_require_patterns"`

	ChannelIDs   []string `yaml:"channel_ids"`
	TriggerWords []string `yaml:"trigger_words"`
}

// MemoryConfig holds the short-term and long-term memory policy knobs.
type MemoryConfig struct {
	// MaxMessages triggers a short-term trim when the buffer exceeds it.
	MaxMessages int `yaml:"max_messages"`
	// ResetToMessages is the trim target, clamped to [1, MaxMessages].
	// Zero means trim down to MaxMessages.
	ResetToMessages int `yaml:"reset_to_messages"`
	// ResetAfter is the idle period after which the short-term transcript is
	// rolled over into long-term memory.
	ResetAfter time.Duration `yaml:"reset_after"`
	// LongTermMaxChars caps the persisted long-term summary.
	LongTermMaxChars int `yaml:"long_term_max_chars"`
	// SummaryPrompt overrides the built-in summarization instruction.
	SummaryPrompt string `yaml:"summary_prompt"`
}

// LoopConfig bounds the tool-calling loop.
type LoopConfig struct {
	// MaxRounds is the backend-call budget per turn.
	MaxRounds int `yaml:"max_rounds"`
	// BackendAttempts is the total number of tries per backend call.
	BackendAttempts int `yaml:"backend_attempts"`
	// RetryInterval is the base backoff between attempts, multiplied by the
	// attempt number.
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Config is the resolved gateway configuration.
type Config struct {
	SystemPrompt string          `yaml:"system_prompt"`
	Admission    AdmissionConfig `yaml:"admission"`
	Memory       MemoryConfig    `yaml:"memory"`
	Loop         LoopConfig      `yaml:"loop"`

	// PolicyDir optionally points at a directory of Rego admission policies.
	PolicyDir string `yaml:"policy_dir"`

	// TurnTimeout is the wall-clock bound for one turn, queue wait included.
	TurnTimeout time.Duration `yaml:"turn_timeout"`
}

// Normalize fills defaults and clamps values into their valid ranges.
func (c *Config) Normalize() {
	if c.Memory.MaxMessages < 1 {
		c.Memory.MaxMessages = defaultMemoryMaxMessages
	}
	if c.Memory.ResetToMessages < 1 || c.Memory.ResetToMessages > c.Memory.MaxMessages {
		c.Memory.ResetToMessages = c.Memory.MaxMessages
	}
	if c.Memory.ResetAfter <= 0 {
		c.Memory.ResetAfter = defaultMemoryResetAfter
	}
	if c.Memory.LongTermMaxChars <= 0 {
		c.Memory.LongTermMaxChars = defaultLongTermMaxChars
	}

	if c.Loop.MaxRounds < 1 {
		c.Loop.MaxRounds = defaultMaxRounds
	}
	if c.Loop.BackendAttempts < 1 {
		c.Loop.BackendAttempts = defaultBackendAttempts
	}
	if c.Loop.RetryInterval <= 0 {
		c.Loop.RetryInterval = defaultRetryInterval
	}

	if c.TurnTimeout <= 0 {
		c.TurnTimeout = defaultTurnTimeout
	}
}
