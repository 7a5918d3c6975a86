package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config encapsulates all configuration values for podship.
type Config struct {
	DataRoot            string  `toml:"data_root"`
	DatabaseURL         string  `toml:"database_url"`
	LogDir              string  `toml:"log_dir"`
	LogFormat           string  `toml:"log_format"`
	LogLevel            string  `toml:"log_level"`
	PipelineVersion     int     `toml:"pipeline_version"`
	MaxEpisodeCostUSD   float64 `toml:"max_episode_cost_usd"`
	MaxRetries          int     `toml:"max_retries"`
	DryRun              bool    `toml:"dry_run"`
	ReviewAutoApprove   bool    `toml:"review_auto_approve"`
	NtfyTopic           string  `toml:"ntfy_topic"`
	NtfyRequestTimeout  int     `toml:"ntfy_request_timeout"`
	LLMModelID          string  `toml:"llm_model_id"`
	LLMAPIKey           string  `toml:"llm_api_key"`
	LLMBaseURL          string  `toml:"llm_base_url"`
	TTSModelID          string  `toml:"tts_model_id"`
	TTSAPIKey           string  `toml:"tts_api_key"`
	TTSBaseURL          string  `toml:"tts_base_url"`
	ImageGenModelID     string  `toml:"imagegen_model_id"`
	ImageGenAPIKey      string  `toml:"imagegen_api_key"`
	ImageGenBaseURL     string  `toml:"imagegen_base_url"`
	TranscribeModelID   string  `toml:"transcribe_model_id"`
	TranscribeAPIKey    string  `toml:"transcribe_api_key"`
	TranscribeBaseURL   string  `toml:"transcribe_base_url"`
	UploadAPIKey        string  `toml:"upload_api_key"`
	UploadChannelID     string  `toml:"upload_channel_id"`
	UploadBaseURL       string  `toml:"upload_base_url"`
	FeedPollInterval    int     `toml:"feed_poll_interval"`
	StageTimeoutSeconds int     `toml:"stage_timeout_seconds"`

	NotifyStageFailed        bool `toml:"notify_stage_failed"`
	NotifyReviewPending      bool `toml:"notify_review_pending"`
	NotifyCostCapExceeded    bool `toml:"notify_cost_cap_exceeded"`
	NotifyEpisodeCompleted   bool `toml:"notify_episode_completed"`
	NotifyDedupWindowSeconds int  `toml:"notify_dedup_window_seconds"`
}

const (
	defaultDataRoot            = "~/.local/share/podship/data"
	defaultLogDir              = "~/.local/share/podship/logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultPipelineVersion     = 2
	defaultMaxEpisodeCostUSD   = 5.0
	defaultMaxRetries          = 3
	defaultNtfyRequestTimeout  = 10
	defaultFeedPollInterval    = 300
	defaultStageTimeoutSeconds = 1800
	defaultNotifyDedupWindow   = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		DataRoot:            defaultDataRoot,
		LogDir:              defaultLogDir,
		LogFormat:           defaultLogFormat,
		LogLevel:            defaultLogLevel,
		PipelineVersion:     defaultPipelineVersion,
		MaxEpisodeCostUSD:   defaultMaxEpisodeCostUSD,
		MaxRetries:          defaultMaxRetries,
		NtfyRequestTimeout:  defaultNtfyRequestTimeout,
		FeedPollInterval:    defaultFeedPollInterval,
		StageTimeoutSeconds: defaultStageTimeoutSeconds,

		NotifyStageFailed:        true,
		NotifyReviewPending:      true,
		NotifyCostCapExceeded:    true,
		NotifyEpisodeCompleted:   true,
		NotifyDedupWindowSeconds: defaultNotifyDedupWindow,
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/podship/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/podship/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podship.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.DataRoot, err = expandPath(c.DataRoot); err != nil {
		return fmt.Errorf("data_root: %w", err)
	}
	if strings.TrimSpace(c.LogDir) == "" {
		c.LogDir = defaultLogDir
	}
	if c.LogDir, err = expandPath(c.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case "", "console":
		c.LogFormat = "console"
	case "json":
	default:
		return fmt.Errorf("log_format: unsupported value %q", c.LogFormat)
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	if c.PipelineVersion == 0 {
		c.PipelineVersion = defaultPipelineVersion
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.NtfyRequestTimeout <= 0 {
		c.NtfyRequestTimeout = defaultNtfyRequestTimeout
	}
	if c.FeedPollInterval <= 0 {
		c.FeedPollInterval = defaultFeedPollInterval
	}
	if c.StageTimeoutSeconds <= 0 {
		c.StageTimeoutSeconds = defaultStageTimeoutSeconds
	}
	if c.NotifyDedupWindowSeconds <= 0 {
		c.NotifyDedupWindowSeconds = defaultNotifyDedupWindow
	}

	if c.LLMAPIKey == "" {
		if value, ok := os.LookupEnv("PODSHIP_LLM_API_KEY"); ok {
			c.LLMAPIKey = value
		}
	}
	if c.TTSAPIKey == "" {
		if value, ok := os.LookupEnv("PODSHIP_TTS_API_KEY"); ok {
			c.TTSAPIKey = value
		}
	}
	if c.ImageGenAPIKey == "" {
		if value, ok := os.LookupEnv("PODSHIP_IMAGEGEN_API_KEY"); ok {
			c.ImageGenAPIKey = value
		}
	}
	if c.TranscribeAPIKey == "" {
		if value, ok := os.LookupEnv("PODSHIP_TRANSCRIBE_API_KEY"); ok {
			c.TranscribeAPIKey = value
		}
	}
	if c.UploadAPIKey == "" {
		if value, ok := os.LookupEnv("PODSHIP_UPLOAD_API_KEY"); ok {
			c.UploadAPIKey = value
		}
	}

	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return errors.New("data_root must be set")
	}
	if c.PipelineVersion != 1 && c.PipelineVersion != 2 {
		return errors.New("pipeline_version must be 1 or 2")
	}
	if c.MaxEpisodeCostUSD <= 0 {
		return errors.New("max_episode_cost_usd must be positive")
	}
	if c.MaxRetries <= 0 {
		return errors.New("max_retries must be positive")
	}
	if c.NtfyRequestTimeout <= 0 {
		return errors.New("ntfy_request_timeout must be positive")
	}
	if c.FeedPollInterval <= 0 {
		return errors.New("feed_poll_interval must be positive")
	}
	if c.StageTimeoutSeconds <= 0 {
		return errors.New("stage_timeout_seconds must be positive")
	}
	return nil
}

// EnsureDirectories creates the directories podship needs at startup: the
// data root, its locks subdirectory, the outputs tree root, and the log
// directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataRoot, c.LogDir, c.LocksDir(), c.OutputsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite database file path when database_url
// names one directly ("sqlite:" prefix or a bare filesystem path). Returns
// "" when database_url is unset, signaling callers to fall back to a
// data_root-relative default.
func (c *Config) DatabasePath() string {
	url := strings.TrimSpace(c.DatabaseURL)
	if url == "" {
		return ""
	}
	if strings.HasPrefix(url, "sqlite:") {
		return strings.TrimPrefix(url, "sqlite:")
	}
	return url
}

// LocksDir returns the directory holding per-episode advisory lock files.
func (c *Config) LocksDir() string {
	return filepath.Join(c.DataRoot, "locks")
}

// OutputsDir returns the root of the per-episode artifact tree.
func (c *Config) OutputsDir() string {
	return filepath.Join(c.DataRoot, "outputs")
}

// PromptsDir returns the directory containing prompt template files.
func (c *Config) PromptsDir() string {
	return filepath.Join(c.DataRoot, "prompts")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := `# podship Configuration
# ======================
# Edit the settings below, then customize optional settings when needed.

# ============================================================================
# CORE
# ============================================================================

data_root = "~/.local/share/podship/data"      # Root of the artifact tree and sqlite database
database_url = ""                              # Optional: "sqlite:/path/to/podship.db" override
log_dir = "~/.local/share/podship/logs"        # Log output directory
log_format = "console"                        # "console" or "json"
log_level = "info"                            # debug, info, warn, error

# ============================================================================
# PIPELINE
# ============================================================================

pipeline_version = 2                           # 1 = legacy (no gates), 2 = gated v2 plan
max_episode_cost_usd = 5.0                     # Per-episode cost cap before COST_LIMIT
max_retries = 3                                # Advisory retry count for stage adapters
dry_run = false                                 # Skip external calls, output writes and provenance records
review_auto_approve = false                    # Enable the punctuation-only auto-approve classifier

# ============================================================================
# EXTERNAL SERVICES
# ============================================================================

llm_model_id = ""                              # Model id for correct/translate/adapt/chapterize stages
llm_api_key = ""                                # or set PODSHIP_LLM_API_KEY
llm_base_url = ""                               # Override for self-hosted/proxy endpoints
tts_model_id = ""
tts_api_key = ""                                # or set PODSHIP_TTS_API_KEY
tts_base_url = ""
imagegen_model_id = ""
imagegen_api_key = ""                           # or set PODSHIP_IMAGEGEN_API_KEY
imagegen_base_url = ""
transcribe_model_id = ""
transcribe_api_key = ""                         # or set PODSHIP_TRANSCRIBE_API_KEY
transcribe_base_url = ""
upload_api_key = ""                             # or set PODSHIP_UPLOAD_API_KEY
upload_channel_id = ""
upload_base_url = ""

# ============================================================================
# NOTIFICATIONS & FEED POLLING
# ============================================================================

ntfy_topic = ""                                 # ntfy topic for pipeline milestone notifications (optional)
ntfy_request_timeout = 10                       # seconds
feed_poll_interval = 300                        # seconds between channel feed polls
stage_timeout_seconds = 1800                    # per-stage execution timeout
`

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
