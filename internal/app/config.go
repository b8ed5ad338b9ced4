package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Checkpoint is one timed screenshot after the interaction. Delay is measured
// from the previous checkpoint, not from the interaction.
type Checkpoint struct {
	Name  string        `yaml:"name"`
	Delay time.Duration `yaml:"delay"`
	Path  string        `yaml:"path"`
}

// Selectors are the CSS hooks the probe uses to read and drive the chat page.
type Selectors struct {
	Message    string `yaml:"message"`
	Cursor     string `yaml:"cursor"`
	Input      string `yaml:"input"`
	SendButton string `yaml:"send_button"`
}

// Config holds every knob of a probe run. DefaultConfig reproduces the fixed
// behaviour of the probe; a YAML file or flags only override it.
type Config struct {
	// TargetURL is the chat page to open.
	TargetURL string `yaml:"target_url"`

	// NetworkMarker selects which responses are recorded.
	NetworkMarker string `yaml:"network_marker"`

	// SuggestionText is matched against button text to find a suggestion.
	SuggestionText string `yaml:"suggestion_text"`

	// ManualMessage is typed when no suggestion is offered.
	ManualMessage string `yaml:"manual_message"`

	Selectors Selectors `yaml:"selectors"`

	// InitialDelay is waited after network idle before the first screenshot.
	InitialDelay      time.Duration `yaml:"initial_delay"`
	InitialScreenshot string        `yaml:"initial_screenshot"`
	Schedule          []Checkpoint  `yaml:"schedule"`

	InitialPreview int `yaml:"initial_preview"`
	FinalPreview   int `yaml:"final_preview"`
	ConsoleLimit   int `yaml:"console_limit"`

	Headless bool `yaml:"headless"`

	// IdleAfter is how long the network must stay quiet to count as idle.
	IdleAfter         time.Duration `yaml:"idle_after"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `yaml:"action_timeout"`

	// DBPath enables the run history when non-empty.
	DBPath string `yaml:"db_path"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration of the stock probe run.
func DefaultConfig() *Config {
	return &Config{
		TargetURL:      "http://localhost:5173/chat",
		NetworkMarker:  "chatbot-api",
		SuggestionText: "tech stack",
		ManualMessage:  "Hi, what do you do?",
		Selectors: Selectors{
			Message:    "[class*='whitespace-pre-wrap']",
			Cursor:     "[class*='animate-pulse']",
			Input:      "input[type='text']",
			SendButton: "button[aria-label='Send']",
		},
		InitialDelay:      time.Second,
		InitialScreenshot: "/tmp/chat_initial.png",
		Schedule: []Checkpoint{
			{Name: "1s", Delay: 1 * time.Second, Path: "/tmp/chat_1s.png"},
			{Name: "3s", Delay: 2 * time.Second, Path: "/tmp/chat_3s.png"},
			{Name: "6s", Delay: 3 * time.Second, Path: "/tmp/chat_6s.png"},
			{Name: "10s", Delay: 4 * time.Second, Path: "/tmp/chat_10s.png"},
		},
		InitialPreview:    100,
		FinalPreview:      200,
		ConsoleLimit:      30,
		Headless:          true,
		IdleAfter:         500 * time.Millisecond,
		NavigationTimeout: 30 * time.Second,
		ActionTimeout:     30 * time.Second,
		LogLevel:          "info",
	}
}

var (
	ErrNoTarget      = errors.New("config: target url is empty")
	ErrEmptySchedule = errors.New("config: capture schedule is empty")
)

// LoadConfig overlays the YAML file at path on DefaultConfig. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that would make a run meaningless.
func (c *Config) Validate() error {
	if c.TargetURL == "" {
		return ErrNoTarget
	}
	if len(c.Schedule) == 0 {
		return ErrEmptySchedule
	}
	for i, cp := range c.Schedule {
		if cp.Delay <= 0 {
			return fmt.Errorf("config: checkpoint %d (%s) has non-positive delay %s", i, cp.Name, cp.Delay)
		}
		if cp.Path == "" {
			return fmt.Errorf("config: checkpoint %d (%s) has no screenshot path", i, cp.Name)
		}
	}
	if c.InitialScreenshot == "" {
		return errors.New("config: initial screenshot path is empty")
	}
	if c.ConsoleLimit < 0 {
		return fmt.Errorf("config: console limit %d is negative", c.ConsoleLimit)
	}
	return nil
}
