package demochat

import "time"

// Config holds configuration for the demo chat server.
type Config struct {
	// Port is the port on which the demo server listens.
	Port int

	// Suggestions are rendered as quick-reply buttons. Leave empty to force
	// visitors to type.
	Suggestions []string

	// Welcome is the assistant message shown on page load.
	Welcome string

	// ChunkWords is how many words go into one streamed event.
	ChunkWords int

	// ChunkDelay is the pause between streamed events.
	ChunkDelay time.Duration

	// PerMinute and PerHour bound chat requests per client IP.
	PerMinute int
	PerHour   int

	// AllowedOrigins may call the API cross-origin. Same-origin calls are
	// always allowed.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port: 5173,
		Suggestions: []string{
			"What's your tech stack?",
			"Tell me about yourself",
			"Are you open to work?",
			"What projects have you built?",
		},
		Welcome:    "Hey! Ask me anything about my work, skills, or just say hi.",
		ChunkWords: 3,
		ChunkDelay: 400 * time.Millisecond,
		PerMinute:  10,
		PerHour:    50,
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:3000",
		},
	}
}
