package config

import "time"

// Default values for configuration.
const (
	// API defaults
	DefaultBaseURL       = "http://localhost:5000"
	DefaultSocketPath    = "/socket"
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 5
	DefaultRatePerSecond = 10.0
	DefaultBurst         = 5

	// Session defaults
	DefaultProfileName      = "default"
	DefaultSessionRetention = 30 * 24 * time.Hour

	// Chat defaults
	DefaultSlowThreshold = 500 * time.Millisecond
	DefaultTypingTTL     = 3 * time.Second
	DefaultReadDebounce  = 2 * time.Second
	DefaultPageLimit     = 20

	// Paging defaults for the post feed and notifications
	DefaultFeedPageLimit          = 10
	DefaultNotificationsPageLimit = 20

	// Search defaults
	DefaultSearchDebounce = 500 * time.Millisecond

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)
