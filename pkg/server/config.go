package server

import "time"

// Config holds server configuration settings.
type Config struct {
	Host    string // Server host address
	Port    int    // Server port
	DataDir string // Database data directory - where SSTable files live

	BackgroundTaskMinGap time.Duration // Minimum gap between roll cycles
	NumWorkerThreads     int           // Worker pool size, 0 selects hardware concurrency
	IndexOffsetBytes     int           // SSTable sparse-index density, 0 selects the default

	ReadTimeout    time.Duration // HTTP read timeout
	WriteTimeout   time.Duration // HTTP write timeout
	IdleTimeout    time.Duration // HTTP idle timeout
	MaxRequestSize int64         // Maximum request body size in bytes
	EnableCORS     bool          // Enable CORS middleware
	AllowedOrigins []string      // CORS allowed origins
	AllowedMethods []string      // CORS allowed methods
	AllowedHeaders []string      // CORS allowed headers
	EnableLogging  bool          // Enable request logging
	LogFormat      string        // Log format (text or json)

	// APIKey, when non-empty, requires every request to carry a
	// matching "Authorization: Bearer <key>" header.
	APIKey string

	// TLS/SSL configuration
	EnableTLS   bool   // Enable TLS/SSL
	TLSCertFile string // Path to TLS certificate file
	TLSKeyFile  string // Path to TLS private key file

	// GraphQL configuration
	EnableGraphQL bool // Enable GraphQL API endpoint
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:                 "localhost",
		Port:                 8080,
		DataDir:              "./data",
		BackgroundTaskMinGap: time.Second,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         30 * time.Second,
		IdleTimeout:          120 * time.Second,
		MaxRequestSize:       10 * 1024 * 1024, // 10MB
		EnableCORS:           true,
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:       []string{"Content-Type", "Authorization", "X-Request-ID"},
		EnableLogging:        true,
		LogFormat:            "text",
		EnableTLS:            false,
		TLSCertFile:          "",
		TLSKeyFile:           "",
		EnableGraphQL:        false,
	}
}
