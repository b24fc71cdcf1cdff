package config

import (
	"fmt"
	"strings"
)

// Validation bounds.
const (
	minTemperature = 0.0
	maxTemperature = 2.0

	minMaxTokens = 1
	maxMaxTokens = 65536

	minTopK = 1
	maxTopK = 100

	minPort = 1
	maxPort = 65535
)

// validSSLModes are the PostgreSQL sslmode values we accept.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration for serving. It returns the first
// violation found, wrapped around the matching sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}

	if c.Temperature < minTemperature || c.Temperature > maxTemperature {
		return fmt.Errorf("%w: %.2f (expected %.1f-%.1f)",
			ErrInvalidTemperature, c.Temperature, minTemperature, maxTemperature)
	}

	if c.MaxTokens < minMaxTokens || c.MaxTokens > maxMaxTokens {
		return fmt.Errorf("%w: %d (expected %d-%d)",
			ErrInvalidMaxTokens, c.MaxTokens, minMaxTokens, maxMaxTokens)
	}

	if c.TopK < minTopK || c.TopK > maxTopK {
		return fmt.Errorf("%w: %d (expected %d-%d)",
			ErrInvalidTopK, c.TopK, minTopK, maxTopK)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < minPort || c.PostgresPort > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if !validNeo4jURI(c.Neo4jURI) {
		return fmt.Errorf("%w: %q", ErrInvalidNeo4jURI, c.Neo4jURI)
	}

	return nil
}

// validNeo4jURI accepts the schemes the Neo4j Go driver understands.
func validNeo4jURI(uri string) bool {
	for _, scheme := range []string{"bolt://", "bolt+s://", "bolt+ssc://", "neo4j://", "neo4j+s://", "neo4j+ssc://"} {
		if strings.HasPrefix(uri, scheme) && len(uri) > len(scheme) {
			return true
		}
	}
	return false
}
