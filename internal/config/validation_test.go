package config

import (
	"errors"
	"testing"
)

// validConfig returns a config that passes Validate. Tests mutate one
// field at a time.
func validConfig() *Config {
	return &Config{
		Provider:        ProviderGemini,
		ModelName:       "gemini-2.5-flash",
		Temperature:     0.1,
		MaxTokens:       500,
		TopK:            5,
		EmbedderModel:   DefaultEmbedderModel,
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresUser:    "ragline",
		PostgresDBName:  "ragline",
		PostgresSSLMode: "disable",
		Neo4jURI:        "bolt://localhost:7687",
		Neo4jUser:       "neo4j",
		Neo4jDatabase:   "neo4j",
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() on valid config: %v", err)
	}
}

func TestValidate_Nil(t *testing.T) {
	var c *Config
	if err := c.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("error = %v, want ErrConfigNil", err)
	}
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		sentinel error
	}{
		{"unknown provider", func(c *Config) { c.Provider = "openai" }, ErrInvalidProvider},
		{"empty model name", func(c *Config) { c.ModelName = "  " }, ErrInvalidModelName},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"max tokens zero", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"max tokens huge", func(c *Config) { c.MaxTokens = 1 << 20 }, ErrInvalidMaxTokens},
		{"top k zero", func(c *Config) { c.TopK = 0 }, ErrInvalidTopK},
		{"top k huge", func(c *Config) { c.TopK = 1000 }, ErrInvalidTopK},
		{"empty embedder", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"bad postgres port", func(c *Config) { c.PostgresPort = 0 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"bad ssl mode", func(c *Config) { c.PostgresSSLMode = "maybe" }, ErrInvalidPostgresSSLMode},
		{"bad neo4j scheme", func(c *Config) { c.Neo4jURI = "http://localhost:7687" }, ErrInvalidNeo4jURI},
		{"empty neo4j uri", func(c *Config) { c.Neo4jURI = "" }, ErrInvalidNeo4jURI},
		{"scheme only neo4j uri", func(c *Config) { c.Neo4jURI = "bolt://" }, ErrInvalidNeo4jURI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, tt.sentinel) {
				t.Errorf("Validate() = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestValidNeo4jURI(t *testing.T) {
	valid := []string{
		"bolt://localhost:7687",
		"bolt+s://db.example.com",
		"neo4j://localhost",
		"neo4j+ssc://cluster.example.com:7687",
	}
	for _, uri := range valid {
		if !validNeo4jURI(uri) {
			t.Errorf("validNeo4jURI(%q) = false, want true", uri)
		}
	}

	invalid := []string{"", "localhost:7687", "postgres://x", "neo4j+s://"}
	for _, uri := range invalid {
		if validNeo4jURI(uri) {
			t.Errorf("validNeo4jURI(%q) = true, want false", uri)
		}
	}
}
