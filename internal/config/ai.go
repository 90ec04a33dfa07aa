package config

import "os"

// GeminiModels defines which Gemini models to use for different tasks
type GeminiModels struct {
	// Scenario is for race scenario generation (quality matters, host waits
	// behind a fallback anyway)
	Scenario string `json:"scenario"`

	// Grade is for submission grading (needs to be fast)
	Grade string `json:"grade"`

	// Environment is for camera-frame environment checks (latency-sensitive,
	// fired every few seconds during an assessment)
	Environment string `json:"environment"`
}

// AIConfig holds all AI-related configuration
type AIConfig struct {
	APIKey    string       `json:"-"` // Never serialize
	BaseURL   string       `json:"baseUrl"`
	Models    GeminiModels `json:"models"`
	TimeoutMS int          `json:"timeoutMs"`
}

// DefaultAIConfig returns the default AI configuration
func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		BaseURL: "https://generativelanguage.googleapis.com/v1beta/models",
		Models: GeminiModels{
			Scenario:    getEnvOrDefault("GEMINI_MODEL_SCENARIO", "gemini-2.0-flash"),
			Grade:       getEnvOrDefault("GEMINI_MODEL_GRADE", "gemini-2.5-flash-preview-05-20"),
			Environment: getEnvOrDefault("GEMINI_MODEL_ENV", "gemini-2.5-flash-preview-05-20"),
		},
		TimeoutMS: 10000, // 10 second default timeout
	}
}

// IsEnabled returns true if the AI API is configured
func (c *AIConfig) IsEnabled() bool {
	return c.APIKey != ""
}

// ModelEndpoint returns the full endpoint for a given model
func (c *AIConfig) ModelEndpoint(model string) string {
	return c.BaseURL + "/" + model + ":generateContent"
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
