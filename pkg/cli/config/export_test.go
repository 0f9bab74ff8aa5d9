package config

import "time"

// NewSettingsForTest creates a Settings config for testing purposes
func NewSettingsForTest(path string) *Settings {
	return &Settings{path: path}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, sqlitePath string) *Repository {
	return &Repository{backend: backend, sqlitePath: sqlitePath}
}

// NewBackendForTest creates a Backend config for testing purposes
func NewBackendForTest(name, ollamaHost, openaiAPIKey, embeddingModel string) *Backend {
	return &Backend{
		name:              name,
		ollamaHost:        ollamaHost,
		openaiAPIKey:      openaiAPIKey,
		embeddingModel:    embeddingModel,
		generationTimeout: time.Minute,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}
