package badger

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// KeyFile represents the structure of one key entry in a TOML keys file
// Format:
// [key_name]
// value = "some-value"
// description = "optional description"
type KeyFile struct {
	Value       string `toml:"value"`
	Description string `toml:"description"`
}

// LoadKeysFromFiles loads API keys and settings from TOML files in the
// given directory into the KV store. Every *.toml file in the directory
// is parsed; keys there become {key-name} references resolvable from
// config values.
func (m *Manager) LoadKeysFromFiles(ctx context.Context, dirPath string) error {
	m.logger.Debug().Str("dir", dirPath).Msg("Loading keys from files")

	info, err := os.Stat(dirPath)
	if os.IsNotExist(err) || (err == nil && !info.IsDir()) {
		m.logger.Debug().Str("dir", dirPath).Msg("Keys directory does not exist, skipping")
		return nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		m.logger.Warn().Err(err).Str("dir", dirPath).Msg("Failed to read keys directory")
		return nil // Non-fatal
	}

	loadedCount := 0
	skippedCount := 0
	errorCount := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		loaded, skipped, errors := m.loadKeysFromFile(ctx, filepath.Join(dirPath, entry.Name()))
		loadedCount += loaded
		skippedCount += skipped
		errorCount += errors
	}

	m.logger.Debug().
		Int("loaded", loadedCount).
		Int("skipped", skippedCount).
		Int("errors", errorCount).
		Msg("Finished loading keys from files")

	return nil
}

// loadKeysFromFile loads keys from a single TOML file
func (m *Manager) loadKeysFromFile(ctx context.Context, filePath string) (loaded, skipped, errors int) {
	m.logger.Debug().Str("file", filePath).Msg("Loading keys from file")

	content, err := os.ReadFile(filePath)
	if err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to read keys file")
		return 0, 0, 1
	}

	// Map of section name (key) to KeyFile struct
	var keys map[string]KeyFile
	if err := toml.Unmarshal(content, &keys); err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to parse keys file")
		return 0, 0, 1
	}

	fileName := filepath.Base(filePath)
	for key, entry := range keys {
		if entry.Value == "" {
			m.logger.Warn().Str("file", fileName).Str("key", key).Msg("Skipping key with empty value")
			skipped++
			continue
		}

		description := entry.Description
		if description == "" {
			description = "Loaded from " + fileName
		}

		isNew, err := m.kv.Upsert(ctx, key, entry.Value, description)
		if err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("Failed to store key")
			errors++
			continue
		}

		if isNew {
			m.logger.Debug().Str("key", key).Msg("Loaded new key")
		} else {
			m.logger.Debug().Str("key", key).Msg("Updated existing key")
		}
		loaded++
	}

	return loaded, skipped, errors
}

// LoadEnvFile loads variables from a .env file into the KV store
// Format supported:
//   - KEY=value
//   - KEY="value" or KEY='value' (quotes stripped)
//   - # comments (lines starting with #)
//   - Empty lines are ignored
func (m *Manager) LoadEnvFile(ctx context.Context, filePath string) error {
	m.logger.Debug().Str("file", filePath).Msg("Loading variables from .env file")

	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		m.logger.Debug().Str("file", filePath).Msg(".env file does not exist, skipping")
		return nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to open .env file")
		return nil // Non-fatal
	}
	defer file.Close()

	loadedCount := 0
	skippedCount := 0
	errorCount := 0

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value format
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			m.logger.Warn().
				Str("file", filePath).
				Int("line", lineNum).
				Msg("Invalid line format, expected KEY=value")
			skippedCount++
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Skip empty keys
		if key == "" {
			skippedCount++
			continue
		}

		// Strip surrounding quotes from value
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		// Skip empty values
		if value == "" {
			m.logger.Warn().
				Str("file", filePath).
				Str("key", key).
				Msg("Skipping variable with empty value")
			skippedCount++
			continue
		}

		// Store in KV store
		description := "Loaded from .env file"
		isNew, err := m.kv.Upsert(ctx, key, value, description)
		if err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("Failed to store variable from .env")
			errorCount++
			continue
		}

		if isNew {
			m.logger.Debug().Str("key", key).Msg("Loaded new variable from .env")
		} else {
			m.logger.Debug().Str("key", key).Msg("Updated existing variable from .env")
		}
		loadedCount++
	}

	if err := scanner.Err(); err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Error reading .env file")
	}

	m.logger.Debug().
		Str("file", filePath).
		Int("loaded", loadedCount).
		Int("skipped", skippedCount).
		Int("errors", errorCount).
		Msg("Finished loading variables from .env file")

	return nil
}
