package planner

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/recon-go/domain/config"
)

// APIKeyEnv is the environment variable consulted last for the API key.
const APIKeyEnv = "OPENAI_API_KEY"

// ResolveAPIKey returns the key from the config, then the key file, then
// the environment. The result is validated.
func ResolveAPIKey(c config.LLMConfig) (string, error) {
	key := strings.TrimSpace(c.APIKey)
	if key == "" && c.APIKeyFile != "" {
		fromFile, err := ReadKeyFile(c.APIKeyFile)
		if err != nil {
			return "", err
		}
		key = fromFile
	}
	if key == "" {
		key = strings.TrimSpace(os.Getenv(APIKeyEnv))
	}
	if err := config.ValidateAPIKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// ReadKeyFile reads the first non-comment line of path. Both KEY=value and a
// bare key are accepted; surrounding quotes are stripped.
func ReadKeyFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", config.ErrMissingAPIKey, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		if _, value, ok := strings.Cut(line, "="); ok {
			line = strings.TrimSpace(value)
		}
		return strings.Trim(line, `"'`), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	return "", nil
}
