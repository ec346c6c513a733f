// Package secrets resolves bot credentials from the environment or from
// mounted secret files, so passwords never have to live in config.yaml.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxFileSize caps secret file reads. Credentials are short strings; anything
// larger is a misconfigured path.
const maxFileSize = 64 * 1024

// Expand resolves ${VAR} and ${VAR:-default} references in s against the
// environment. A reference without a fallback must be set; otherwise the
// returned error names the missing variables.
func Expand(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		value := os.Getenv(name)
		if value == "" {
			if hasFallback {
				return fallback
			}
			missing = append(missing, name)
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// ReadFile reads a secret from path, typically a Docker or Kubernetes
// mounted secret. Trailing newlines are trimmed; an empty file is an error.
// Group- or world-readable files trigger a warning on stderr.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("secret file path is empty")
	}

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret file not found: %s", cleanPath)
		}
		return "", fmt.Errorf("stat secret file %s: %w", cleanPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", cleanPath)
	}
	if info.Size() > maxFileSize {
		return "", fmt.Errorf("secret file too large (max %d bytes): %s", maxFileSize, cleanPath)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: secret file %s is readable by group/other (perms %04o)\n", cleanPath, perm)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", fmt.Errorf("read secret file %s: %w", cleanPath, err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fmt.Errorf("secret file is empty: %s", cleanPath)
	}
	return secret, nil
}

// Resolve returns the credential from the first configured source: the file
// at filePath when set, otherwise value after environment expansion. Both
// sources empty resolves to the empty string, which callers treat as "not
// configured".
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		secret, err := ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read secret from file: %w", err)
		}
		return secret, nil
	}
	if value != "" {
		return Expand(value)
	}
	return "", nil
}

// MustResolve is Resolve for credentials that cannot be empty; fieldName
// names the credential in the error.
func MustResolve(fieldName, filePath, value string) (string, error) {
	secret, err := Resolve(filePath, value)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", fmt.Errorf("%s is required but not provided", fieldName)
	}
	return secret, nil
}
