package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadDotEnv reads a .env file and exports its pairs into the process
// environment. Variables already set in the environment win. Lines may
// use an optional "export " prefix, and unquoted values may carry a
// trailing "# comment".
func LoadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err // a missing file is fine, caller can ignore
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		} else if i := strings.Index(value, " #"); i >= 0 {
			value = strings.TrimSpace(value[:i])
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}
