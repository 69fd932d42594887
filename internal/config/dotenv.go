package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadDotEnv seeds the process environment from a .env file so local runs
// can set PLATFORM_CLIENT_SECRET, ADMIN_KEY_HASH and friends without
// exporting them by hand. Variables already present in the environment win
// over the file. The parser stays deliberately small — KEY=VALUE lines,
// # comments, optional surrounding quotes — so the package carries no
// extra dependency for it.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err // missing file is fine in production, caller decides
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	return sc.Err()
}
