// Package config loads DCFS's required credentials from the environment
// and its optional operational settings from a YAML file, the same split
// cih-y2k-blobstash's pkg/config draws between secrets/required values and
// a loaded Config struct.
package config

import (
	"fmt"
	"io/ioutil"
	"os"

	log "github.com/inconshreveable/log15"
	"gopkg.in/yaml.v2"

	"a4.io/dcfs/internal/logging"
)

const (
	maxTokenLen   = 100
	maxGuildIDLen = 48
)

// Settings holds the optional, non-secret knobs a YAML file may override.
// None of these are required; the zero value is a usable configuration.
type Settings struct {
	LogLevel  string `yaml:"log_level"`
	DebugAddr string `yaml:"debug_addr"`
}

// Load reads Settings from path. An empty path (or a missing file at a
// non-empty path that was never created) is not an error: Settings{} is
// returned, matching blobstash's config.New behavior of tolerating an
// absent file by returning zero values rather than failing the mount.
func Load(path string) (*Settings, error) {
	if path == "" {
		return &Settings{}, nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	s := &Settings{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return s, nil
}

// LogLvl resolves the configured log level, defaulting to info.
func (s *Settings) LogLvl() log.Lvl {
	return logging.LvlFromString(s.LogLevel)
}

// Credentials holds the two mandatory environment-sourced values.
// spec.md §6: if either is unset the process must exit with code 1.
type Credentials struct {
	Token   string
	GuildID string
}

// LoadCredentials reads DCFS_TOKEN and DCFS_GUILD_ID from the environment
// and validates their length bounds (spec.md §6).
func LoadCredentials() (*Credentials, error) {
	token := os.Getenv("DCFS_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DCFS_TOKEN is not set")
	}
	if len(token) > maxTokenLen {
		return nil, fmt.Errorf("DCFS_TOKEN exceeds %d bytes", maxTokenLen)
	}

	guildID := os.Getenv("DCFS_GUILD_ID")
	if guildID == "" {
		return nil, fmt.Errorf("DCFS_GUILD_ID is not set")
	}
	if len(guildID) > maxGuildIDLen {
		return nil, fmt.Errorf("DCFS_GUILD_ID exceeds %d bytes", maxGuildIDLen)
	}

	return &Credentials{Token: token, GuildID: guildID}, nil
}
