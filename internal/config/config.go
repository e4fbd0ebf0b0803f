// Package config loads checkflow's runtime configuration: the UI/verbosity/
// automation-whitelist settings spec.md's BaseConfig carries, plus the flat
// key/value table used to resolve `%{key}%` placeholders in task
// descriptions at graph-compile time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/viper"
)

// placeholderRe matches a `%{key}%` reference in a task description.
var placeholderRe = regexp.MustCompile(`%\{([^{}]+)\}%`)

// Config holds everything a run needs besides the task file itself.
type Config struct {
	// UI selects the interactive sink: "console" or "web".
	UI string `mapstructure:"ui"`
	// Verbose makes the console sink print routine status updates too, not
	// only WAITING_FOR_USER statuses, problems and prompts.
	Verbose bool `mapstructure:"verbose"`
	// NoRun loads and validates the graph, then exits without running it.
	NoRun bool `mapstructure:"no_run"`
	// AutoTasks whitelists task names eligible for automation. A nil/empty
	// slice means every task with a bound implementation may run
	// automatically. A slice containing exactly "none" disables automation
	// entirely; any task not named here is forced to its manual fallback
	// even if a function is bound to it.
	AutoTasks []string `mapstructure:"auto_tasks"`
	// Values is the flat key/value table `%{key}%` placeholders resolve
	// against. It is filled from the config file's nested "values" section
	// by flattenValues, not by viper's Unmarshal.
	Values map[string]string `mapstructure:"-"`
}

// AutoAllowed reports whether taskName may run automatically under this
// configuration's --auto whitelist.
func (c *Config) AutoAllowed(taskName string) bool {
	if len(c.AutoTasks) == 0 {
		return true
	}
	for _, n := range c.AutoTasks {
		if n == "none" {
			return false
		}
		if n == taskName {
			return true
		}
	}
	return false
}

// Resolve replaces every `%{key}%` placeholder in text with its value from
// Values. An unresolved placeholder (no matching key) is an error, matching
// the original's "contains an unknown placeholder" failure.
func (c *Config) Resolve(text string) (string, error) {
	var firstErr error
	result := placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}
		key := placeholderRe.FindStringSubmatch(match)[1]
		value, ok := c.Values[key]
		if !ok {
			firstErr = fmt.Errorf("text %q contains an unknown placeholder %q", text, key)
			return match
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

var (
	getEnv      = os.Getenv
	userHomeDir = os.UserHomeDir
)

// GlobalConfigPath resolves the global config file path using XDG
// conventions: $XDG_CONFIG_HOME/checkflow/config.yaml, falling back to
// ~/.config/checkflow/config.yaml.
func GlobalConfigPath() (string, error) {
	if xdgHome := getEnv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "checkflow", "config.yaml"), nil
	}

	homeDir, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}

	return filepath.Join(homeDir, ".config", "checkflow", "config.yaml"), nil
}

// LoadConfigWithFile loads configuration from a specific file if provided.
// Otherwise it uses LoadConfig on the working directory when
// checkflow.yaml exists there, and the global config path when it does not.
func LoadConfigWithFile(workDir, configFile string) (*Config, error) {
	if configFile != "" {
		return LoadConfigFromPath(configFile)
	}

	localPath := filepath.Join(workDir, DefaultConfigName+".yaml")
	if _, err := os.Stat(localPath); err == nil {
		return LoadConfig(workDir)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	globalPath, err := GlobalConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadConfigFromPath(globalPath)
}

// LoadConfig loads configuration from checkflow.yaml in the given
// directory. If no config file exists, sensible defaults are returned.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(DefaultConfigName)
	v.SetConfigType(DefaultConfigType)
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadConfigFromPath loads configuration from a specific file path.
func LoadConfigFromPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return unmarshal(v)
		}
		return nil, err
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Values = flattenValues(v.GetStringMap("values"), "")
	return cfg, nil
}

// flattenValues turns viper's nested "values" section into the flat
// dotted-key table placeholders resolve against (`%{slides.message_notes}%`
// maps to values.slides.message_notes in the config file).
func flattenValues(raw map[string]any, prefix string) map[string]string {
	out := make(map[string]string)
	for k, v := range raw {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			for fk, fv := range flattenValues(val, key) {
				out[fk] = fv
			}
		default:
			out[key] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

// setDefaults sets all default values for configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("ui", DefaultUI)
	v.SetDefault("verbose", false)
	v.SetDefault("no_run", false)
	v.SetDefault("auto_tasks", []string{})
	v.SetDefault("values", map[string]any{})
}

// validUIs lists the interactive sinks the --ui flag accepts.
var validUIs = map[string]bool{"console": true, "web": true}

// ValidateUI returns an error if ui names anything other than a supported
// interactive sink.
func ValidateUI(ui string) error {
	if !validUIs[ui] {
		return fmt.Errorf("unsupported --ui value %q (must be one of: console, web)", ui)
	}
	return nil
}
