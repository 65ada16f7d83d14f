package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const defaultEnvFile = ".env"

var (
	envFileFlag string
	flagOnce    sync.Once
)

// New populates T from the environment using the given envconfig prefix.
// An env file given via the -env flag (or ./.env if present) is exported
// into the process environment first, so explicit environment variables
// always win.
func New[T any](prefix string) (*T, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	conf := new(T)
	if err := envconfig.Process(prefix, conf); err != nil {
		return nil, fmt.Errorf("config: process prefix %q: %w", prefix, err)
	}
	return conf, nil
}

// MustNew is New, panicking on failure. Meant for wiring in main.
func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

func loadEnvFile() error {
	target := envFilePath()
	required := target != ""
	if !required {
		target = defaultEnvFile
	}

	info, err := os.Stat(target)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: env file %s: %w", target, err)
	}
	if info.IsDir() {
		if required {
			return fmt.Errorf("config: env file %s is a directory", target)
		}
		return nil
	}

	return exportEnvFile(target)
}

func envFilePath() string {
	flagOnce.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFileFlag, "env", "", "path to an env file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})
	return strings.TrimSpace(envFileFlag)
}

func exportEnvFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read env file %s: %w", path, err)
	}

	for key, value := range v.AllSettings() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(value)); err != nil {
			return fmt.Errorf("config: export %s: %w", name, err)
		}
	}
	return nil
}
