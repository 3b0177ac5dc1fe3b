package config

import (
	_ "embed"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	EventLogName      = "events.log"
)

const (
	ExitModeBuiltin    = "builtin"
	ExitModeSpawnFirst = "spawn-first"

	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

type Configuration struct {
	configFs afero.Fs

	Prompt       string `json:"prompt" validate:"required"`
	ExitMode     string `json:"exit_mode" validate:"oneof=builtin spawn-first"`
	HistoryFile  string `json:"history_file" validate:"omitempty,excludesall=/"`
	HistoryLimit int    `json:"history_limit" validate:"gte=0"`
	Color        string `json:"color" validate:"oneof=always auto never"`
	EventLog     bool   `json:"event_log"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		// Nothing is written for configurations that weren't loaded from disk.
		c.configFs = afero.NewMemMapFs()
	}
	return c.configFs
}

// HistoryPath returns the path to the readline history file, or an empty
// string if history is disabled or the configuration isn't backed by a
// directory on disk.
func (c *Configuration) HistoryPath() string {
	if c.HistoryFile == "" {
		return ""
	}
	bp, ok := c.fs().(*afero.BasePathFs)
	if !ok {
		return ""
	}
	path, err := bp.RealPath(c.HistoryFile)
	if err != nil {
		return ""
	}
	return path
}

// OpenEventLog opens the event log in an append only state.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	return c.fs().OpenFile(EventLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ReadEventLog opens the event log for reading.
func (c *Configuration) ReadEventLog() (afero.File, error) {
	return c.fs().OpenFile(EventLogName, os.O_RDONLY, 0600)
}

// Default returns the built-in configuration. It isn't backed by a directory
// so history and the event log are kept in memory.
func Default() *Configuration {
	return defaultConfig()
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
