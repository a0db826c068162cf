/*
 * Copyright 2024-2025 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rabbitstack/irpmon/pkg/util/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	configFile = "config-file"
)

// Config stores configuration options for fine-tuning the behaviour of the IRP monitor client.
type Config struct {
	// Monitor describes how the client reaches the monitor and which drivers are hooked on startup.
	Monitor MonitorConfig `json:"monitor" yaml:"monitor"`
	// Queue contains the event queue consumer options.
	Queue QueueConfig `json:"queue" yaml:"queue"`
	// Server stores the options of the socket server exposing the emulated monitor.
	Server ServerConfig `json:"server" yaml:"server"`
	// Log contains log-specific configuration options
	Log log.Config `json:"logging" yaml:"logging"`

	flags *pflag.FlagSet
	viper *viper.Viper
	opts  *Options
}

// Options determines which config flags are toggled depending on the command type.
type Options struct {
	serve    bool
	validate bool
}

// Option is the type alias for the config option.
type Option func(*Options)

// WithServe determines the serve command is executed.
func WithServe() Option {
	return func(o *Options) {
		o.serve = true
	}
}

// WithValidate determines the config validate command is executed.
func WithValidate() Option {
	return func(o *Options) {
		o.validate = true
	}
}

// NewWithOpts builds a new configuration store from a variety of sources such as configuration files,
// environment variables or command line flags.
func NewWithOpts(options ...Option) *Config {
	opts := &Options{}

	for _, opt := range options {
		opt(opts)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix("irpmon")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	flagSet := new(pflag.FlagSet)

	c := &Config{
		Monitor: MonitorConfig{},
		Queue:   QueueConfig{},
		Server:  ServerConfig{},
		Log:     log.Config{},
		viper:   v,
		flags:   flagSet,
		opts:    opts,
	}

	c.addFlags()

	return c
}

// GetConfigFile gets the path of the configuration file from Viper value.
func (c Config) GetConfigFile() string {
	return c.viper.GetString(configFile)
}

// MustViperize adds the flag set to the Cobra command and binds them within the Viper flags.
func (c *Config) MustViperize(cmd *cobra.Command) {
	cmd.PersistentFlags().AddFlagSet(c.flags)
	if err := c.viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

// Init setups the configuration state from Viper.
func (c *Config) Init() error {
	c.Monitor.initFromViper(c.viper)
	c.Queue.initFromViper(c.viper)
	c.Server.initFromViper(c.viper)
	c.Log.InitFromViper(c.viper)

	if err := c.Monitor.validate(); err != nil {
		return err
	}
	return c.Queue.validate()
}

// TryLoadFile attempts to load the configuration file from specified path on the file system.
func (c *Config) TryLoadFile(file string) error {
	c.viper.SetConfigFile(file)
	return c.viper.ReadInConfig()
}

// Validate ensures that all configuration options provided by user have the expected values. It returns
// a list of validation errors prefixed with the offending configuration property/flag.
func (c *Config) Validate() error {
	// we'll first validate the structure and values of the config file
	file := c.viper.GetString(configFile)
	var out interface{}
	b, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	switch filepath.Ext(file) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &out)
	case ".json":
		err = json.Unmarshal(b, &out)
	default:
		return fmt.Errorf("%s is not a supported config file extension", filepath.Ext(file))
	}
	if err != nil {
		return fmt.Errorf("couldn't read the config file: %v", err)
	}
	// validate config file content
	valid, errs := validate(out)
	if !valid || len(errs) > 0 {
		return fmt.Errorf("invalid config: %v", errors.Join(errs...))
	}
	// now validate the Viper config flags
	valid, errs = validate(c.viper.AllSettings())
	if !valid || len(errs) > 0 {
		return fmt.Errorf("invalid config: %v", errors.Join(errs...))
	}
	return nil
}

// File returns the config file path.
func (c *Config) File() string { return c.viper.GetString(configFile) }

func (c *Config) addFlags() {
	c.flags.String(configFile, defaultConfigFile(), "Indicates the location of the configuration file")
	c.Monitor.addFlags(c.flags)
	if c.opts.serve || c.opts.validate {
		c.Server.addFlags(c.flags)
	}
	c.Queue.addFlags(c.flags)
	c.Log.AddFlags(c.flags)
}

func defaultConfigFile() string {
	exe, err := os.Executable()
	if err != nil {
		return filepath.Join("config", "irpmon.yml")
	}
	return filepath.Join(filepath.Dir(exe), "..", "config", "irpmon.yml")
}
