/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rabbitstack/memctx/pkg/util/log"
	"github.com/rabbitstack/memctx/pkg/util/multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const configFile = "config-file"

// Config stores the sections for tweaking the snapshot machinery, the
// HTTP API preferences and the logging behaviour.
type Config struct {
	// Snapshot stores the settings of the memory snapshot machinery.
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
	// API stores global HTTP API preferences
	API APIConfig `json:"api" yaml:"api"`
	// Log contains log-specific configuration options
	Log log.Config `json:"logging" yaml:"logging"`

	flags *pflag.FlagSet
	viper *viper.Viper
	opts  *Options
}

// Options determines which config flags are toggled depending on the command type.
type Options struct {
	run   bool
	stats bool
}

// Option is the type alias for the config option.
type Option func(*Options)

// WithRun determines the main command is executed.
func WithRun() Option {
	return func(o *Options) {
		o.run = true
	}
}

// WithStats determines the stats command is executed.
func WithStats() Option {
	return func(o *Options) {
		o.stats = true
	}
}

// NewWithOpts builds a new config instance with the provided options.
func NewWithOpts(options ...Option) *Config {
	opts := &Options{}

	for _, opt := range options {
		opt(opts)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	c := &Config{
		Snapshot: SnapshotConfig{},
		API:      APIConfig{},
		Log:      log.Config{},
		viper:    v,
		flags:    new(pflag.FlagSet),
		opts:     opts,
	}

	c.addCommonFlags()

	return c
}

// File returns the path of the configuration file.
func (c *Config) File() string { return c.viper.GetString(configFile) }

// TryLoadFile attempts to load the configuration file from specified path on the file system.
func (c *Config) TryLoadFile(file string) error {
	if file == "" {
		return nil
	}
	if _, err := os.Stat(file); err != nil {
		return nil
	}
	c.viper.SetConfigFile(file)
	return c.viper.ReadInConfig()
}

// Init reads all config sections from the Viper state.
func (c *Config) Init() error {
	c.Snapshot.initFromViper(c.viper)
	c.API.initFromViper(c.viper)
	c.Log.InitFromViper(c.viper)
	return c.tryDecodeSnapshot()
}

// Validate ensures that all configuration options provided by user have
// the expected values. It returns a list of validation errors prefixed
// with the offending configuration property/flag.
func (c *Config) Validate() error {
	file := c.File()
	if file != "" {
		if _, err := os.Stat(file); err == nil {
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
			valid, errs := validate(interpolateSchema(), out)
			if !valid || len(errs) > 0 {
				return fmt.Errorf("invalid config: %v", multierror.Wrap(errs...))
			}
		}
	}
	// now validate the Viper config flags
	valid, errs := validate(interpolateSchema(), c.viper.AllSettings())
	if !valid || len(errs) > 0 {
		return fmt.Errorf("invalid config: %v", multierror.Wrap(errs...))
	}
	return nil
}

// MustViperize adds the flag set to the Cobra command and binds them within the Viper flags.
func (c *Config) MustViperize(cmd *cobra.Command) {
	cmd.PersistentFlags().AddFlagSet(c.flags)
	if err := c.viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

func (c *Config) addCommonFlags() {
	c.flags.String(configFile, "", "Indicates the location of the configuration file")
	if c.opts.run || c.opts.stats {
		c.flags.String(transport, "localhost:8084", "Specifies the underlying transport protocol for the API HTTP server")
		c.flags.Duration(timeout, time.Second*15, "Determines the timeout for the API server responses")
	}
	if c.opts.run {
		c.Snapshot.AddFlags(c.flags)
	}
	c.Log.AddFlags(c.flags)
}
