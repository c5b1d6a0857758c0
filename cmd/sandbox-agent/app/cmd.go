// Copyright The TrustTunnel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"fmt"
	"os"

	"github.com/sandboxd/agentbox/pkg/common/logutil"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Option defines the options for the sandbox-agent server. Unlike
// sandbox-manager and sandbox-egress, this binary is baked into the
// sandbox image and almost always runs with its documented defaults —
// there is no host filesystem to mount a config.toml from inside a
// freshly created container, so every field degrades gracefully when
// the file is absent.
type Option struct {
	Addr             string         `toml:"addr"`
	MemoryLimitBytes int64          `toml:"memory_limit_bytes"`
	LogConfig        logutil.Config `toml:"log_config"`
}

var (
	Version    string
	configPath string
)

// NewCommand creates and returns a new cobra command object.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox-agent",
		Short: "sandbox-agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			options := defaultOption()
			if err := loadConfigFromToml(&options); err != nil {
				return fmt.Errorf("failed to load config from toml: %w", err)
			}
			applyEnvOverrides(&options)

			if err := runServer(&options); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to an optional config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Display the current version of sandbox-agent",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
	cmd.AddCommand(versionCmd)

	return cmd
}

func defaultOption() Option {
	return Option{
		Addr:      "0.0.0.0:2024",
		LogConfig: logutil.Config{Level: "info", ExpireDays: 7},
	}
}

func loadConfigFromToml(config *Option) error {
	if configPath == "" {
		return nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	_, err := toml.DecodeFile(configPath, config)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", configPath, err)
	}

	return nil
}

// applyEnvOverrides supports the one knob an orchestrator building the
// sandbox image is most likely to set without a config file: the
// process-wide memory ceiling.
func applyEnvOverrides(opt *Option) {
	if v := os.Getenv("SANDBOX_AGENT_MEMORY_LIMIT_BYTES"); v != "" {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			opt.MemoryLimitBytes = n
		}
	}
}

func logGlobalConfig(opt *Option) {
	logrus.Infof("sandbox-agent start addr=%s memory_limit_bytes=%d", opt.Addr, opt.MemoryLimitBytes)
}
