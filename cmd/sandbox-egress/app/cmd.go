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

// Option defines the options for the sandbox-egress proxy.
type Option struct {
	Addr        string         `toml:"addr"`
	MonitorAddr string         `toml:"monitor_addr"`
	SigningKey  string         `toml:"signing_key"`
	LogConfig   logutil.Config `toml:"log_config"`
}

var (
	Version    string
	configPath string
)

// NewCommand creates and returns a new cobra command object.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox-egress",
		Short: "sandbox-egress",
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

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.toml", "path to the config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Display the current version of sandbox-egress",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
	cmd.AddCommand(versionCmd)

	return cmd
}

func defaultOption() Option {
	return Option{
		Addr:        "0.0.0.0:15004",
		MonitorAddr: "0.0.0.0:19105",
		LogConfig:   logutil.Config{Level: "info", ExpireDays: 7},
	}
}

func loadConfigFromToml(config *Option) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	_, err := toml.DecodeFile(configPath, config)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", configPath, err)
	}

	return nil
}

// applyEnvOverrides layers the SANDBOX_* environment variables relevant
// to the proxy: it must share the manager's signing key to verify the
// tokens the manager mints.
func applyEnvOverrides(opt *Option) {
	if v := os.Getenv("SANDBOX_SIGNING_KEY"); v != "" {
		opt.SigningKey = v
	}
	if v := os.Getenv("SANDBOX_PROXY_PORT"); v != "" {
		opt.Addr = "0.0.0.0:" + v
	}
}

func logGlobalConfig(opt *Option) {
	logrus.Infof("sandbox-egress start addr=%s", opt.Addr)
}
