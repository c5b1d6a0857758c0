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
	"encoding/json"
	"fmt"
	"os"

	"github.com/sandboxd/agentbox/pkg/common/logutil"
	"github.com/sandboxd/agentbox/pkg/manager"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Option defines the options for the sandbox-manager server.
type Option struct {
	ListenAddr      string                 `toml:"listen_addr"`
	MonitorAddr     string                 `toml:"monitor_addr"`
	LogConfig       logutil.Config         `toml:"log_config"`
	ContainerConfig manager.ContainerConfig `toml:"container_config"`
	SessionConfig   manager.SessionConfig   `toml:"session_config"`
	ProxyConfig     manager.ProxyConfig     `toml:"proxy_config"`
}

var (
	Version    string
	configPath string
)

// NewCommand creates and returns a new cobra command object.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox-manager",
		Short: "sandbox-manager",
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
		Short: "Display the current version of sandbox-manager",
		Long:  "Display the current version of sandbox-manager",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
	cmd.AddCommand(versionCmd)

	return cmd
}

// defaultOption returns the Option struct with every documented default
// applied before TOML and environment overrides run.
func defaultOption() Option {
	return Option{
		ListenAddr:  "0.0.0.0:8080",
		MonitorAddr: "0.0.0.0:19104",
		LogConfig:   logutil.Config{Level: "info", ExpireDays: 7},
		ContainerConfig: manager.ContainerConfig{
			Endpoint:         "unix:///var/run/docker.sock",
			DockerAPIVersion: "1.41",
			SandboxImage:     "agentbox/sandbox:latest",
			Runtime:          "",
		},
		SessionConfig: manager.SessionConfig{
			SessionTimeoutSeconds:  1800,
			CleanupIntervalSeconds: 60,
		},
		ProxyConfig: manager.ProxyConfig{
			Host: "127.0.0.1",
			Port: 15004,
		},
	}
}

// loadConfigFromToml loads the configuration from the given TOML file.
// A missing config file is not an error: every field already carries a
// documented default.
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

// applyEnvOverrides layers the SANDBOX_* environment variables on top
// of the TOML-loaded configuration, so orchestrated deployments can
// retune a shared config file per instance.
func applyEnvOverrides(opt *Option) {
	if v := os.Getenv("SANDBOX_RUNTIME"); v != "" {
		opt.ContainerConfig.Runtime = v
	}
	if v := os.Getenv("SANDBOX_IMAGE"); v != "" {
		opt.ContainerConfig.SandboxImage = v
	}
	if v := os.Getenv("SANDBOX_DOCKER_ENDPOINT"); v != "" {
		opt.ContainerConfig.Endpoint = v
	}
	if v := os.Getenv("SANDBOX_SESSION_TIMEOUT_SECONDS"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			opt.SessionConfig.SessionTimeoutSeconds = n
		}
	}
	if v := os.Getenv("SANDBOX_STORAGE_ROOT"); v != "" {
		opt.SessionConfig.StoragePath = v
	}
	if v := os.Getenv("SANDBOX_PROXY_HOST"); v != "" {
		opt.ProxyConfig.Host = v
	}
	if v := os.Getenv("SANDBOX_PROXY_PORT"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			opt.ProxyConfig.Port = n
		}
	}
	if v := os.Getenv("SANDBOX_SIGNING_KEY"); v != "" {
		opt.ProxyConfig.SigningKey = v
	}
	if v := os.Getenv("SANDBOX_RPC_LISTEN_PORT"); v != "" {
		opt.ListenAddr = "0.0.0.0:" + v
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err == nil && n <= 0 {
		return 0, fmt.Errorf("value must be positive: %q", s)
	}
	return n, err
}

// logGlobalConfig logs the global configuration, redacting the signing
// key so it never lands in a log file.
func logGlobalConfig(opt *Option) {
	logrus.Info("sandbox-manager start...")

	redacted := *opt
	redacted.ProxyConfig.SigningKey = "***"

	b, _ := json.Marshal(redacted)
	logrus.Infof("config: %s", string(b))
}
