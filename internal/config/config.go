// Package config loads lanhubd's configuration by layering command-line
// flags, LANHUB_* environment variables, and an optional YAML file,
// through github.com/spf13/viper bound to github.com/spf13/cobra flags —
// the pattern used by the corpus's gravitational/teleport CLI.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the full set of runtime knobs for lanhubd (spec §6
// "Persisted state layout" plus the ambient additions of SPEC_FULL.md §A.3).
type Config struct {
	Listen         string `mapstructure:"listen"`
	ShareDir       string `mapstructure:"share-dir"`
	ServerName     string `mapstructure:"server-name"`
	UsersFile      string `mapstructure:"users-file"`
	MaxPacketBytes int    `mapstructure:"max-packet-bytes"`
	UploadCapBytes int64  `mapstructure:"upload-cap-bytes"`
	DownloadBps    int64  `mapstructure:"download-bps-cap"`
	UploadBps      int64  `mapstructure:"upload-bps-cap"`
	MetricsListen  string `mapstructure:"metrics-listen"`
	LogFile        string `mapstructure:"log-file"`
	IdleTimeoutSec int    `mapstructure:"idle-timeout-seconds"`
	MaxConnections int    `mapstructure:"max-connections"`
	MaxPerIP       int    `mapstructure:"max-connections-per-ip"`
	ShutdownGraceSec int  `mapstructure:"shutdown-grace-seconds"`

	// DefaultPermissions seeds the mutable permission.Table at startup.
	DefaultPermissions bool `mapstructure:"default-permissions"`
}

// BindFlags registers every config knob as a flag on cmd and ties it into
// v, so the precedence is flag > env > file > default, mirroring the
// corpus's cobra+viper wiring.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.String("listen", ":4040", "TCP address to accept client connections on")
	flags.String("share-dir", "./share", "root of the directory served to clients")
	flags.String("server-name", "LANHUB", "server name advertised by UDP discovery")
	flags.String("users-file", "./users.csv", "CSV user list (spec: id,password,msgDown,msgUp,fileDown,fileUp)")
	flags.Int("max-packet-bytes", 16*1024*1024, "maximum accepted framed packet size")
	flags.Int64("upload-cap-bytes", 0, "reject putFile requests declaring a larger size than this (0 = unlimited)")
	flags.Int64("download-bps-cap", 0, "per-transfer download throttle in bytes/sec (0 = unlimited)")
	flags.Int64("upload-bps-cap", 0, "per-transfer upload throttle in bytes/sec (0 = unlimited)")
	flags.String("metrics-listen", "", "address to serve Prometheus /metrics on (empty disables it)")
	flags.String("log-file", "", "path to mirror logs into (empty = stderr only)")
	flags.Int("idle-timeout-seconds", 600, "idle control-connection timeout (0 disables it)")
	flags.Int("max-connections", 0, "global simultaneous connection ceiling (0 = unlimited)")
	flags.Int("max-connections-per-ip", 0, "per-IP simultaneous connection ceiling (0 = unlimited)")
	flags.Int("shutdown-grace-seconds", 5, "how long shutdown waits for stopped workers to finish unwinding")
	flags.Bool("default-permissions", true, "initial value for every global permission flag at startup")

	v.SetEnvPrefix("LANHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)
}

// Load resolves the final Config from v, after flags have been parsed and
// an optional config file (set via --config, bound by the caller) loaded.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ShareDir == "" {
		return nil, fmt.Errorf("config: share-dir must not be empty")
	}
	return &cfg, nil
}
