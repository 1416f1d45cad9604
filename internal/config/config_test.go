package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestLoadAppliesDefaults(t *testing.T) {
	v := viper.New()
	cmd := &cobra.Command{}
	BindFlags(cmd, v)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":4040" {
		t.Fatalf("Listen = %q, want :4040", cfg.Listen)
	}
	if cfg.ShareDir != "./share" {
		t.Fatalf("ShareDir = %q, want ./share", cfg.ShareDir)
	}
	if !cfg.DefaultPermissions {
		t.Fatal("DefaultPermissions should default true")
	}
}

func TestLoadRejectsEmptyShareDir(t *testing.T) {
	v := viper.New()
	cmd := &cobra.Command{}
	BindFlags(cmd, v)
	if err := cmd.Flags().Set("share-dir", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := Load(v); err == nil {
		t.Fatal("expected error for empty share-dir")
	}
}

func TestBindFlagsHonorsEnvOverride(t *testing.T) {
	t.Setenv("LANHUB_LISTEN", ":9999")

	v := viper.New()
	cmd := &cobra.Command{}
	BindFlags(cmd, v)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9999" {
		t.Fatalf("Listen = %q, want :9999 from env override", cfg.Listen)
	}
}
