package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storybot/weaver/internal/config"
)

func TestRunInitCreatesConfig(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	if err := runInit(&out, dir); err != nil {
		t.Fatal(err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("config not created: %v", err)
	}
	if !strings.Contains(out.String(), configPath) {
		t.Errorf("output does not mention the created file: %q", out.String())
	}
}

func TestRunInitInstalledConfigLoads(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("GEMINI_API_KEY", "key")

	if err := runInit(&bytes.Buffer{}, dir); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("installed config does not load: %v", err)
	}
	if cfg.Discord.Token != "tok" {
		t.Errorf("Discord.Token = %q, want env expansion applied", cfg.Discord.Token)
	}
	if cfg.Story.UserTurnEvery != 3 {
		t.Errorf("UserTurnEvery = %d", cfg.Story.UserTurnEvery)
	}
	if cfg.Attention.PraiseMinSeconds != 600 || cfg.Attention.PraiseMaxSeconds != 1800 {
		t.Errorf("praise range = %d..%d", cfg.Attention.PraiseMinSeconds, cfg.Attention.PraiseMaxSeconds)
	}
}

func TestRunInitNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("# my customized config\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runInit(&bytes.Buffer{}, dir); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# my customized config\n" {
		t.Error("init overwrote an existing config")
	}
}
