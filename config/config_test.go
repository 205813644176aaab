package config

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := New()
	if c.SAMAddress != DefaultSAMAddress {
		t.Errorf("SAMAddress = %q", c.SAMAddress)
	}
	if c.CommandTimeout != DefaultCommandTimeout {
		t.Errorf("CommandTimeout = %s", c.CommandTimeout)
	}
	if c.MaxSessions != DefaultMaxSessions {
		t.Errorf("MaxSessions = %d", c.MaxSessions)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := New()
		c.ServerDestination = strings.Repeat("ab", 32)
		return c
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid client config rejected: %v", err)
	}

	c := New()
	c.Listen = true
	if err := c.Validate(); err != nil {
		t.Errorf("server config needs no destination, got %v", err)
	}

	c = valid()
	c.ServerDestination = ""
	if err := c.Validate(); err == nil {
		t.Error("client mode without destination accepted")
	}

	c = valid()
	c.MaxSessions = 0
	if err := c.Validate(); err == nil {
		t.Error("zero max sessions accepted")
	}

	c = valid()
	c.CommandTimeout = 0
	if err := c.Validate(); err == nil {
		t.Error("zero command timeout accepted")
	}

	c = valid()
	c.AllowedClients = []string{"not-hex"}
	if err := c.Validate(); err == nil {
		t.Error("non-hex allowed client accepted")
	}

	c = valid()
	c.AllowedClients = []string{hex.EncodeToString(make([]byte, 16))}
	if err := c.Validate(); err == nil {
		t.Error("short allowed client key accepted")
	}

	c = valid()
	c.AllowedClients = []string{hex.EncodeToString(make([]byte, 32))}
	if err := c.Validate(); err != nil {
		t.Errorf("well-formed allowed client rejected: %v", err)
	}

	c = valid()
	c.AuthToken = "tok"
	c.PromptAuthToken = true
	if err := c.Validate(); err == nil {
		t.Error("token and prompt-token together accepted")
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retsh.yaml")

	c := New()
	c.SAMAddress = "10.0.0.1:7656"
	c.ServerDestination = "deadbeef"
	c.MaxSessions = 3
	c.CommandTimeout = 42 * time.Second
	c.AllowedClients = []string{"aa", "bb"}
	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded := New()
	if err := LoadFromFile(loaded, path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.SAMAddress != "10.0.0.1:7656" {
		t.Errorf("SAMAddress = %q", loaded.SAMAddress)
	}
	if loaded.ServerDestination != "deadbeef" {
		t.Errorf("ServerDestination = %q", loaded.ServerDestination)
	}
	if loaded.MaxSessions != 3 {
		t.Errorf("MaxSessions = %d", loaded.MaxSessions)
	}
	if loaded.CommandTimeout != 42*time.Second {
		t.Errorf("CommandTimeout = %s", loaded.CommandTimeout)
	}
	if len(loaded.AllowedClients) != 2 {
		t.Errorf("AllowedClients = %v", loaded.AllowedClients)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	c := New()
	if err := LoadFromFile(c, filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file did not error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvSAMAddress, "127.0.0.1:9999")
	t.Setenv(EnvCommandTimeout, "90")
	t.Setenv(EnvConnectTimeout, "15s")
	t.Setenv(EnvMaxSessions, "5")
	t.Setenv(EnvAllowedClients, "aa, bb ,cc")

	c := New()
	if err := LoadFromEnv(c); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if c.SAMAddress != "127.0.0.1:9999" {
		t.Errorf("SAMAddress = %q", c.SAMAddress)
	}
	if c.CommandTimeout != 90*time.Second {
		t.Errorf("CommandTimeout = %s, bare seconds not honored", c.CommandTimeout)
	}
	if c.ConnectTimeout != 15*time.Second {
		t.Errorf("ConnectTimeout = %s", c.ConnectTimeout)
	}
	if c.MaxSessions != 5 {
		t.Errorf("MaxSessions = %d", c.MaxSessions)
	}
	want := []string{"aa", "bb", "cc"}
	if len(c.AllowedClients) != len(want) {
		t.Fatalf("AllowedClients = %v", c.AllowedClients)
	}
	for i, v := range want {
		if c.AllowedClients[i] != v {
			t.Errorf("AllowedClients[%d] = %q, want %q", i, c.AllowedClients[i], v)
		}
	}
}

func TestLoadFromEnv_Malformed(t *testing.T) {
	t.Setenv(EnvCommandTimeout, "soon")
	if err := LoadFromEnv(New()); err == nil {
		t.Error("malformed duration accepted")
	}

	t.Setenv(EnvCommandTimeout, "")
	t.Setenv(EnvMaxSessions, "many")
	if err := LoadFromEnv(New()); err == nil {
		t.Error("malformed max sessions accepted")
	}
}
