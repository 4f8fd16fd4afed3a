package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Fatalf("version output = %q, want %q", got, version)
	}
}

func TestServeRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--env-file", ""})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("serve without an API key should fail")
	}
}
