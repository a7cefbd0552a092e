package cli

import (
	"bytes"
	"testing"
)

func TestRootCommand(t *testing.T) {
	root := NewRootCmd()
	if root.Use != "envelope" {
		t.Errorf("expected Use to be 'envelope', got %q", root.Use)
	}

	want := []string{"get", "post", "put", "patch", "delete", "query", "monitor", "history", "shell"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	for _, flag := range []string{"config", "profile", "log-level", "ssl", "cacert", "key", "cert", "pass", "no-color", "output"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestRootCommand_Version(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte(version)) {
		t.Errorf("expected version in output, got %q", out.String())
	}
}

func TestRootCommand_UnknownOutput(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"get", "http://127.0.0.1:1/", "-o", "junit"})

	if err := root.Execute(); err == nil {
		t.Fatal("expected error for unsupported output format")
	}
}
