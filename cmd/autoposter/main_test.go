package main

import (
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "run": false, "version": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("subcommand %q not registered", name)
		}
	}
}

func TestLoadConfigFailsWithoutMongoURI(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected configuration error without MONGO_URI")
	}
}
