package main

import (
	"os"
	"path/filepath"
)

// env returns the value of an environment variable if provided (even if empty)
// or a fallback value.
func env(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}

// defaultKeyPath is the private key file used when none is given.
func defaultKeyPath() string {
	return env("MSVAULT_KEY", filepath.Join(os.Getenv("HOME"), ".msvault.key"))
}
