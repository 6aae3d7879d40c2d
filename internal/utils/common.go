package utils

import (
	"os"
	"os/exec"
	"strings"

	"github.com/edgeforge/nodeforge/internal/constants"
	"golang.org/x/sys/unix"
)

// SH runs a command through the shell and returns its combined output.
func SH(command string) (string, error) {
	out, err := exec.Command("/bin/sh", "-c", command).CombinedOutput()
	return string(out), err
}

// RunTool runs an external tool with explicit arguments, no shell in between.
// Output is logged at debug so failed runbooks can be reconstructed from the
// log file.
func RunTool(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	Log.Debug().Str("tool", name).Strs("args", args).Str("output", string(out)).Msg("external tool")
	return string(out), err
}

// CommandExists reports whether a tool is reachable on PATH.
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// RequireRoot fails fast when not running as uid 0. Everything this program
// sequences is privileged.
func RequireRoot() error {
	if os.Geteuid() != 0 {
		return constants.ErrNotRoot
	}
	return nil
}

func CreateIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModePerm)
	}
	return nil
}

// Sync flushes block caches. There is no useful error to act on.
func Sync() {
	unix.Sync()
}

// CleanupSlice removes empty or whitespace-only values.
func CleanupSlice(slice []string) []string {
	var cleaned []string
	for _, v := range slice {
		if strings.TrimSpace(v) == "" {
			continue
		}
		cleaned = append(cleaned, v)
	}
	return cleaned
}

// UniqueSlice removes duplicated entries, keeping first-seen order.
func UniqueSlice(slice []string) []string {
	keys := make(map[string]bool)
	var out []string
	for _, entry := range slice {
		if _, ok := keys[entry]; !ok {
			keys[entry] = true
			out = append(out, entry)
		}
	}
	return out
}
