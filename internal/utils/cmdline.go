package utils

import (
	"os"
	"strings"
)

// GetHostProcCmdline returns the path to /proc/cmdline, overridable via
// HOST_PROC_CMDLINE so tests can point it at a fixture.
func GetHostProcCmdline() string {
	proc := os.Getenv("HOST_PROC_CMDLINE")
	if proc == "" {
		return "/proc/cmdline"
	}
	return proc
}

// ReadCMDLineArg returns the values of every cmdline stanza matching arg.
// A stanza without a value yields a single empty string.
func ReadCMDLineArg(arg string) []string {
	cmdLine, err := os.ReadFile(GetHostProcCmdline())
	if err != nil {
		return []string{}
	}
	res := []string{}
	for _, f := range strings.Fields(string(cmdLine)) {
		if strings.HasPrefix(f, arg) {
			dat := strings.Split(f, arg)
			res = append(res, dat[1])
		}
	}
	return res
}

// RootSource returns the root= stanza the kernel booted with, empty if the
// cmdline cannot be read.
func RootSource() string {
	vals := ReadCMDLineArg("root=")
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
