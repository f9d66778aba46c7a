// Package main provides the liftsync CLI: the workout store, its integrity
// and backup tooling, and the peer sync daemon.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// usageError marks a failure caused by the command line rather than the
// system.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func userErrorf(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ue usageError
	if errors.As(err, &ue) {
		return exitUserError
	}
	return exitSysError
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "liftsync:", err)
		os.Exit(exitCode(err))
	}
}
