//go:build !windows

package main

import (
	"os"
	"syscall"
)

// The default signal sent by the `kill` command is SIGTERM, which is the
// graceful shutdown signal for most supervisors.
var terminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
