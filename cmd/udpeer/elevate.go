package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/1ureka/udpeer/internal/util"
)

// elevate re-executes the binary under sudo unless it already runs as root.
// It only returns in the process that should carry on; the unprivileged
// parent exits with the child's status.
func elevate() error {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	util.LogInfo("the tunnel needs root privileges, re-running under sudo (use -unprivileged to skip)")

	cmd := exec.Command("sudo", append([]string{exe}, os.Args[1:]...)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		os.Exit(0)
	case errors.As(err, &exitErr):
		os.Exit(exitErr.ExitCode())
	}
	return fmt.Errorf("failed to run sudo: %w", err)
}
