// Package daemon detaches the broker from its controlling terminal while
// preserving the already-bound listener, so clients never observe a window
// between fork and listen. The parent binds, re-executes itself with the
// listener as an inherited descriptor and exits; the child recovers the
// listener and serves.
package daemon

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

const childEnv = "MESSAGE_SWITCH_DAEMON_CHILD"

// listenerFd is the descriptor the bound listener arrives on in the child:
// the first ExtraFiles slot after stdin, stdout and stderr.
const listenerFd = 3

// IsChild reports whether this process is the detached daemon child.
func IsChild() bool {
	return os.Getenv(childEnv) == "1"
}

// Spawn re-executes the current binary as a detached session leader with
// the bound listener inherited. Returns the child pid; the caller (the
// parent) should exit without touching the listener further.
func Spawn(ln *net.TCPListener) (int, error) {
	f, err := ln.File()
	if err != nil {
		return 0, fmt.Errorf("failed to dup listener: %w", err)
	}
	defer f.Close()

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), childEnv+"=1")
	cmd.ExtraFiles = []*os.File{f}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon child: %w", err)
	}
	return cmd.Process.Pid, nil
}

// Listener recovers the inherited listener in the child.
func Listener() (net.Listener, error) {
	f := os.NewFile(listenerFd, "listener")
	if f == nil {
		return nil, fmt.Errorf("no inherited listener on fd %d", listenerFd)
	}
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("failed to recover inherited listener: %w", err)
	}
	return ln, nil
}

// WritePIDFile records the current pid.
func WritePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// RemovePIDFile deletes the pidfile, ignoring a missing one.
func RemovePIDFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
