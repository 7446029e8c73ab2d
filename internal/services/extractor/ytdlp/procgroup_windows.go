//go:build windows

package ytdlp

import "os/exec"

// setProcessGroup is a no-op on Windows; killProcessGroup only reaches
// the direct child. The production image runs on Linux where the real
// group semantics apply.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
