//go:build unix

package nmap

import (
	"os"
	"os/exec"
	"syscall"
)

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative pid signals the whole group, including sudo's child.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

func effectiveUID() int {
	return os.Geteuid()
}
