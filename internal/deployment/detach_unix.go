//go:build unix

package deployment

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it outlives hookdeploy.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
