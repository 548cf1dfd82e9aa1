//go:build !unix

package deployment

import "os/exec"

func detach(cmd *exec.Cmd) {}
