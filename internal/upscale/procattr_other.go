//go:build !unix

package upscale

import (
	"os"
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {}

func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return os.ErrProcessDone
	}
	return cmd.Process.Kill()
}
