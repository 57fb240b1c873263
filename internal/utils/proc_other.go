//go:build !unix

package utils

import "os/exec"

func SetProcessGroup(cmd *exec.Cmd) {}

func KillProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func TerminateProcessGroup(cmd *exec.Cmd) error {
	return KillProcessGroup(cmd)
}
