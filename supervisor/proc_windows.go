//go:build windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

func prepare(cmd *exec.Cmd) {}

// signalProcess terminates p, Windows has no way to deliver the requested signal.
func signalProcess(p *os.Process, sig syscall.Signal) error {
	return p.Kill()
}
