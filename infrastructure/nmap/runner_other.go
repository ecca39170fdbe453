//go:build !unix

package nmap

import "os/exec"

func configureProcessGroup(*exec.Cmd) {}

func effectiveUID() int {
	return -1
}
