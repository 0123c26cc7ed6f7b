package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
)

func main() {
	socketPath := pflag.String("control-socket", "/tmp/rfbsession-control.sock", "path to cmd/server's control socket")
	pflag.Parse()

	p := tea.NewProgram(newModel(*socketPath))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "rfbsession-admin:", err)
		os.Exit(1)
	}
}
