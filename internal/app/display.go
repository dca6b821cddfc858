package app

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// OpenBrowser runs command with url appended, or the platform default when
// command is empty. It does not wait for the browser to exit.
func OpenBrowser(command string, url string) error {
	cmd := browserCommand(command, url)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening %s: %w", url, err)
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

func browserCommand(command string, url string) *exec.Cmd {
	if fields := strings.Fields(command); len(fields) > 0 {
		return exec.Command(fields[0], append(fields[1:], url)...)
	}

	switch runtime.GOOS {
	case "windows":
		return exec.Command("cmd", "/c", "start", url)
	case "darwin":
		return exec.Command("open", url)
	default:
		return exec.Command("xdg-open", url)
	}
}
