package exclude

import (
	"os/exec"
	"strings"

	"github.com/filer/filer/internal/logging"
)

// activeSwapFiles invokes the host's swap administration tool
// non-interactively and reads its output. Failure (missing tool,
// unsupported platform) is non-fatal: the exclusion simply does nothing.
func activeSwapFiles(log *logging.Logger) map[string]struct{} {
	out, err := exec.Command("swapon", "--show=NAME", "--noheadings").Output()
	if err != nil {
		log.Printf("swap file enumeration unavailable: %v", err)
		return map[string]struct{}{}
	}

	set := make(map[string]struct{})
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		set[line] = struct{}{}
	}
	return set
}
