// Package discovery turns container-runtime and OS-service-manager listings
// into normalized inventory descriptors. The monitor core never parses these
// formats itself; it consumes the merged descriptor list.
package discovery

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"

	"github.com/satomon/sato/internal/inventory"
)

// Lister enumerates externally managed entities as service descriptors
type Lister interface {
	List(ctx context.Context) ([]inventory.Service, error)
}

// runCommand executes an external listing command and returns its stdout.
// Swappable in tests so no docker/systemctl binary is needed.
type runCommand func(ctx context.Context, name string, args ...string) (string, error)

func execCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return string(out), nil
}

// Discover runs every lister and concatenates the results. A failing lister
// is logged and skipped; discovery is best-effort and never blocks startup.
func Discover(ctx context.Context, listers ...Lister) []inventory.Service {
	var services []inventory.Service
	for _, l := range listers {
		found, err := l.List(ctx)
		if err != nil {
			log.Printf("Discovery failed for %T: %v", l, err)
			continue
		}
		services = append(services, found...)
	}
	return services
}

// splitLines returns the non-empty trimmed lines of command output
func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
