package discovery

import (
	"context"
	"sort"
	"strings"

	"github.com/satomon/sato/internal/inventory"
)

// SystemdLister discovers OS-managed units through systemctl
type SystemdLister struct {
	run runCommand
}

// NewSystemdLister creates a lister backed by the local systemctl binary
func NewSystemdLister() *SystemdLister {
	return &SystemdLister{run: execCommand}
}

// List returns one unit-check descriptor per loaded service unit
func (s *SystemdLister) List(ctx context.Context) ([]inventory.Service, error) {
	out, err := s.run(ctx, "systemctl", "list-units", "--type=service",
		"--all", "--no-legend", "--plain")
	if err != nil {
		return nil, err
	}

	var services []inventory.Service
	for _, line := range splitLines(out) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		unit := fields[0]
		if !strings.HasSuffix(unit, ".service") {
			continue
		}
		id := strings.TrimSuffix(unit, ".service")
		services = append(services, inventory.Service{
			ID:             id,
			Name:           id,
			Check:          inventory.CheckUnit,
			Target:         unit,
			RestartCommand: "systemctl restart " + unit,
			Group:          "system",
		})
	}

	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	return services, nil
}
