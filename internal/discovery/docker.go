package discovery

import (
	"context"
	"sort"
	"strings"

	"github.com/satomon/sato/internal/inventory"
)

// DockerLister discovers containers through the docker CLI. Containers
// sharing a compose project are treated as siblings: the first container in
// sorted order is designated the group root and the rest declare a
// dependency on it, so a project-wide outage is attributed to one root.
type DockerLister struct {
	run runCommand
}

// NewDockerLister creates a lister backed by the local docker binary
func NewDockerLister() *DockerLister {
	return &DockerLister{run: execCommand}
}

// List returns one container-check descriptor per container
func (d *DockerLister) List(ctx context.Context) ([]inventory.Service, error) {
	out, err := d.run(ctx, "docker", "ps", "-a", "--format",
		`{{.Names}}\t{{.Label "com.docker.compose.project"}}`)
	if err != nil {
		return nil, err
	}

	// Group container names by compose project; unlabelled containers stand alone.
	projects := make(map[string][]string)
	var standalone []string
	for _, line := range splitLines(out) {
		parts := strings.SplitN(line, "\t", 2)
		name := strings.TrimSpace(parts[0])
		if name == "" {
			continue
		}
		project := ""
		if len(parts) == 2 {
			project = strings.TrimSpace(parts[1])
		}
		if project == "" || project == "<no value>" {
			standalone = append(standalone, name)
			continue
		}
		projects[project] = append(projects[project], name)
	}

	var services []inventory.Service
	for _, name := range standalone {
		services = append(services, containerService(name, "", nil))
	}

	projectNames := make([]string, 0, len(projects))
	for p := range projects {
		projectNames = append(projectNames, p)
	}
	sort.Strings(projectNames)

	for _, project := range projectNames {
		members := projects[project]
		sort.Strings(members)
		root := members[0]
		services = append(services, containerService(root, project, nil))
		for _, name := range members[1:] {
			services = append(services, containerService(name, project, []string{root}))
		}
	}

	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	return services, nil
}

func containerService(name, project string, dependsOn []string) inventory.Service {
	return inventory.Service{
		ID:             name,
		Name:           name,
		Check:          inventory.CheckContainer,
		Target:         name,
		RestartCommand: "docker restart " + name,
		Group:          project,
		DependsOn:      dependsOn,
	}
}
