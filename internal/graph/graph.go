// Package graph holds the directed depends-on edges between services and
// answers the two questions the monitor asks of them: which root caused a
// dependent's failure (cascade attribution) and which dependents a root's
// recovery would resolve (prioritization).
package graph

import (
	"log"
	"sort"

	"github.com/satomon/sato/internal/inventory"
)

// Graph is a directed dependency graph. Edges point root -> dependent.
// Construction breaks declared cycles deterministically (first-seen edge
// wins, later back-edges are logged and ignored), so traversal always
// terminates.
type Graph struct {
	dependents map[string][]string // root -> direct dependents
	roots      map[string][]string // dependent -> direct roots
}

// Build constructs the graph from declared dependency identifiers. Services
// are processed in slice order and dependencies in declared order, which
// makes cycle breaking deterministic for a given inventory.
func Build(services []inventory.Service) *Graph {
	g := &Graph{
		dependents: make(map[string][]string),
		roots:      make(map[string][]string),
	}

	known := make(map[string]bool, len(services))
	for _, s := range services {
		known[s.ID] = true
	}

	for _, s := range services {
		for _, root := range s.DependsOn {
			if root == s.ID {
				log.Printf("Configuration warning: service %q depends on itself, edge ignored", s.ID)
				continue
			}
			if !known[root] {
				log.Printf("Configuration warning: service %q depends on unknown service %q, edge ignored", s.ID, root)
				continue
			}
			if g.reachable(s.ID, root) {
				log.Printf("Configuration warning: dependency cycle %q -> %q, back-edge ignored", root, s.ID)
				continue
			}
			g.dependents[root] = append(g.dependents[root], s.ID)
			g.roots[s.ID] = append(g.roots[s.ID], root)
		}
	}
	return g
}

// reachable reports whether to is reachable from from along dependent edges
func (g *Graph) reachable(from, to string) bool {
	if from == to {
		return true
	}
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.dependents[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// DirectRoots returns the declared roots of a service
func (g *Graph) DirectRoots(serviceID string) []string {
	return g.roots[serviceID]
}

// Dependents returns every service transitively reachable from root, sorted
func (g *Graph) Dependents(root string) []string {
	seen := make(map[string]bool)
	stack := []string{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.dependents[cur] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AttributeRoot walks up from a failing service and returns the topmost
// ancestor for which isCandidate reports true (a root currently Down within
// the correlation window). Returns false when the failure is independent.
func (g *Graph) AttributeRoot(serviceID string, isCandidate func(rootID string) bool) (string, bool) {
	best := ""
	seen := make(map[string]bool)
	stack := append([]string(nil), g.roots[serviceID]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if isCandidate(cur) {
			// Prefer the highest candidate: keep climbing from here.
			if best == "" || g.reachable(cur, best) {
				best = cur
			}
		}
		stack = append(stack, g.roots[cur]...)
	}
	return best, best != ""
}
