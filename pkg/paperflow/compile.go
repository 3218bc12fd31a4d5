package paperflow

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Compile validates the graph and returns an executable CompiledGraph.
// All validation errors are joined.
//
// Checked: the entry point is set and exists, every edge source and
// target exists (or is END), and END is reachable from the entry. Nodes
// unreachable from the entry are logged, not rejected.
func (g *Graph[S]) Compile() (*CompiledGraph[S], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	for _, from := range slices.Sorted(maps.Keys(g.edges)) {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		for _, to := range g.edges[from] {
			if to == END {
				continue
			}
			if _, exists := g.nodes[to]; !exists {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
			}
		}
	}

	for _, from := range slices.Sorted(maps.Keys(g.conditionalEdges)) {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
	}

	if _, exists := g.nodes[g.entryPoint]; exists && !g.hasPathToEnd() {
		errs = append(errs, ErrNoPathToEnd)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g.warnUnreachableNodes()
	return g.buildCompiledGraph(), nil
}

// hasPathToEnd propagates reachability of END backwards. A node with a
// router is assumed able to reach END.
func (g *Graph[S]) hasPathToEnd() bool {
	canReachEnd := map[string]bool{END: true}
	for from := range g.conditionalEdges {
		canReachEnd[from] = true
	}

	for changed := true; changed; {
		changed = false
		for from, targets := range g.edges {
			if canReachEnd[from] {
				continue
			}
			if slices.ContainsFunc(targets, func(to string) bool { return canReachEnd[to] }) {
				canReachEnd[from] = true
				changed = true
			}
		}
	}
	return canReachEnd[g.entryPoint]
}

func (g *Graph[S]) warnUnreachableNodes() {
	reachable := map[string]bool{g.entryPoint: true}
	queue := []string{g.entryPoint}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		next := g.edges[current]
		if _, ok := g.conditionalEdges[current]; ok {
			// A router may return any node.
			next = g.order
		}
		for _, id := range next {
			if id != END && !reachable[id] {
				reachable[id] = true
				queue = append(queue, id)
			}
		}
	}

	for _, id := range g.order {
		if !reachable[id] {
			slog.Warn("node is unreachable from entry", slog.String("node_id", id))
		}
	}
}

func (g *Graph[S]) buildCompiledGraph() *CompiledGraph[S] {
	edges := make(map[string][]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = slices.Clone(targets)
	}

	return &CompiledGraph[S]{
		name:             g.name,
		nodes:            maps.Clone(g.nodes),
		order:            slices.Clone(g.order),
		edges:            edges,
		conditionalEdges: maps.Clone(g.conditionalEdges),
		entryPoint:       g.entryPoint,
	}
}
