// Package joingraph orders the tables of a join plan so that every table is
// introduced after the tables it is joined from.
package joingraph

import (
	"errors"
	"fmt"
)

var (
	ErrCycle       = errors.New("join graph contains a cycle")
	ErrUnreachable = errors.New("join graph table is not reachable from the base table")
)

type Edge struct {
	Origin string
	Target string
}

const (
	white = iota
	gray
	black
)

type sorter struct {
	adjacency map[string][]string
	state     map[string]int
	order     []string
}

// Sort returns the tables of edges in topological order starting with root.
// Neighbours are visited in edge insertion order so the result is stable.
func Sort(root string, edges []Edge) ([]string, error) {
	s := &sorter{
		adjacency: map[string][]string{},
		state:     map[string]int{},
	}
	nodes := []string{root}
	seen := map[string]bool{root: true}
	for _, edge := range edges {
		s.adjacency[edge.Origin] = append(s.adjacency[edge.Origin], edge.Target)
		for _, node := range []string{edge.Origin, edge.Target} {
			if !seen[node] {
				seen[node] = true
				nodes = append(nodes, node)
			}
		}
	}

	if err := s.visit(root); err != nil {
		return nil, err
	}
	reachable := len(s.order)
	for _, node := range nodes {
		if s.state[node] == white {
			if err := s.visit(node); err != nil {
				return nil, err
			}
		}
	}
	if len(s.order) != reachable {
		for _, node := range nodes {
			if !reachedFrom(root, node, s.adjacency) {
				return nil, fmt.Errorf("%w: %s", ErrUnreachable, node)
			}
		}
	}

	for i, j := 0, len(s.order)-1; i < j; i, j = i+1, j-1 {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	}
	return s.order, nil
}

func (s *sorter) visit(node string) error {
	switch s.state[node] {
	case gray:
		return fmt.Errorf("%w at %s", ErrCycle, node)
	case black:
		return nil
	}
	s.state[node] = gray
	for _, next := range s.adjacency[node] {
		if err := s.visit(next); err != nil {
			return err
		}
	}
	s.state[node] = black
	s.order = append(s.order, node)
	return nil
}

func reachedFrom(root, node string, adjacency map[string][]string) bool {
	if root == node {
		return true
	}
	visited := map[string]bool{root: true}
	queue := []string{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if next == node {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
