// Package tree models the TimeCamp group hierarchy as a forest of id-keyed
// nodes. The prepare stage uses it for dry derivation; the sync engine uses
// it to resolve breadcrumbs to live group ids and to create missing
// segments. Nodes reference each other through ids only — no pointers, so a
// malformed parent link can never form an unbounded cycle in memory.
package tree

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Node is one group in the hierarchy.
type Node struct {
	ID       int
	Name     string
	ParentID int
}

// Creator creates a group under a parent and returns the new group id. The
// timecamp API adapter satisfies this.
type Creator interface {
	AddGroup(ctx context.Context, name string, parentID int) (int, error)
}

// Tree is an arena of nodes under a single root group. Child lookup is
// case-sensitive on the exact segment name; segments are expected to be
// normalised already.
type Tree struct {
	rootID   int
	nodes    map[int]Node
	children map[int]map[string]int
}

// New builds a Tree rooted at rootID from a flat node list. Nodes that do
// not descend from the root are kept in the arena but never reached by path
// lookups.
func New(rootID int, nodes []Node) *Tree {
	t := &Tree{
		rootID:   rootID,
		nodes:    make(map[int]Node, len(nodes)),
		children: make(map[int]map[string]int),
	}
	for _, n := range nodes {
		t.add(n)
	}
	return t
}

// RootID returns the configured root group id.
func (t *Tree) RootID() int { return t.rootID }

func (t *Tree) add(n Node) {
	t.nodes[n.ID] = n
	siblings, ok := t.children[n.ParentID]
	if !ok {
		siblings = make(map[string]int)
		t.children[n.ParentID] = siblings
	}
	siblings[n.Name] = n.ID
}

// LookupByPath resolves a slash-separated breadcrumb relative to the root.
// The empty path resolves to the root itself.
func (t *Tree) LookupByPath(path string) (int, bool) {
	current := t.rootID
	if path == "" {
		return current, true
	}
	for _, segment := range strings.Split(path, "/") {
		id, ok := t.children[current][segment]
		if !ok {
			return 0, false
		}
		current = id
	}
	return current, true
}

// EnsurePath resolves path, creating any missing segments through creator in
// parent-before-child order, and returns the id of the deepest segment.
// Created nodes are recorded so later lookups reuse them.
func (t *Tree) EnsurePath(ctx context.Context, path string, creator Creator) (int, error) {
	current := t.rootID
	if path == "" {
		return current, nil
	}
	for _, segment := range strings.Split(path, "/") {
		if id, ok := t.children[current][segment]; ok {
			current = id
			continue
		}
		id, err := creator.AddGroup(ctx, segment, current)
		if err != nil {
			return 0, fmt.Errorf("create group %q under %d: %w", segment, current, err)
		}
		t.add(Node{ID: id, Name: segment, ParentID: current})
		current = id
	}
	return current, nil
}

// ChildrenOf returns the direct children of id, sorted by name for
// deterministic iteration.
func (t *Tree) ChildrenOf(id int) []Node {
	names := make([]string, 0, len(t.children[id]))
	for name := range t.children[id] {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Node, 0, len(names))
	for _, name := range names {
		result = append(result, t.nodes[t.children[id][name]])
	}
	return result
}

// Lookup returns the node stored under id.
func (t *Tree) Lookup(id int) (Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}
