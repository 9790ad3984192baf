package fieldpath

import "github.com/dgallion1/docreview/internal/fieldtree"

// Resolve finds the leaf named by path in tree. Rules apply in order:
//
//  1. path is a direct key of tree holding a leaf;
//  2. path names a sequence element: its base is a direct key holding a
//     sequence, or else a dotted base walked as nested maps ending in one;
//  3. a dotted path is walked as nested maps down to its last key;
//  4. otherwise nothing is found.
//
// Resolution never creates structure and a missing ancestor is simply not found.
func Resolve(tree *fieldtree.Map, path string) (*fieldtree.Field, bool) {
	if tree == nil || path == "" {
		return nil, false
	}

	if node, ok := tree.Get(path); ok {
		if f, ok := node.Field(); ok {
			return f, true
		}
	}

	p := Parse(path)
	if p.IsElement {
		if node, ok := tree.Get(p.Base); ok && inRange(node, p.Index) {
			return element(node, p.Index)
		}
		if dotted(p.Base) {
			node, ok := descend(tree, Segments(p.Base))
			if ok && inRange(node, p.Index) {
				return element(node, p.Index)
			}
		}
		return nil, false
	}

	if dotted(path) {
		segs := Segments(path)
		parent, ok := descend(tree, segs[:len(segs)-1])
		if !ok {
			return nil, false
		}
		m, ok := parent.Map()
		if !ok {
			return nil, false
		}
		node, ok := m.Get(segs[len(segs)-1])
		if !ok {
			return nil, false
		}
		return node.Field()
	}
	return nil, false
}

// descend follows keys through nested maps and returns the node reached.
func descend(tree *fieldtree.Map, keys []string) (*fieldtree.Node, bool) {
	current := fieldtree.MapNode(tree)
	for _, key := range keys {
		m, ok := current.Map()
		if !ok {
			return nil, false
		}
		next, ok := m.Get(key)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func inRange(node *fieldtree.Node, i int) bool {
	items, ok := node.Items()
	return ok && i >= 0 && i < len(items)
}

func element(node *fieldtree.Node, i int) (*fieldtree.Field, bool) {
	items, _ := node.Items()
	return items[i].Field()
}
