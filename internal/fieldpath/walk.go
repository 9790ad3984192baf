package fieldpath

import "github.com/dgallion1/docreview/internal/fieldtree"

// Walk visits every addressable leaf of tree depth-first in document order,
// passing the path that Resolve maps back to the same leaf.
//
// Leaves of a sequence are named with the element form. Sequence elements that
// are not leaves are not descended into. A leaf whose path Resolve would map
// elsewhere, or nowhere, is not visited: a nested leaf named like a leaf stored
// directly under the root, or a leaf below a key that itself contains a dot,
// as in {"a.b": {"c": ...}}.
func Walk(tree *fieldtree.Map, fn func(path string, f *fieldtree.Field)) {
	if tree == nil {
		return
	}
	visit := func(path string, f *fieldtree.Field) {
		if got, ok := Resolve(tree, path); ok && got == f {
			fn(path, f)
		}
	}
	walkMap(tree, "", visit)
}

func walkMap(m *fieldtree.Map, prefix string, visit func(string, *fieldtree.Field)) {
	for _, key := range m.Keys() {
		node, _ := m.Get(key)
		path := Join(prefix, key)

		switch node.Kind() {
		case fieldtree.KindLeaf:
			f, _ := node.Field()
			visit(path, f)
		case fieldtree.KindSequence:
			items, _ := node.Items()
			for i, item := range items {
				if f, ok := item.Field(); ok {
					visit(Element(path, i), f)
				}
			}
		case fieldtree.KindMap:
			child, _ := node.Map()
			walkMap(child, path, visit)
		}
	}
}
