package frontend

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

var (
	grammarOnce sync.Once
	pyLanguage  *tree_sitter.Language
	parserPool  *sync.Pool
)

func initGrammar() {
	grammarOnce.Do(func() {
		pyLanguage = tree_sitter.NewLanguage(tree_sitter_python.Language())
		parserPool = &sync.Pool{
			New: func() any {
				p := tree_sitter.NewParser()
				if err := p.SetLanguage(pyLanguage); err != nil {
					panic(fmt.Sprintf("set language: %v", err))
				}
				return p
			},
		}
	})
}

// parseTree parses Python source into a tree-sitter AST. The caller must
// call tree.Close() when done. Parsers are pooled to avoid per-file
// allocation.
func parseTree(source []byte) (*tree_sitter.Tree, error) {
	initGrammar()

	p, _ := parserPool.Get().(*tree_sitter.Parser)
	if p == nil {
		return nil, fmt.Errorf("failed to get parser")
	}
	tree := p.Parse(source, nil)
	parserPool.Put(p)

	if tree == nil {
		return nil, fmt.Errorf("parse returned no tree")
	}
	return tree, nil
}

// findSyntaxError walks the tree for the first error or missing node and
// returns a human-readable message plus its 1-based line. ok is false
// when the tree is clean.
func findSyntaxError(root *tree_sitter.Node) (message string, line int, ok bool) {
	if !root.HasError() {
		return "", 0, false
	}
	walk(root, func(node *tree_sitter.Node) bool {
		if ok {
			return false
		}
		if !node.HasError() {
			return false
		}
		if node.IsError() {
			message, line, ok = "invalid syntax", safeRowToLine(node.StartPosition().Row), true
			return false
		}
		if node.IsMissing() {
			message = fmt.Sprintf("missing %s", node.Kind())
			line = safeRowToLine(node.StartPosition().Row)
			ok = true
			return false
		}
		return true
	})
	if !ok {
		// HasError with no reachable ERROR node still means a bad parse.
		message, line, ok = "invalid syntax", 1, true
	}
	return message, line, ok
}

// walk traverses the AST in depth-first order. Return false from fn to
// skip a node's children.
func walk(node *tree_sitter.Node, fn func(*tree_sitter.Node) bool) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil {
			walk(child, fn)
		}
	}
}

// nodeText returns the text content of a node.
func nodeText(node *tree_sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

func safeRowToLine(row uint) int {
	const maxInt = int(^uint(0) >> 1)
	if row > uint(maxInt-1) {
		return maxInt
	}
	return int(row) + 1
}
