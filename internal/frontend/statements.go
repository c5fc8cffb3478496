package frontend

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/foundrylab/pyfoundry/internal/pysrc"
)

// topLevelStatements extracts one record per top-level statement from a
// parsed module. Definitions carry their declared name.
func topLevelStatements(root *tree_sitter.Node, source []byte) []pysrc.Statement {
	count := root.NamedChildCount()
	stmts := make([]pysrc.Statement, 0, count)
	for i := uint(0); i < count; i++ {
		child := root.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		stmts = append(stmts, pysrc.Statement{
			Kind:      child.Kind(),
			Name:      statementName(child, source),
			StartLine: safeRowToLine(child.StartPosition().Row),
			EndLine:   safeRowToLine(child.EndPosition().Row),
		})
	}
	return stmts
}

// statementName returns the declared name for def/class statements,
// looking through decorators, and "" for everything else.
func statementName(node *tree_sitter.Node, source []byte) string {
	kind := node.Kind()
	if kind == "decorated_definition" {
		if def := node.ChildByFieldName("definition"); def != nil {
			node = def
			kind = def.Kind()
		}
	}
	switch kind {
	case "function_definition", "class_definition":
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			return nodeText(nameNode, source)
		}
	}
	return ""
}

// moduleDocstring extracts the leading docstring of a module: a string
// expression as the first statement (PEP 257).
func moduleDocstring(root *tree_sitter.Node, source []byte) string {
	if root.NamedChildCount() == 0 {
		return ""
	}
	first := root.NamedChild(0)
	if first == nil || first.Kind() != "expression_statement" {
		return ""
	}
	if first.NamedChildCount() == 0 {
		return ""
	}
	strNode := first.NamedChild(0)
	if strNode == nil || strNode.Kind() != "string" {
		return ""
	}
	return cleanDocstring(nodeText(strNode, source))
}

// cleanDocstring removes quote delimiters and normalizes indentation.
func cleanDocstring(s string) string {
	for _, delim := range []string{`"""`, `'''`} {
		if strings.HasPrefix(s, delim) && strings.HasSuffix(s, delim) && len(s) >= 6 {
			s = s[3 : len(s)-3]
			break
		}
	}
	for _, delim := range []string{`"`, `'`} {
		if strings.HasPrefix(s, delim) && strings.HasSuffix(s, delim) && len(s) >= 2 {
			s = s[1 : len(s)-1]
			break
		}
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= 1 {
		return strings.TrimSpace(s)
	}
	// Dedent: find minimum indentation of non-empty continuation lines.
	minIndent := -1
	for _, line := range lines[1:] {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if minIndent < 0 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= minIndent {
				lines[i] = lines[i][minIndent:]
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
