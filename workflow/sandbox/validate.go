package sandbox

import (
	"fmt"
	"sort"
	"strings"
)

// deniedNames expose interpreter state or the type hierarchy in the
// languages these expressions are usually written for. They are rejected
// even when a caller binds a value under the same name.
var deniedNames = nameSet(
	"__import__", "__builtins__", "__class__", "__dict__", "__globals__", "__subclasses__",
	"globals", "locals", "vars", "dir",
	"getattr", "setattr", "delattr", "hasattr",
	"eval", "exec", "compile", "open",
	"type", "object", "super",
	"breakpoint", "help", "memoryview",
)

func nameSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// DeniedNames returns the sorted deny-list.
func DeniedNames() []string {
	out := make([]string, 0, len(deniedNames))
	for name := range deniedNames {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func isDunder(name string) bool {
	return strings.HasPrefix(name, "__")
}

// validate walks the tree in source order and returns the first violation.
func validate(n node) error {
	switch n := n.(type) {
	case *nameNode:
		if deniedNames[n.name] || isDunder(n.name) {
			return &Violation{Construct: "name", Detail: fmt.Sprintf("reference to %q is not allowed", n.name), Pos: n.at}
		}
	case *attrNode:
		if isDunder(n.name) {
			return &Violation{Construct: "attribute", Detail: fmt.Sprintf("access to %q is not allowed", n.name), Pos: n.at}
		}
	case *indexNode:
		if lit, ok := n.index.(*literalNode); ok {
			if s, ok := lit.value.(string); ok && isDunder(s) {
				return &Violation{Construct: "subscript", Detail: fmt.Sprintf("key %q is not allowed", s), Pos: n.at}
			}
		}
	case *callNode:
		name, ok := n.fn.(*nameNode)
		if !ok {
			return &Violation{Construct: "call", Detail: "only allow-listed functions may be called", Pos: n.at}
		}
		if deniedNames[name.name] || isDunder(name.name) {
			return &Violation{Construct: "call", Detail: fmt.Sprintf("call to %q is not allowed", name.name), Pos: name.at}
		}
		if _, ok := builtins[name.name]; !ok {
			return &Violation{Construct: "call", Detail: fmt.Sprintf("%q is not an allow-listed function", name.name), Pos: name.at}
		}
		// The callee is resolved against builtins, never against bindings.
		for _, arg := range n.args {
			if err := validate(arg); err != nil {
				return err
			}
		}
		return nil
	}

	for _, child := range children(n) {
		if err := validate(child); err != nil {
			return err
		}
	}
	return nil
}

// freeNames collects names the expression reads from bindings, excluding callees.
func freeNames(n node, seen map[string]bool, out *[]string) {
	switch n := n.(type) {
	case *nameNode:
		if !seen[n.name] {
			seen[n.name] = true
			*out = append(*out, n.name)
		}
		return
	case *callNode:
		for _, arg := range n.args {
			freeNames(arg, seen, out)
		}
		return
	}
	for _, child := range children(n) {
		freeNames(child, seen, out)
	}
}
