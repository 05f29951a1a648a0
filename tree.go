package strata

import (
	"fmt"

	"github.com/charmbracelet/lipgloss/tree"
)

// Tree renders an instance's section hierarchy as an indented tree, with
// one line per leaf. Absent values render as the Missing sentinel. With
// includeTypes, each leaf also shows its declared type.
func Tree(c *Config, includeTypes bool) string {
	return buildTree(c, c.schema.name, includeTypes).String()
}

func buildTree(c *Config, label string, includeTypes bool) *tree.Tree {
	t := tree.Root(label)
	for _, name := range c.schema.order {
		if child, ok := c.children[name]; ok {
			t.Child(buildTree(child, name, includeTypes))
			continue
		}
		df, ok := c.schema.fields[name].(*DataField)
		if !ok {
			continue
		}
		value := c.values[name]
		if includeTypes {
			t.Child(fmt.Sprintf("%s [%s]: %v", name, df.Type(), value))
		} else {
			t.Child(fmt.Sprintf("%s: %v", name, value))
		}
	}
	return t
}
