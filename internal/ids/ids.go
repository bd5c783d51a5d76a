// Package ids generates order numbers. Snowflake ids are time-sortable and
// unique across instances, which makes them safe correlation ids for the
// RE field of hardware commands.
package ids

import "github.com/bwmarrin/snowflake"

// Generator produces order numbers.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator builds a generator for the given instance number (0-1023).
func NewGenerator(instance int64) (*Generator, error) {
	node, err := snowflake.NewNode(instance)
	if err != nil {
		return nil, err
	}
	return &Generator{node: node}, nil
}

// OrderNo returns a fresh, globally unique order number.
func (g *Generator) OrderNo() string {
	return g.node.Generate().String()
}
