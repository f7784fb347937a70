package operator

import (
	"fmt"

	"golang.org/x/net/context"

	"github.com/nci/gocube/processor"
)

// Node is one step of a cube computation. Nodes are created through
// Graph methods and never mutated afterwards; building the graph does
// no pixel work.
type Node interface {
	Label() string
	Inputs() []Node
	Compute(ctx context.Context, inputs []*processor.Cube) (*processor.Cube, error)
}

// Graph is an append-only DAG of cube operations rooted at one or more
// collection sources. Evaluation is deferred until Materialize.
type Graph struct {
	pipeline *processor.CubePipeline
	nodes    []Node
}

func NewGraph(pipeline *processor.CubePipeline) *Graph {
	return &Graph{pipeline: pipeline}
}

func (g *Graph) add(n Node) Node {
	g.nodes = append(g.nodes, n)
	return n
}

// Size returns the number of nodes appended so far.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// Materialize evaluates the subgraph rooted at n. Shared ancestors are
// computed once per call.
func (g *Graph) Materialize(ctx context.Context, n Node) (*processor.Cube, error) {
	memo := make(map[Node]*processor.Cube)
	return g.eval(ctx, n, memo)
}

func (g *Graph) eval(ctx context.Context, n Node, memo map[Node]*processor.Cube) (*processor.Cube, error) {
	if cube, ok := memo[n]; ok {
		return cube, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var inputs []*processor.Cube
	for _, in := range n.Inputs() {
		cube, err := g.eval(ctx, in, memo)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, cube)
	}

	cube, err := n.Compute(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", n.Label(), err)
	}
	memo[n] = cube
	return cube, nil
}

// CollectionNode materializes a cube request through the pipeline.
type CollectionNode struct {
	pipeline *processor.CubePipeline
	request  *processor.CubeRequest
}

func (g *Graph) Collection(req *processor.CubeRequest) Node {
	return g.add(&CollectionNode{pipeline: g.pipeline, request: req})
}

func (n *CollectionNode) Label() string {
	return fmt.Sprintf("collection(%s)", n.request.Collection.Name)
}

func (n *CollectionNode) Inputs() []Node { return nil }

func (n *CollectionNode) Compute(ctx context.Context, inputs []*processor.Cube) (*processor.Cube, error) {
	return n.pipeline.Process(n.request)
}
