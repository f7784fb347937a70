package operator

import (
	"fmt"
	"math"

	"golang.org/x/net/context"

	"github.com/nci/gocube/processor"
	"github.com/nci/gocube/utils"
)

// ApplyNode evaluates per-pixel band arithmetic, producing one output
// band per expression. Any NaN input referenced by an expression makes
// the output cell NaN.
type ApplyNode struct {
	input Node
	expr  *utils.BandExpressions
}

// Apply appends a band arithmetic node. Expressions follow the
// "name=expression" convention; plain band names pass through.
func (g *Graph) Apply(input Node, expressions []string) (Node, error) {
	bandExpr, err := utils.ParseBandExpressions(expressions)
	if err != nil {
		return nil, &utils.ConfigurationError{Reason: err.Error()}
	}
	return g.add(&ApplyNode{input: input, expr: bandExpr}), nil
}

func (n *ApplyNode) Label() string {
	return fmt.Sprintf("apply(%v)", n.expr.ExprText)
}

func (n *ApplyNode) Inputs() []Node { return []Node{n.input} }

func (n *ApplyNode) Compute(ctx context.Context, inputs []*processor.Cube) (*processor.Cube, error) {
	in := inputs[0]

	bandIdx := make(map[string]int)
	for i, b := range in.Bands {
		bandIdx[b] = i
	}
	for _, v := range n.expr.VarList {
		if _, ok := bandIdx[v]; !ok {
			return nil, fmt.Errorf("expression references unknown band '%s'", v)
		}
	}

	out := &processor.Cube{
		View:     in.View,
		Bands:    n.expr.ExprNames,
		Times:    in.Times,
		Height:   in.Height,
		Width:    in.Width,
		Failures: in.Failures,
		Data:     make([]float64, len(n.expr.ExprNames)*len(in.Times)*in.Height*in.Width),
	}

	plane := len(in.Times) * in.Height * in.Width
	params := make(map[string]interface{}, len(n.expr.VarList))
	nan := math.NaN()

	for c := 0; c < plane; c++ {
		for i := range n.expr.ExprNames {
			if n.expr.Expressions[i] == nil {
				out.Data[i*plane+c] = in.Data[bandIdx[n.expr.ExprText[i]]*plane+c]
				continue
			}

			valid := true
			for _, v := range n.expr.ExprVarRef[i] {
				val := in.Data[bandIdx[v]*plane+c]
				if math.IsNaN(val) {
					valid = false
					break
				}
				params[v] = val
			}
			if !valid {
				out.Data[i*plane+c] = nan
				continue
			}

			val, err := n.expr.EvaluateExpr(i, params)
			if err != nil {
				return nil, err
			}
			out.Data[i*plane+c] = val
		}
	}

	return out, nil
}

// FilterNode blanks every band of the cells where a boolean predicate
// over band values does not hold. Cells with NaN in any referenced
// band are blanked as well.
type FilterNode struct {
	input Node
	expr  *utils.BandExpressions
}

// FilterPixel appends a per-pixel predicate node.
func (g *Graph) FilterPixel(input Node, predicate string) (Node, error) {
	bandExpr, err := utils.ParseBandExpressions([]string{predicate})
	if err != nil {
		return nil, &utils.ConfigurationError{Reason: err.Error()}
	}
	if bandExpr.Expressions[0] == nil {
		return nil, &utils.ConfigurationError{
			Reason: fmt.Sprintf("filter predicate '%s' is a bare band name", predicate)}
	}
	return g.add(&FilterNode{input: input, expr: bandExpr}), nil
}

func (n *FilterNode) Label() string {
	return fmt.Sprintf("filter(%s)", n.expr.ExprText[0])
}

func (n *FilterNode) Inputs() []Node { return []Node{n.input} }

func (n *FilterNode) Compute(ctx context.Context, inputs []*processor.Cube) (*processor.Cube, error) {
	in := inputs[0]

	bandIdx := make(map[string]int)
	for i, b := range in.Bands {
		bandIdx[b] = i
	}
	for _, v := range n.expr.VarList {
		if _, ok := bandIdx[v]; !ok {
			return nil, fmt.Errorf("predicate references unknown band '%s'", v)
		}
	}

	out := &processor.Cube{
		View:     in.View,
		Bands:    in.Bands,
		Times:    in.Times,
		Height:   in.Height,
		Width:    in.Width,
		Failures: in.Failures,
		Data:     make([]float64, len(in.Data)),
	}
	copy(out.Data, in.Data)

	plane := len(in.Times) * in.Height * in.Width
	params := make(map[string]interface{}, len(n.expr.VarList))
	nan := math.NaN()

	for c := 0; c < plane; c++ {
		keep := true
		for _, v := range n.expr.ExprVarRef[0] {
			val := in.Data[bandIdx[v]*plane+c]
			if math.IsNaN(val) {
				keep = false
				break
			}
			params[v] = val
		}

		if keep {
			val, err := n.expr.EvaluateExpr(0, params)
			if err != nil {
				return nil, err
			}
			keep = val != 0
		}

		if !keep {
			for b := range out.Bands {
				out.Data[b*plane+c] = nan
			}
		}
	}

	return out, nil
}
