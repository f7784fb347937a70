package utils

import (
	"fmt"
	"strings"

	goeval "github.com/edisonguo/govaluate"
)

// BandExpressions holds the compiled per-pixel arithmetic requested for
// a cube. Plain band names pass through unparsed; anything else is a
// govaluate expression over band variables, optionally named with
// "name=expression".
type BandExpressions struct {
	ExprText    []string
	ExprNames   []string
	Expressions []*goeval.EvaluableExpression
	VarList     []string
	ExprVarRef  [][]string
}

const bandNameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"

func isBandName(expr string) bool {
	if len(expr) == 0 {
		return false
	}
	if expr[0] >= '0' && expr[0] <= '9' {
		return false
	}
	for _, c := range expr {
		if !strings.ContainsRune(bandNameChars, c) {
			return false
		}
	}
	return true
}

func ParseBandExpressions(bands []string) (*BandExpressions, error) {
	bandExpr := &BandExpressions{}
	varFound := make(map[string]bool)

	for _, bandRaw := range bands {
		band := strings.TrimSpace(bandRaw)
		if len(band) == 0 {
			continue
		}

		name := band
		body := band
		if idx := strings.Index(band, "="); idx > 0 && idx+1 < len(band) && band[idx+1] != '=' {
			name = strings.TrimSpace(band[:idx])
			body = strings.TrimSpace(band[idx+1:])
			if !isBandName(name) {
				return nil, fmt.Errorf("invalid band expression name: %v", name)
			}
		}

		bandExpr.ExprText = append(bandExpr.ExprText, body)
		bandExpr.ExprNames = append(bandExpr.ExprNames, name)

		if isBandName(body) {
			bandExpr.Expressions = append(bandExpr.Expressions, nil)
			bandExpr.ExprVarRef = append(bandExpr.ExprVarRef, []string{body})
			if !varFound[body] {
				varFound[body] = true
				bandExpr.VarList = append(bandExpr.VarList, body)
			}
			continue
		}

		expr, err := goeval.NewEvaluableExpression(body)
		if err != nil {
			return nil, fmt.Errorf("parsing error in band expression '%v': %v", body, err)
		}

		for _, token := range expr.Tokens() {
			if token.Kind == goeval.VARIABLE {
				varName, ok := token.Value.(string)
				if !ok {
					return nil, fmt.Errorf("variable token '%v' failed to cast string in expression '%v'", token.Value, body)
				}
				if !varFound[varName] {
					varFound[varName] = true
					bandExpr.VarList = append(bandExpr.VarList, varName)
				}
			}
		}

		bandExpr.Expressions = append(bandExpr.Expressions, expr)
		bandExpr.ExprVarRef = append(bandExpr.ExprVarRef, expr.Vars())
	}

	if len(bandExpr.ExprText) == 0 {
		return nil, fmt.Errorf("no band expressions found")
	}

	return bandExpr, nil
}

// EvaluateExpr runs one compiled expression against a set of band
// values. A nil expression is a plain band reference.
func (bandExpr *BandExpressions) EvaluateExpr(idx int, parameters map[string]interface{}) (float64, error) {
	if bandExpr.Expressions[idx] == nil {
		val, ok := parameters[bandExpr.ExprText[idx]]
		if !ok {
			return 0, fmt.Errorf("band %v not found", bandExpr.ExprText[idx])
		}
		fval, ok := val.(float64)
		if !ok {
			return 0, fmt.Errorf("band %v value failed to cast float64", bandExpr.ExprText[idx])
		}
		return fval, nil
	}

	result, err := bandExpr.Expressions[idx].Evaluate(parameters)
	if err != nil {
		return 0, fmt.Errorf("eval '%v' error: %v", bandExpr.ExprText[idx], err)
	}

	switch val := result.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("failed to cast eval result '%v' to float, %v", result, bandExpr.ExprText[idx])
	}
}
