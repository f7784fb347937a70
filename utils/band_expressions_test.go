package utils

import (
	"math"
	"testing"
)

func TestParseBandExpressions(t *testing.T) {
	bandExpr, err := ParseBandExpressions([]string{"red", "ndvi=(nir-red)/(nir+red)"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(bandExpr.ExprNames) != 2 {
		t.Fatalf("expected 2 expressions, actual %d", len(bandExpr.ExprNames))
	}
	if bandExpr.ExprNames[0] != "red" || bandExpr.ExprNames[1] != "ndvi" {
		t.Errorf("wrong expression names: %v", bandExpr.ExprNames)
	}
	if bandExpr.Expressions[0] != nil {
		t.Errorf("plain band reference must not compile an expression")
	}
	if bandExpr.Expressions[1] == nil {
		t.Errorf("arithmetic expression must compile")
	}
	if len(bandExpr.VarList) != 2 {
		t.Errorf("expected vars [red nir], actual %v", bandExpr.VarList)
	}
}

func TestEvaluateExpr(t *testing.T) {
	bandExpr, err := ParseBandExpressions([]string{"ndvi=(nir-red)/(nir+red)"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	val, err := bandExpr.EvaluateExpr(0, map[string]interface{}{"nir": 0.6, "red": 0.2})
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	// the expression engine evaluates arithmetic at float32 precision
	if math.Abs(val-0.5) > 1e-6 {
		t.Errorf("expected 0.5, actual %v", val)
	}
}

func TestEvaluateBooleanExpr(t *testing.T) {
	bandExpr, err := ParseBandExpressions([]string{"red > 100"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	val, err := bandExpr.EvaluateExpr(0, map[string]interface{}{"red": 150.0})
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if val != 1 {
		t.Errorf("expected true to map to 1, actual %v", val)
	}
}

func TestParseBandExpressionsErrors(t *testing.T) {
	if _, err := ParseBandExpressions([]string{}); err == nil {
		t.Errorf("empty band list must fail")
	}
	if _, err := ParseBandExpressions([]string{"x=(nir"}); err == nil {
		t.Errorf("unbalanced expression must fail")
	}
	if _, err := ParseBandExpressions([]string{"a b=nir+red"}); err == nil {
		t.Errorf("invalid expression name must fail")
	}
}
