package earthengine

import "strconv"

// Expression is the serialized computation graph accepted by the Earth Engine REST API.
// Result names the entry of Values that is evaluated.
type Expression struct {
	Values map[string]*ValueNode `json:"values"`
	Result string                `json:"result"`
}

// ValueNode is exactly one of its fields.
type ValueNode struct {
	ConstantValue           interface{}         `json:"constantValue,omitempty"`
	ValueReference          string              `json:"valueReference,omitempty"`
	ArgumentReference       string              `json:"argumentReference,omitempty"`
	ArrayValue              *ArrayValue         `json:"arrayValue,omitempty"`
	DictionaryValue         *DictionaryValue    `json:"dictionaryValue,omitempty"`
	FunctionInvocationValue *FunctionInvocation `json:"functionInvocationValue,omitempty"`
	FunctionDefinitionValue *FunctionDefinition `json:"functionDefinitionValue,omitempty"`
}

type ArrayValue struct {
	Values []*ValueNode `json:"values"`
}

type DictionaryValue struct {
	Values map[string]*ValueNode `json:"values"`
}

type FunctionInvocation struct {
	FunctionName string                `json:"functionName"`
	Arguments    map[string]*ValueNode `json:"arguments"`
}

// FunctionDefinition is a lambda; Body is the key of its body in Expression.Values.
type FunctionDefinition struct {
	ArgumentNames []string `json:"argumentNames"`
	Body          string   `json:"body"`
}

type args map[string]*ValueNode

func invoke(name string, a args) *ValueNode {
	if a == nil {
		a = args{}
	}
	return &ValueNode{FunctionInvocationValue: &FunctionInvocation{FunctionName: name, Arguments: a}}
}

func constant(v interface{}) *ValueNode {
	return &ValueNode{ConstantValue: v}
}

func argument(name string) *ValueNode {
	return &ValueNode{ArgumentReference: name}
}

func dictionary(values map[string]*ValueNode) *ValueNode {
	return &ValueNode{DictionaryValue: &DictionaryValue{Values: values}}
}

// graph collects the nodes of one Expression. Function bodies live in the value
// table, so they get their own keys; the evaluated result is always "0".
type graph struct {
	values map[string]*ValueNode
}

func newGraph() *graph {
	return &graph{values: make(map[string]*ValueNode)}
}

// define registers body and returns a function definition node referring to it.
func (g *graph) define(body *ValueNode, argumentNames ...string) *ValueNode {
	key := strconv.Itoa(len(g.values) + 1)
	g.values[key] = body
	return &ValueNode{FunctionDefinitionValue: &FunctionDefinition{ArgumentNames: argumentNames, Body: key}}
}

func (g *graph) expression(result *ValueNode) *Expression {
	g.values["0"] = result
	return &Expression{Values: g.values, Result: "0"}
}
