// Package workflow models a ComfyUI API-format workflow: a JSON object
// mapping node ids to node configurations. The graph structure is owned by
// the server and treated as opaque here, except for two well-known inputs
// (sampler seed, prompt text) that are overwritten before submission.
package workflow

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
)

// MaxSeed is the upper bound (inclusive) for injected sampler seeds.
const MaxSeed = 1<<32 - 1

// Workflow is an opaque node graph keyed by node id.
type Workflow map[string]any

// Lookup reports the outcome of resolving a node/input path. The three
// states are logged distinctly by callers; none of them is an error.
type Lookup int

const (
	// Found means the node, its inputs object, and the named input all exist.
	Found Lookup = iota
	// Absent means the node, its inputs object, or the named input is missing.
	Absent
	// WrongShape means the path exists but is not the expected JSON object.
	WrongShape
)

func (l Lookup) String() string {
	switch l {
	case Found:
		return "found"
	case Absent:
		return "absent"
	case WrongShape:
		return "wrong-shape"
	default:
		return fmt.Sprintf("lookup(%d)", int(l))
	}
}

// Load reads an API-format workflow file.
func Load(path string) (Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}
	return wf, nil
}

// Input resolves the named input of a node.
func (wf Workflow) Input(node, name string) (any, Lookup) {
	raw, ok := wf[node]
	if !ok {
		return nil, Absent
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, WrongShape
	}
	rawInputs, ok := obj["inputs"]
	if !ok {
		return nil, Absent
	}
	inputs, ok := rawInputs.(map[string]any)
	if !ok {
		return nil, WrongShape
	}
	v, ok := inputs[name]
	if !ok {
		return nil, Absent
	}
	return v, Found
}

// SetInput overwrites the named input of a node. The input must already
// exist; injection never introduces parameters the template does not have.
func (wf Workflow) SetInput(node, name string, value any) Lookup {
	if _, state := wf.Input(node, name); state != Found {
		return state
	}
	wf[node].(map[string]any)["inputs"].(map[string]any)[name] = value
	return Found
}

// InjectSeed overwrites the seed input with a fresh uniform value in
// [1, MaxSeed]. Returns the chosen seed; it is meaningless unless the
// lookup state is Found.
func (wf Workflow) InjectSeed(node, input string, rng *rand.Rand) (int64, Lookup) {
	seed := 1 + rng.Int63n(MaxSeed)
	return seed, wf.SetInput(node, input, seed)
}

// InjectPrompt overwrites the prompt text input.
func (wf Workflow) InjectPrompt(node, input, text string) Lookup {
	return wf.SetInput(node, input, text)
}

// NodeCount reports the number of nodes in the graph.
func (wf Workflow) NodeCount() int {
	return len(wf)
}
