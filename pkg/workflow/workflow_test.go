package workflow

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func sampleWorkflow(t *testing.T) Workflow {
	t.Helper()
	body := `{
		"3": {"inputs": {"seed": 42, "steps": 20, "cfg": 4.5}, "class_type": "KSampler"},
		"6": {"inputs": {"text": "default prompt", "clip": ["4", 1]}, "class_type": "CLIPTextEncode"},
		"9": {"inputs": {"filename_prefix": "ComfyUI", "images": ["8", 0]}, "class_type": "SaveImage"}
	}`
	var wf Workflow
	if err := json.Unmarshal([]byte(body), &wf); err != nil {
		t.Fatal(err)
	}
	return wf
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.json")
	if err := os.WriteFile(path, []byte(`{"3": {"inputs": {"seed": 1}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	wf, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if wf.NodeCount() != 1 {
		t.Errorf("NodeCount = %d, want 1", wf.NodeCount())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("Expected error for missing workflow file")
	}
}

func TestInjectSeedFreshValues(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	seen := map[int64]bool{}
	for i := 0; i < 200; i++ {
		wf := sampleWorkflow(t)
		seed, state := wf.InjectSeed("3", "seed", rng)
		if state != Found {
			t.Fatalf("InjectSeed state = %v, want Found", state)
		}
		if seed < 1 || seed > MaxSeed {
			t.Fatalf("seed %d outside [1, 2^32-1]", seed)
		}
		got, _ := wf.Input("3", "seed")
		if got.(int64) != seed {
			t.Fatalf("workflow seed = %v, want %d", got, seed)
		}
		seen[seed] = true
	}
	if len(seen) < 190 {
		t.Errorf("Expected nearly all of 200 seeds distinct, got %d", len(seen))
	}
}

func TestInjectSkippedWhenPathAbsent(t *testing.T) {
	tests := []struct {
		name  string
		node  string
		input string
	}{
		{"missing node", "99", "seed"},
		{"missing input", "3", "noise_seed"},
		{"node without matching input", "9", "seed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := sampleWorkflow(t)
			before := sampleWorkflow(t)
			rng := rand.New(rand.NewSource(1))

			if _, state := wf.InjectSeed(tt.node, tt.input, rng); state != Absent {
				t.Errorf("InjectSeed state = %v, want Absent", state)
			}
			if state := wf.InjectPrompt(tt.node, tt.input, "x"); state != Absent {
				t.Errorf("InjectPrompt state = %v, want Absent", state)
			}
			if !reflect.DeepEqual(wf, before) {
				t.Error("Workflow modified despite absent injection path")
			}
		})
	}
}

func TestInjectWrongShape(t *testing.T) {
	var wf Workflow
	if err := json.Unmarshal([]byte(`{"3": "not an object", "6": {"inputs": [1, 2]}}`), &wf); err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	if _, state := wf.InjectSeed("3", "seed", rng); state != WrongShape {
		t.Errorf("node wrong shape: state = %v, want WrongShape", state)
	}
	if state := wf.InjectPrompt("6", "text", "x"); state != WrongShape {
		t.Errorf("inputs wrong shape: state = %v, want WrongShape", state)
	}
}

func TestInjectPromptOverwritesOnlyTarget(t *testing.T) {
	wf := sampleWorkflow(t)
	before := sampleWorkflow(t)

	if state := wf.InjectPrompt("6", "text", "noir city at dusk"); state != Found {
		t.Fatalf("InjectPrompt state = %v, want Found", state)
	}
	got, _ := wf.Input("6", "text")
	if got != "noir city at dusk" {
		t.Errorf("prompt = %v", got)
	}

	// Everything except the one injected field is untouched.
	before["6"].(map[string]any)["inputs"].(map[string]any)["text"] = "noir city at dusk"
	if !reflect.DeepEqual(wf, before) {
		t.Error("Injection modified fields outside the prompt path")
	}
}

func TestLookupString(t *testing.T) {
	if Found.String() != "found" || Absent.String() != "absent" || WrongShape.String() != "wrong-shape" {
		t.Error("Unexpected Lookup string values")
	}
}
