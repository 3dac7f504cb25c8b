package snapshot

import (
	"fmt"
	"reflect"
	"testing"
)

// testModel exposes its state dict as live aliases, the worst case the
// snapshotter has to handle
type testModel struct {
	weights []float32
	bias    []float32
	config  map[string]interface{}
}

func newTestModel() *testModel {
	return &testModel{
		weights: []float32{1, 2, 3, 4},
		bias:    []float32{0.5},
		config:  map[string]interface{}{"lr": 0.01, "layers": []interface{}{"dense1", "dense2"}},
	}
}

func (m *testModel) StateDict() *State {
	s := NewState()
	s.SetTensor("weights", &Tensor{Shape: []int{2, 2}, Data: m.weights})
	s.SetTensor("bias", &Tensor{Shape: []int{1}, Data: m.bias})
	s.SetValue("config", m.config)
	return s
}

func (m *testModel) LoadStateDict(s *State) error {
	w := s.Tensor("weights")
	b := s.Tensor("bias")
	if w == nil || b == nil {
		return fmt.Errorf("state missing tensors")
	}
	m.weights = w.Data
	m.bias = b.Data
	if v, ok := s.Value("config"); ok {
		m.config = v.(map[string]interface{})
	}
	return nil
}

func TestStateInsertionOrder(t *testing.T) {
	s := NewState()
	s.SetTensor("c", &Tensor{Shape: []int{1}, Data: []float32{3}})
	s.SetTensor("a", &Tensor{Shape: []int{1}, Data: []float32{1}})
	s.SetValue("b", 2)
	// replacing an entry keeps its position
	s.SetTensor("c", &Tensor{Shape: []int{1}, Data: []float32{30}})

	want := []string{"c", "a", "b"}
	if !reflect.DeepEqual(s.Names(), want) {
		t.Errorf("expected order %v, got %v", want, s.Names())
	}
	if s.Tensor("c").Data[0] != 30 {
		t.Errorf("expected replaced tensor value 30, got %v", s.Tensor("c").Data[0])
	}
	if s.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", s.Len())
	}
}

func TestCaptureDetachesFromModel(t *testing.T) {
	model := newTestModel()
	state, err := Capture(model)
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	// mutate the live model after the capture
	model.weights[0] = 100
	model.config["lr"] = 0.5

	if got := state.Tensor("weights").Data[0]; got != 1 {
		t.Errorf("snapshot aliased model weights: got %v, want 1", got)
	}
	cfg, _ := state.Value("config")
	if lr := cfg.(map[string]interface{})["lr"]; lr != 0.01 {
		t.Errorf("snapshot aliased model config: got %v, want 0.01", lr)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	model := newTestModel()
	state, err := Capture(model)
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	if err := Restore(model, state); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	if !reflect.DeepEqual(model.weights, []float32{1, 2, 3, 4}) {
		t.Errorf("weights changed by round trip: %v", model.weights)
	}
	if model.config["lr"] != 0.01 {
		t.Errorf("config changed by round trip: %v", model.config)
	}
}

func TestRestoreDoesNotAliasSnapshot(t *testing.T) {
	model := newTestModel()
	state, err := Capture(model)
	if err != nil {
		t.Fatalf("capture failed: %v", err)
	}

	if err := Restore(model, state); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	// mutating the model after restore must not corrupt the snapshot,
	// so it can be restored again
	model.weights[0] = 42
	if got := state.Tensor("weights").Data[0]; got != 1 {
		t.Errorf("snapshot corrupted by post-restore mutation: got %v", got)
	}

	if err := Restore(model, state); err != nil {
		t.Fatalf("second restore failed: %v", err)
	}
	if model.weights[0] != 1 {
		t.Errorf("second restore produced %v, want 1", model.weights[0])
	}
}

func TestCloneDeepCopiesValues(t *testing.T) {
	s := NewState()
	s.SetValue("nested", map[string]interface{}{
		"list":  []interface{}{1.0, 2.0},
		"label": "run-1",
	})
	s.SetValue("steps", []int{1, 2, 3})

	clone, err := s.Clone()
	if err != nil {
		t.Fatalf("clone failed: %v", err)
	}

	orig, _ := s.Value("nested")
	orig.(map[string]interface{})["list"].([]interface{})[0] = 99.0

	copied, _ := clone.Value("nested")
	if got := copied.(map[string]interface{})["list"].([]interface{})[0]; got != 1.0 {
		t.Errorf("clone aliased nested list: got %v", got)
	}
}

func TestCloneRejectsUnsupportedValues(t *testing.T) {
	s := NewState()
	s.SetValue("bad", make(chan int))

	if _, err := s.Clone(); err == nil {
		t.Errorf("expected error for unsupported value type")
	}
}

func TestTensorNumElements(t *testing.T) {
	tensor := &Tensor{Shape: []int{2, 3, 4}, Data: make([]float32, 24)}
	if tensor.NumElements() != 24 {
		t.Errorf("expected 24 elements, got %d", tensor.NumElements())
	}
}
