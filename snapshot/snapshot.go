package snapshot

import (
	"fmt"
)

// Tensor is a host-side copy of a numeric model parameter
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// NumElements returns the total number of elements implied by the shape
func (t *Tensor) NumElements() int {
	n := 1
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// clone returns a deep copy of the tensor that shares no memory with the original
func (t *Tensor) clone() *Tensor {
	if t == nil {
		return nil
	}
	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Shape: shape, Data: data}
}

// Entry is a single named item of model state: either a parameter tensor
// or an arbitrary (JSON-like) configuration value
type Entry struct {
	Name   string      `json:"name"`
	Tensor *Tensor     `json:"tensor,omitempty"`
	Value  interface{} `json:"value,omitempty"`
}

// State is an ordered mapping from entry name to entry, preserving
// insertion order the way a model enumerates its parameters
type State struct {
	entries []Entry
	index   map[string]int
}

// NewState creates an empty state
func NewState() *State {
	return &State{
		entries: make([]Entry, 0),
		index:   make(map[string]int),
	}
}

// SetTensor adds or replaces a tensor entry. Replacing keeps the
// entry's original position in insertion order
func (s *State) SetTensor(name string, t *Tensor) {
	s.set(Entry{Name: name, Tensor: t})
}

// SetValue adds or replaces a non-tensor entry
func (s *State) SetValue(name string, v interface{}) {
	s.set(Entry{Name: name, Value: v})
}

func (s *State) set(e Entry) {
	if i, ok := s.index[e.Name]; ok {
		s.entries[i] = e
		return
	}
	s.index[e.Name] = len(s.entries)
	s.entries = append(s.entries, e)
}

// Len returns the number of entries
func (s *State) Len() int {
	return len(s.entries)
}

// Names returns entry names in insertion order
func (s *State) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

// Tensor returns the named tensor entry, or nil if absent or non-tensor
func (s *State) Tensor(name string) *Tensor {
	if i, ok := s.index[name]; ok {
		return s.entries[i].Tensor
	}
	return nil
}

// Value returns the named non-tensor entry and whether it exists
func (s *State) Value(name string) (interface{}, bool) {
	if i, ok := s.index[name]; ok && s.entries[i].Tensor == nil {
		return s.entries[i].Value, true
	}
	return nil, false
}

// Entries returns the entries in insertion order. The returned slice is
// shared with the state; callers must not modify it
func (s *State) Entries() []Entry {
	return s.entries
}

// Clone returns a deep copy of the state. Tensor data is copied into
// fresh slices and non-tensor values are deep-copied, so later mutation
// of the source (or of a live model that produced it) cannot change the
// clone
func (s *State) Clone() (*State, error) {
	out := NewState()
	for _, e := range s.entries {
		if e.Tensor != nil {
			out.SetTensor(e.Name, e.Tensor.clone())
			continue
		}
		v, err := deepCopyValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to copy state entry %q: %v", e.Name, err)
		}
		out.SetValue(e.Name, v)
	}
	return out, nil
}

// Stateful is the capability set a model must expose for snapshotting.
// StateDict may return a view that aliases live model memory; Capture
// takes care of detaching it
type Stateful interface {
	// StateDict returns the model's current parameter state in a stable
	// enumeration order
	StateDict() *State

	// LoadStateDict overwrites the model's current state in place
	LoadStateDict(state *State) error
}

// Capture produces a detached, host-side copy of the model's state.
// The returned snapshot never aliases live model memory: mutating the
// model afterwards does not change it
func Capture(model Stateful) (*State, error) {
	state, err := model.StateDict().Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to capture model state: %v", err)
	}
	return state, nil
}

// Restore overwrites the model's state in place with a copy of the
// snapshot's contents. The snapshot itself stays untouched and can be
// restored again
func Restore(model Stateful, state *State) error {
	copied, err := state.Clone()
	if err != nil {
		return fmt.Errorf("failed to copy snapshot for restore: %v", err)
	}
	if err := model.LoadStateDict(copied); err != nil {
		return fmt.Errorf("failed to load state into model: %v", err)
	}
	return nil
}

// deepCopyValue copies an arbitrary JSON-like value. Scalars are copied
// by value; slices and maps are copied recursively
func deepCopyValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val, nil
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	case []float32:
		out := make([]float32, len(val))
		copy(out, val)
		return out, nil
	case []float64:
		out := make([]float64, len(val))
		copy(out, val)
		return out, nil
	case []int:
		out := make([]int, len(val))
		copy(out, val)
		return out, nil
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			copied, err := deepCopyValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = copied
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			copied, err := deepCopyValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = copied
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
