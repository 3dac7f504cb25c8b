package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Format defines the on-disk serialization format for snapshots
type Format int

const (
	// FormatJSON stores the snapshot as human-readable JSON
	FormatJSON Format = iota
	// FormatBinary stores the snapshot as a compact protobuf message
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// snapshotFile is the JSON envelope written to disk
type snapshotFile struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

const fileVersion = "1.0.0"

// Saver persists captured snapshots to disk in the configured format
type Saver struct {
	format Format
}

// NewSaver creates a snapshot saver for the specified format
func NewSaver(format Format) *Saver {
	return &Saver{format: format}
}

// Save writes the snapshot to path
func (sv *Saver) Save(state *State, path string) error {
	switch sv.format {
	case FormatJSON:
		return sv.saveJSON(state, path)
	case FormatBinary:
		return sv.saveBinary(state, path)
	default:
		return fmt.Errorf("unsupported snapshot format: %s", sv.format.String())
	}
}

// Load reads a snapshot from path
func (sv *Saver) Load(path string) (*State, error) {
	switch sv.format {
	case FormatJSON:
		return sv.loadJSON(path)
	case FormatBinary:
		return sv.loadBinary(path)
	default:
		return nil, fmt.Errorf("unsupported snapshot format: %s", sv.format.String())
	}
}

func (sv *Saver) saveJSON(state *State, path string) error {
	file := snapshotFile{
		Version:   fileVersion,
		CreatedAt: time.Now(),
		Entries:   state.Entries(),
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %v", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %v", err)
	}

	return nil
}

func (sv *Saver) loadJSON(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %v", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}

	state := NewState()
	for _, e := range file.Entries {
		state.set(e)
	}
	return state, nil
}

func (sv *Saver) saveBinary(state *State, path string) error {
	msg, err := stateToProto(state)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %v", err)
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %v", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %v", err)
	}

	return nil
}

func (sv *Saver) loadBinary(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %v", err)
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}

	return stateFromProto(&msg)
}

// stateToProto encodes the state as a structpb.Struct so it can be
// serialized with the protobuf wire format without generated code
func stateToProto(state *State) (*structpb.Struct, error) {
	entries := make([]*structpb.Value, 0, state.Len())

	for _, e := range state.Entries() {
		fields := map[string]*structpb.Value{
			"name": structpb.NewStringValue(e.Name),
		}

		if e.Tensor != nil {
			shape := make([]*structpb.Value, len(e.Tensor.Shape))
			for i, dim := range e.Tensor.Shape {
				shape[i] = structpb.NewNumberValue(float64(dim))
			}
			data := make([]*structpb.Value, len(e.Tensor.Data))
			for i, v := range e.Tensor.Data {
				data[i] = structpb.NewNumberValue(float64(v))
			}
			fields["shape"] = structpb.NewListValue(&structpb.ListValue{Values: shape})
			fields["data"] = structpb.NewListValue(&structpb.ListValue{Values: data})
		} else {
			val, err := structpb.NewValue(normalizeValue(e.Value))
			if err != nil {
				return nil, fmt.Errorf("entry %q: %v", e.Name, err)
			}
			fields["value"] = val
		}

		entries = append(entries, structpb.NewStructValue(&structpb.Struct{Fields: fields}))
	}

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"version": structpb.NewStringValue(fileVersion),
			"entries": structpb.NewListValue(&structpb.ListValue{Values: entries}),
		},
	}, nil
}

func stateFromProto(msg *structpb.Struct) (*State, error) {
	entriesVal, ok := msg.Fields["entries"]
	if !ok {
		return nil, fmt.Errorf("snapshot has no entries field")
	}
	list := entriesVal.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("snapshot entries field is not a list")
	}

	state := NewState()
	for i, item := range list.Values {
		entry := item.GetStructValue()
		if entry == nil {
			return nil, fmt.Errorf("snapshot entry %d is not a struct", i)
		}

		name := entry.Fields["name"].GetStringValue()
		if name == "" {
			return nil, fmt.Errorf("snapshot entry %d has no name", i)
		}

		if dataVal, ok := entry.Fields["data"]; ok {
			shapeList := entry.Fields["shape"].GetListValue()
			dataList := dataVal.GetListValue()
			if shapeList == nil || dataList == nil {
				return nil, fmt.Errorf("snapshot entry %q has malformed tensor", name)
			}
			shape := make([]int, len(shapeList.Values))
			for j, v := range shapeList.Values {
				shape[j] = int(v.GetNumberValue())
			}
			data := make([]float32, len(dataList.Values))
			for j, v := range dataList.Values {
				data[j] = float32(v.GetNumberValue())
			}
			state.SetTensor(name, &Tensor{Shape: shape, Data: data})
			continue
		}

		valField, ok := entry.Fields["value"]
		if !ok {
			return nil, fmt.Errorf("snapshot entry %q has neither tensor nor value", name)
		}
		state.SetValue(name, valField.AsInterface())
	}

	return state, nil
}

// normalizeValue converts slice types structpb cannot represent directly
// into []interface{} of float64/string
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []float32:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = float64(item)
		}
		return out
	case []float64:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case []int:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = float64(item)
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	default:
		return v
	}
}
