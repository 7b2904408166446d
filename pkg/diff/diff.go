// Package diff computes and applies structural deltas between two versions
// of the same logical fragment. The content store uses it to persist
// incremental snapshots instead of full copies.
package diff

import (
	"encoding/json"
	"encoding/json/jsontext"
	"fmt"
	"reflect"
	"sort"
)

// Kind discriminates the delta representation.
type Kind string

const (
	// KindNone marks an empty delta: old and new are structurally equal.
	KindNone Kind = "none"

	// KindReplace carries a full replacement value.
	KindReplace Kind = "replace"

	// KindObject carries added/removed/changed key sets for map content.
	KindObject Kind = "object"

	// KindArray carries positional edits for list content.
	KindArray Kind = "array"
)

// Delta is a structural difference between two JSON values. Object deltas
// record key-level changes with recursive deltas for modified values; array
// deltas record positional edits plus an appended tail and the target
// length; everything else is a full replacement.
type Delta struct {
	Kind Kind `json:"kind"`

	// Value is the replacement value for KindReplace.
	Value any `json:"value,omitempty"`

	// Added maps new keys to their values (KindObject).
	Added map[string]any `json:"added,omitempty"`

	// Removed lists deleted keys in sorted order (KindObject).
	Removed []string `json:"removed,omitempty"`

	// Changed maps modified keys to their recursive deltas (KindObject).
	Changed map[string]*Delta `json:"changed,omitempty"`

	// Edits holds positional changes in ascending index order (KindArray).
	Edits []ArrayEdit `json:"edits,omitempty"`

	// Appended holds items past the old length (KindArray).
	Appended []any `json:"appended,omitempty"`

	// Len is the target array length after applying (KindArray).
	Len int `json:"len,omitempty"`
}

// ArrayEdit is a positional change at a single array index.
type ArrayEdit struct {
	Index int    `json:"index"`
	Delta *Delta `json:"delta"`
}

// Empty reports whether the delta carries no change.
func (d *Delta) Empty() bool {
	return d == nil || d.Kind == KindNone
}

// Diff computes the structural delta that transforms old into new. Both
// payloads must be valid JSON. The invariant Apply(old, Diff(old, new)) ==
// new holds for all inputs, modulo JSON canonicalization.
func Diff(old, new []byte) (*Delta, error) {
	oldVal, err := parse(old)
	if err != nil {
		return nil, fmt.Errorf("%w: old payload: %v", ErrNotStructured, err)
	}

	newVal, err := parse(new)
	if err != nil {
		return nil, fmt.Errorf("%w: new payload: %v", ErrNotStructured, err)
	}

	return diffValue(oldVal, newVal), nil
}

// Apply reconstructs the new payload from a base payload and a delta. The
// result is canonicalized so reconstructed bytes hash identically to the
// bytes the delta was computed from.
func Apply(base []byte, d *Delta) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil delta", ErrMalformedDelta)
	}

	baseVal, err := parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: base payload: %v", ErrNotStructured, err)
	}

	result, err := applyValue(baseVal, d)
	if err != nil {
		return nil, err
	}

	return marshalCanonical(result)
}

// Marshal serializes a delta for storage.
func (d *Delta) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Unmarshal parses a stored delta.
func Unmarshal(data []byte) (*Delta, error) {
	var d Delta
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDelta, err)
	}
	return &d, nil
}

func parse(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func marshalCanonical(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling applied value: %w", err)
	}

	j := jsontext.Value(data)
	if err := j.Canonicalize(); err != nil {
		return nil, fmt.Errorf("canonicalizing applied value: %w", err)
	}

	return []byte(j), nil
}

// diffValue dispatches on the shared structure of old and new.
func diffValue(old, new any) *Delta {
	if reflect.DeepEqual(old, new) {
		return &Delta{Kind: KindNone}
	}

	oldMap, oldIsMap := old.(map[string]any)
	newMap, newIsMap := new.(map[string]any)
	if oldIsMap && newIsMap {
		return diffObject(oldMap, newMap)
	}

	oldArr, oldIsArr := old.([]any)
	newArr, newIsArr := new.([]any)
	if oldIsArr && newIsArr {
		return diffArray(oldArr, newArr)
	}

	return &Delta{Kind: KindReplace, Value: new}
}

func diffObject(old, new map[string]any) *Delta {
	d := &Delta{Kind: KindObject}

	for k, newVal := range new {
		oldVal, exists := old[k]
		if !exists {
			if d.Added == nil {
				d.Added = make(map[string]any)
			}
			d.Added[k] = newVal
			continue
		}

		if !reflect.DeepEqual(oldVal, newVal) {
			if d.Changed == nil {
				d.Changed = make(map[string]*Delta)
			}
			d.Changed[k] = diffValue(oldVal, newVal)
		}
	}

	for k := range old {
		if _, exists := new[k]; !exists {
			d.Removed = append(d.Removed, k)
		}
	}
	sort.Strings(d.Removed)

	return d
}

func diffArray(old, new []any) *Delta {
	d := &Delta{Kind: KindArray, Len: len(new)}

	shared := len(old)
	if len(new) < shared {
		shared = len(new)
	}

	for i := 0; i < shared; i++ {
		if !reflect.DeepEqual(old[i], new[i]) {
			d.Edits = append(d.Edits, ArrayEdit{Index: i, Delta: diffValue(old[i], new[i])})
		}
	}

	if len(new) > len(old) {
		d.Appended = append(d.Appended, new[len(old):]...)
	}

	return d
}

func applyValue(base any, d *Delta) (any, error) {
	switch d.Kind {
	case KindNone:
		return base, nil

	case KindReplace:
		return d.Value, nil

	case KindObject:
		baseMap, ok := base.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: object delta against %T", ErrMalformedDelta, base)
		}
		return applyObject(baseMap, d)

	case KindArray:
		baseArr, ok := base.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: array delta against %T", ErrMalformedDelta, base)
		}
		return applyArray(baseArr, d)

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedDelta, d.Kind)
	}
}

func applyObject(base map[string]any, d *Delta) (any, error) {
	out := make(map[string]any, len(base)+len(d.Added))
	for k, v := range base {
		out[k] = v
	}

	for _, k := range d.Removed {
		delete(out, k)
	}

	for k, child := range d.Changed {
		cur, exists := out[k]
		if !exists {
			return nil, fmt.Errorf("%w: changed key %q missing from base", ErrMalformedDelta, k)
		}
		applied, err := applyValue(cur, child)
		if err != nil {
			return nil, err
		}
		out[k] = applied
	}

	for k, v := range d.Added {
		out[k] = v
	}

	return out, nil
}

func applyArray(base []any, d *Delta) (any, error) {
	keep := len(base)
	if d.Len < keep {
		keep = d.Len
	}

	out := make([]any, 0, d.Len)
	out = append(out, base[:keep]...)

	for _, edit := range d.Edits {
		if edit.Index < 0 || edit.Index >= len(out) {
			return nil, fmt.Errorf("%w: edit index %d out of range", ErrMalformedDelta, edit.Index)
		}
		applied, err := applyValue(out[edit.Index], edit.Delta)
		if err != nil {
			return nil, err
		}
		out[edit.Index] = applied
	}

	out = append(out, d.Appended...)

	if len(out) != d.Len {
		return nil, fmt.Errorf("%w: applied length %d, want %d", ErrMalformedDelta, len(out), d.Len)
	}

	return out, nil
}
