// Package diff computes the field-level difference between a proposed
// fragment and the state already stored for the same company and path.
// An empty diff means the pipeline has nothing to save; a non-empty diff
// is the approval unit that travels with the save job.
package diff

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/currency"
)

// Op classifies a single field change.
type Op string

const (
	OpAdd    Op = "add"
	OpChange Op = "change"
	OpClear  Op = "clear"
)

// FieldChange is one changed field within a fragment.
type FieldChange struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Old   any    `json:"old,omitempty"`
	New   any    `json:"new,omitempty"`
}

// Result is the diff for one fragment path. RequiresApproval is set iff
// at least one field changed; save jobs must carry a Result with it set.
type Result struct {
	FragmentPath     string        `json:"fragmentPath"`
	Changes          []FieldChange `json:"changes,omitempty"`
	RequiresApproval bool          `json:"requiresApproval"`
}

// Empty reports whether the diff has no changes.
func (r Result) Empty() bool { return len(r.Changes) == 0 }

// Compare diffs proposed against existing at the given fragment path.
//
// Both values are compared through their JSON form, so tri-state fields
// behave per their marshalling: an absent field states no opinion and is
// skipped, an explicit null clears a stored value, anything else is
// compared under normalization. Fields present only on the existing side
// are left untouched.
func Compare(path string, existing, proposed any) (Result, error) {
	res := Result{FragmentPath: path}

	exRaw, err := json.Marshal(existing)
	if err != nil {
		return res, eris.Wrapf(err, "diff: marshal existing %s", path)
	}
	prRaw, err := json.Marshal(proposed)
	if err != nil {
		return res, eris.Wrapf(err, "diff: marshal proposed %s", path)
	}

	var exMap, prMap map[string]json.RawMessage
	exIsMap := json.Unmarshal(exRaw, &exMap) == nil
	prIsMap := json.Unmarshal(prRaw, &prMap) == nil

	if !prIsMap || !exIsMap {
		// Non-object fragments (lists, scalars) diff as a single unit.
		if ch, ok, err := compareValues(path, exRaw, prRaw); err != nil {
			return res, err
		} else if ok {
			res.Changes = append(res.Changes, ch)
		}
		res.RequiresApproval = len(res.Changes) > 0
		return res, nil
	}

	keys := make([]string, 0, len(prMap))
	for k := range prMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		field := k
		if path != "" {
			field = path + "." + k
		}
		ex, exists := exMap[k]
		if !exists {
			ex = []byte("null")
		}
		if ch, ok, err := compareValues(field, ex, prMap[k]); err != nil {
			return res, err
		} else if ok {
			res.Changes = append(res.Changes, ch)
		}
	}

	res.RequiresApproval = len(res.Changes) > 0
	return res, nil
}

// compareValues diffs one field given its raw JSON on both sides. The
// second return value reports whether a change was produced.
func compareValues(field string, exRaw, prRaw json.RawMessage) (FieldChange, bool, error) {
	exNull := isJSONNull(exRaw)
	prNull := isJSONNull(prRaw)

	switch {
	case prNull && exNull:
		return FieldChange{}, false, nil
	case prNull:
		old, err := decodeNormalized(exRaw, field)
		if err != nil {
			return FieldChange{}, false, err
		}
		return FieldChange{Field: field, Op: OpClear, Old: old}, true, nil
	case exNull:
		val, err := decodeNormalized(prRaw, field)
		if err != nil {
			return FieldChange{}, false, err
		}
		return FieldChange{Field: field, Op: OpAdd, New: val}, true, nil
	}

	oldV, err := decodeNormalized(exRaw, field)
	if err != nil {
		return FieldChange{}, false, err
	}
	newV, err := decodeNormalized(prRaw, field)
	if err != nil {
		return FieldChange{}, false, err
	}
	if reflect.DeepEqual(oldV, newV) {
		return FieldChange{}, false, nil
	}
	return FieldChange{Field: field, Op: OpChange, Old: oldV, New: newV}, true, nil
}

func isJSONNull(b json.RawMessage) bool {
	t := strings.TrimSpace(string(b))
	return t == "" || t == "null"
}

func decodeNormalized(raw json.RawMessage, key string) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, eris.Wrapf(err, "diff: decode %s", key)
	}
	return normalize(v, leafKey(key)), nil
}

func leafKey(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		return field[i+1:]
	}
	return field
}

// normalize rewrites a decoded JSON value into its canonical comparison
// form: strings trimmed, currency codes upper-cased through ISO 4217,
// numbers already compared by value from the float64 decoding.
func normalize(v any, key string) any {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if key == "currency" {
			if u, err := currency.ParseISO(strings.ToUpper(s)); err == nil {
				return u.String()
			}
		}
		return s
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val, k)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalize(val, key)
		}
		return t
	}
	return v
}

// Canonical marshals v into the normalized form Compare uses for
// equality, so a fragment is persisted exactly as it compares: strings
// trimmed, currency codes upper-cased, explicit nulls kept.
func Canonical(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "diff: marshal fragment")
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, eris.Wrap(err, "diff: decode fragment")
	}
	out, err := json.Marshal(normalize(decoded, ""))
	if err != nil {
		return nil, eris.Wrap(err, "diff: marshal normalized fragment")
	}
	return out, nil
}

// Render formats the diff for a human reviewer, one change per line.
func (r Result) Render() string {
	if r.Empty() {
		return fmt.Sprintf("%s: no changes", r.FragmentPath)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d change(s)\n", r.FragmentPath, len(r.Changes))
	for _, ch := range r.Changes {
		switch ch.Op {
		case OpAdd:
			fmt.Fprintf(&b, "+ %s = %s\n", ch.Field, renderValue(ch.New))
		case OpClear:
			fmt.Fprintf(&b, "- %s (was %s)\n", ch.Field, renderValue(ch.Old))
		default:
			fmt.Fprintf(&b, "~ %s: %s -> %s\n", ch.Field, renderValue(ch.Old), renderValue(ch.New))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
