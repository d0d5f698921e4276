package workflow

import (
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// DataTypeDirectory is the well-known dataType tag mergeToDir triggers on.
const DataTypeDirectory = "directory"

// ToSequence normalizes a JSON-like value to an ordered sequence: nil
// becomes an empty sequence, a []any is returned as-is, anything else is
// wrapped in a singleton.
func ToSequence(v any) []any {
	if v == nil {
		return []any{}
	}
	if seq, ok := v.([]any); ok {
		return seq
	}
	return []any{v}
}

// YieldTo implements the yieldTo operator: dest + outputs, spreading one
// level of any sequence-valued output and otherwise appending it verbatim.
// An empty outputs leaves a present dest unchanged, but a nil dest becomes
// an empty sequence rather than staying nil — nil + [] means "nothing has
// yielded yet", distinct from "this yielded nothing", and only the sequence
// form lets a zero-iteration for-each retire instead of reading as unset.
func YieldTo(dest any, outputs []any) any {
	if len(outputs) == 0 {
		if dest == nil {
			return []any{}
		}
		return dest
	}

	var result []any
	if dest != nil {
		result = append(result, ToSequence(dest)...)
	}

	for _, o := range outputs {
		if seq, ok := o.([]any); ok {
			result = append(result, seq...)
			continue
		}
		result = append(result, o)
	}

	return result
}

// Flatten recursively expands a JSON-like value into a sequence of
// stringified scalars, descending into nested sequences.
func Flatten(v any) []string {
	var out []string
	var walk func(any)
	walk = func(x any) {
		if seq, ok := x.([]any); ok {
			for _, item := range seq {
				walk(item)
			}
			return
		}
		out = append(out, Stringify(x))
	}
	walk(v)
	return out
}

// Stringify renders a scalar JSON-like value as a string argument.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ExtractField narrows a JSON-object-valued variable down to one field
// ahead of flattening, using gjson path syntax. An empty fieldPath is a
// no-op; a path with no match yields nil rather than an error, consistent
// with a missing-input failing later at cardinality time instead of here.
func ExtractField(value any, fieldPath string) (any, error) {
	if fieldPath == "" {
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value for field path %q: %w", fieldPath, err)
	}
	result := gjson.GetBytes(raw, fieldPath)
	if !result.Exists() {
		return nil, nil
	}
	return result.Value(), nil
}

// MergeToDir applies when a sequence of file paths is supplied for an INPUT
// parameter whose dataType is "directory": it computes the longest common
// path prefix and truncates it at the last separator, yielding one
// directory path. Returns ok=false when the policy doesn't apply.
func MergeToDir(value any, dataType string) (string, bool) {
	if dataType != DataTypeDirectory {
		return "", false
	}
	seq, ok := value.([]any)
	if !ok || len(seq) == 0 {
		return "", false
	}

	paths := make([]string, 0, len(seq))
	for _, item := range seq {
		s, ok := item.(string)
		if !ok {
			return "", false
		}
		paths = append(paths, s)
	}

	prefix := longestCommonPrefix(paths)
	if idx := strings.LastIndex(prefix, "/"); idx >= 0 {
		prefix = prefix[:idx]
	} else {
		return "", false
	}
	return path.Clean(prefix), true
}

func longestCommonPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	prefix := paths[0]
	for _, p := range paths[1:] {
		for !strings.HasPrefix(p, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}
