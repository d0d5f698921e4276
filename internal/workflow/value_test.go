package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSequence(t *testing.T) {
	assert.Empty(t, ToSequence(nil))
	assert.Len(t, ToSequence([]any{1, 2}), 2)

	got := ToSequence("x")
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0])
}

func TestYieldTo(t *testing.T) {
	cases := []struct {
		name    string
		dest    any
		outputs []any
		want    []any
	}{
		{"empty outputs leave a present dest unchanged", "keep", nil, nil},
		{"nil dest, empty outputs yields an empty sequence, not nil", nil, nil, []any{}},
		{"nil dest, scalar outputs", nil, []any{"a", "b"}, []any{"a", "b"}},
		{"flattens one level of sequence output", "a", []any{[]any{"b", "c"}}, []any{"a", "b", "c"}},
		{"nested sequences stay nested past one level", nil, []any{[]any{[]any{"x"}}}, []any{[]any{"x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := YieldTo(tc.dest, tc.outputs)
			if tc.want == nil && tc.dest != nil {
				assert.Equal(t, tc.dest, got)
				return
			}

			gotSeq, ok := got.([]any)
			require.Truef(t, ok, "YieldTo() = %v (%T), want []any", got, got)
			require.Len(t, gotSeq, len(tc.want))
			for i := range gotSeq {
				if fs, ok := gotSeq[i].([]any); ok {
					ws, _ := tc.want[i].([]any)
					assert.Len(t, fs, len(ws))
					continue
				}
				assert.Equal(t, tc.want[i], gotSeq[i])
			}
		})
	}
}

func TestFlatten(t *testing.T) {
	got := Flatten([]any{"a", []any{1, 2.5}, true, nil})
	want := []string{"a", "1", "2.5", "true", ""}
	assert.Equal(t, want, got)
}

func TestMergeToDir(t *testing.T) {
	value := []any{"/data/run1/a.txt", "/data/run1/b.txt", "/data/run1/sub/c.txt"}
	got, ok := MergeToDir(value, DataTypeDirectory)
	require.True(t, ok, "MergeToDir() ok = false, want true")
	assert.Equal(t, "/data/run1", got)

	_, ok = MergeToDir(value, "file")
	assert.False(t, ok, "MergeToDir() should not apply outside dataType=directory")

	_, ok = MergeToDir("not-a-seq", DataTypeDirectory)
	assert.False(t, ok, "MergeToDir() should not apply to a scalar value")

	_, ok = MergeToDir([]any{"/only/one.txt"}, DataTypeDirectory)
	assert.True(t, ok, "MergeToDir() should still resolve a single-element sequence")
}

func TestExtractField(t *testing.T) {
	value := map[string]any{
		"result": map[string]any{
			"items": []any{
				map[string]any{"name": "first"},
				map[string]any{"name": "second"},
			},
		},
	}

	got, err := ExtractField(value, "result.items.1.name")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	got, err = ExtractField(value, "")
	require.NoError(t, err)
	assert.NotNil(t, got, "ExtractField() with empty path should pass the value through unchanged")

	got, err = ExtractField(value, "result.missing")
	require.NoError(t, err)
	assert.Nil(t, got, "ExtractField() for a missing path should yield nil")
}
