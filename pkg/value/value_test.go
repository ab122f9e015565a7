package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []Value {
	return []Value{
		Null(),
		Bool(true),
		Bool(false),
		Int(42),
		Int(-7),
		Float(3.14),
		String(""),
		String("hello"),
		Array(nil),
		Array([]Value{Int(1), String("two"), Bool(true)}),
		Object(nil),
		Object([]KV{{Key: "a", Value: Int(1)}, {Key: "b", Value: String("x")}}),
		Func("op-1", "add", 2),
		Stream(9001),
		CellRef(CellDescriptor{ID: "c1", Name: "arith"}),
		Array([]Value{
			Object([]KV{{Key: "nested", Value: Array([]Value{Int(1), Int(2)})}}),
		}),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, v := range sample() {
		b, err := Encode(v)
		require.NoError(t, err)
		got, err := Decode(b)
		require.NoError(t, err)
		assert.True(t, Equal(v, got), "round trip mismatch for kind %s", v.Kind())
	}
}

func TestToFromJSONRoundTrip(t *testing.T) {
	cases := []interface{}{
		nil,
		true,
		false,
		"hello",
		[]interface{}{},
		map[string]interface{}{},
		map[string]interface{}{"a": float64(1), "b": "x"},
		[]interface{}{float64(1), "two", true},
	}
	for _, j := range cases {
		v, err := FromJSON(j)
		require.NoError(t, err)
		back, err := ToJSON(v)
		require.NoError(t, err)
		assert.Equal(t, j, back)
	}
}

func TestToJSONRejectsFunctionAndStreamPointers(t *testing.T) {
	_, err := ToJSON(Func("op", "fn", 0))
	require.ErrorIs(t, err, ErrNotJSONEncodable)

	_, err = ToJSON(Stream(1))
	require.ErrorIs(t, err, ErrNotJSONEncodable)
}

func TestFromJSONIntegerFloatMapping(t *testing.T) {
	v, err := FromJSON(float64(5))
	require.NoError(t, err)
	assert.Equal(t, KindInt, v.Kind())
	assert.Equal(t, int64(5), v.AsInt())

	v, err = FromJSON(float64(5.5))
	require.NoError(t, err)
	assert.Equal(t, KindFloat, v.Kind())
}

func TestRenderString(t *testing.T) {
	assert.Equal(t, "1, two, true", RenderString(Array([]Value{Int(1), String("two"), Bool(true)})))
	assert.Equal(t, "a: 1, b: x", RenderString(Object([]KV{{Key: "a", Value: Int(1)}, {Key: "b", Value: String("x")}})))
}
