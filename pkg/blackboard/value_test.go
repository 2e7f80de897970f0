package blackboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberline/blueprint/pkg/schema"
)

func TestValue_CheckedAccess(t *testing.T) {
	v := IntValue(42)
	n, ok := v.Int()
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	// Kind mismatch reports false, never converts.
	_, ok = v.Float()
	assert.False(t, ok)
	_, ok = v.Bool()
	assert.False(t, ok)

	var zero Value
	assert.Equal(t, KindInvalid, zero.Kind())
	_, ok = zero.Int()
	assert.False(t, ok)
	assert.Nil(t, zero.Any())
}

func TestValue_Encode(t *testing.T) {
	assert.Equal(t, "42", IntValue(42).Encode())
	assert.Equal(t, "2.5", FloatValue(2.5).Encode())
	assert.Equal(t, "true", BoolValue(true).Encode())
	assert.Equal(t, "north", StringValue("north").Encode())
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(schema.VariableInt, "7")
	require.NoError(t, err)
	assert.Equal(t, IntValue(7), v)

	v, err = ParseValue(schema.VariableBool, "True")
	require.NoError(t, err)
	assert.Equal(t, BoolValue(true), v)

	v, err = ParseValue(schema.VariableString, "")
	require.NoError(t, err)
	assert.Equal(t, StringValue(""), v)

	_, err = ParseValue(schema.VariableInt, "many")
	require.Error(t, err)

	_, err = ParseValue("Vector3", "1,2,3")
	require.Error(t, err)
}
