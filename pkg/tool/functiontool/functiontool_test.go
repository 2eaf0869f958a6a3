package functiontool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherArgs struct {
	City  string `json:"city" jsonschema:"required,description=City name"`
	Units string `json:"units,omitempty" jsonschema:"description=Temperature units,enum=celsius,enum=fahrenheit"`
	Days  int    `json:"days,omitempty"`
}

func weather(_ context.Context, args weatherArgs) (map[string]any, error) {
	return map[string]any{"city": args.City, "units": args.Units, "days": args.Days}, nil
}

func TestNewGeneratesSchema(t *testing.T) {
	tl, err := New(Config{Name: "get_weather", Description: "Get weather"}, weather)
	require.NoError(t, err)

	assert.Equal(t, "get_weather", tl.Name())
	assert.Equal(t, "Get weather", tl.Description())
	assert.False(t, tl.RequiresApproval())

	schema := tl.Schema()
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "units")
	assert.Equal(t, []any{"city"}, schema["required"])
}

func TestCallDecodesArgs(t *testing.T) {
	tl, err := New(Config{Name: "get_weather", Description: "Get weather", RequireApproval: true}, weather)
	require.NoError(t, err)
	assert.True(t, tl.RequiresApproval())

	out, err := tl.Call(context.Background(), map[string]any{"city": "Paris", "days": "3"})
	require.NoError(t, err)
	assert.Equal(t, "Paris", out["city"])
	assert.Equal(t, 3, out["days"])

	_, err = tl.Call(context.Background(), map[string]any{"days": "many"})
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{Description: "x"}, weather)
	assert.Error(t, err)
	_, err = New(Config{Name: "x"}, weather)
	assert.Error(t, err)
	_, err = New[weatherArgs](Config{Name: "x", Description: "y"}, nil)
	assert.Error(t, err)
	assert.Panics(t, func() { MustNew(Config{}, weather) })
}

func TestNewWithValidation(t *testing.T) {
	tl, err := NewWithValidation(Config{Name: "get_weather", Description: "Get weather"}, weather,
		func(a weatherArgs) error {
			if a.City == "" {
				return errors.New("city is empty")
			}
			return nil
		})
	require.NoError(t, err)

	_, err = tl.Call(context.Background(), map[string]any{})
	assert.ErrorContains(t, err, "city is empty")

	out, err := tl.Call(context.Background(), map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "Oslo", out["city"])
}
