package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeKeepsUntouchedFields(t *testing.T) {
	base := New(map[string]any{"email_content": "double charge", "urgency": nil})

	merged := base.Merge(State{"urgency": "critical"})

	assert.Equal(t, "double charge", merged.String("email_content"))
	assert.Equal(t, "critical", merged.String("urgency"))
	assert.Nil(t, base["urgency"], "merge must not mutate the receiver")
}

func TestMergeOverwritesField(t *testing.T) {
	base := State{"draft_response": "v1"}
	merged := base.Merge(State{"draft_response": "v2"})
	assert.Equal(t, "v2", merged.String("draft_response"))
}

func TestCloneIsDeep(t *testing.T) {
	original := State{
		"classification": map[string]any{"intent": "billing"},
		"results":        []any{"a", "b"},
	}

	clone := original.Clone()
	clone.Map("classification")["intent"] = "bug"
	clone["results"].([]any)[0] = "z"

	assert.Equal(t, "billing", original.Map("classification")["intent"])
	assert.Equal(t, "a", original["results"].([]any)[0])
}

func TestPersistableDropsTempKeys(t *testing.T) {
	st := State{"a": 1, DecisionKey: true, TempPrefix + "scratch": "x"}

	out := st.Persistable()

	assert.Equal(t, State{"a": 1}, out)
	assert.Contains(t, st, DecisionKey)
}

func TestAccessors(t *testing.T) {
	st := State{
		"flag":   "yes",
		"real":   true,
		"list":   []any{"x", 2},
		"number": 3,
	}

	assert.True(t, st.Bool("flag"))
	assert.True(t, st.Bool("real"))
	assert.False(t, st.Bool("missing"))
	assert.Equal(t, []string{"x", "2"}, st.Strings("list"))
	assert.Equal(t, "3", st.String("number"))
	assert.Equal(t, []string{"flag", "list", "number", "real"}, st.Keys())
	assert.False(t, st.Has("missing"))
}

func TestDecode(t *testing.T) {
	type classification struct {
		Intent  string `json:"intent"`
		Urgency string `json:"urgency"`
	}

	var out classification
	err := Decode(map[string]any{"intent": "billing", "urgency": "high"}, &out)
	require.NoError(t, err)
	assert.Equal(t, classification{Intent: "billing", Urgency: "high"}, out)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		st      State
		specs   []KeySpec
		wantErr bool
	}{
		{
			name:  "required present",
			st:    State{"email_content": "hi"},
			specs: []KeySpec{RequiredKey("email_content", KindString)},
		},
		{
			name:    "required missing",
			st:      State{},
			specs:   []KeySpec{RequiredKey("email_content", KindString)},
			wantErr: true,
		},
		{
			name:  "optional missing",
			st:    State{},
			specs: []KeySpec{Key("urgency", KindString)},
		},
		{
			name:    "wrong kind",
			st:      State{"sent": "true"},
			specs:   []KeySpec{Key("sent", KindBool)},
			wantErr: true,
		},
		{
			name:  "number kinds",
			st:    State{"n": 1.5, "m": 2},
			specs: []KeySpec{Key("n", KindNumber), Key("m", KindNumber)},
		},
		{
			name:  "map and list",
			st:    State{"m": map[string]any{}, "l": []any{}},
			specs: []KeySpec{Key("m", KindMap), Key("l", KindList)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.st, tt.specs...)
			if tt.wantErr {
				var fieldErr *FieldError
				assert.ErrorAs(t, err, &fieldErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSchema(t *testing.T) {
	schema := Schema([]KeySpec{
		RequiredKey("email_content", KindString),
		Key("urgency", KindString),
	})

	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"email_content"}, schema.Required)
	prop, ok := schema.Properties.Get("email_content")
	require.True(t, ok)
	assert.Equal(t, "string", prop.Type)
}
