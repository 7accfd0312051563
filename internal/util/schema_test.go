package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleOutput struct {
	Title  string   `json:"title" description:"Slide title"`
	Order  int      `json:"order"`
	Score  float64  `json:"score,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	hidden string
}

type nestedOutput struct {
	Slides []sampleOutput `json:"slides"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleOutput{})

	assert.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "string", props["title"].(map[string]any)["type"])
	assert.Equal(t, "Slide title", props["title"].(map[string]any)["description"])
	assert.Equal(t, "integer", props["order"].(map[string]any)["type"])
	assert.Equal(t, "number", props["score"].(map[string]any)["type"])
	assert.Equal(t, "array", props["tags"].(map[string]any)["type"])
	_, exported := props["hidden"]
	assert.False(t, exported)

	// omitempty fields are optional; the rest are required.
	assert.ElementsMatch(t, []string{"title", "order"}, schema["required"])
}

func TestCreateSchemaNestedStructItems(t *testing.T) {
	schema := CreateSchema(&nestedOutput{})

	props := schema["properties"].(map[string]any)
	slides := props["slides"].(map[string]any)
	require.Equal(t, "array", slides["type"])
	items := slides["items"].(map[string]any)
	assert.Equal(t, "object", items["type"])
	assert.Contains(t, items["properties"].(map[string]any), "title")
}

func TestValidate(t *testing.T) {
	schema := CreateSchema(sampleOutput{})

	require.NoError(t, Validate(map[string]any{"title": "T", "order": float64(1)}, schema))

	err := Validate(map[string]any{"order": float64(1)}, schema)
	var violation *SchemaViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "title", violation.Field)

	err = Validate(map[string]any{"title": "T", "order": "one"}, schema)
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "order", violation.Field)

	// Fractional numbers are not integers.
	err = Validate(map[string]any{"title": "T", "order": 1.5}, schema)
	assert.Error(t, err)

	// Extra fields pass.
	require.NoError(t, Validate(map[string]any{"title": "T", "order": float64(1), "extra": true}, schema))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fence without hint", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", "Here you go:\n{\"a\":1}\nHope that helps!", `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}
