package script

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/dotecxy/legado2-sub001/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLuaEvaluateExpression(t *testing.T) {
	e := NewLuaEvaluator(nil)

	v, err := e.Evaluate(context.Background(), `baseUrl .. "/search?q=" .. url_encode(key)`, map[string]any{
		"baseUrl": "https://example.com",
		"key":     "a b",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/search?q=a+b", v)
}

func TestLuaEvaluateChunk(t *testing.T) {
	e := NewLuaEvaluator(nil)

	v, err := e.Evaluate(context.Background(), `
local parts = {}
for i = 1, page do
  parts[#parts + 1] = "p" .. i
end
result = parts
`, map[string]any{"page": 3})
	require.NoError(t, err)
	assert.Equal(t, []any{"p1", "p2", "p3"}, v)
	assert.Equal(t, "p1\np2\np3", ToString(v))
}

func TestLuaEvaluateTableBinding(t *testing.T) {
	e := NewLuaEvaluator(nil)

	v, err := e.Evaluate(context.Background(), `string.upper(result[2])`, map[string]any{
		"result": []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "B", v)
}

func TestLuaEvaluateJSONModule(t *testing.T) {
	e := NewLuaEvaluator(nil)

	v, err := e.Evaluate(context.Background(), `
local json = require("json")
local obj = json.decode(result)
return obj.data.title
`, map[string]any{"result": `{"data":{"title":"Book"}}`})
	require.NoError(t, err)
	assert.Equal(t, "Book", v)
}

func TestLuaEvaluateErrors(t *testing.T) {
	e := NewLuaEvaluator(nil)

	_, err := e.Evaluate(context.Background(), `this is not lua (`, nil)
	assert.ErrorIs(t, err, apperrors.ErrScriptFailed)

	_, err = e.Evaluate(context.Background(), `error("boom")`, nil)
	assert.ErrorIs(t, err, apperrors.ErrScriptFailed)
}

func TestLuaEvaluateTimeout(t *testing.T) {
	e := NewLuaEvaluator(&LuaEvaluatorConfig{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := e.Evaluate(context.Background(), `while true do end`, nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "3", ToString(float64(3)))
	assert.Equal(t, "2.5", ToString(2.5))
	assert.Equal(t, "true", ToString(true))
	assert.Equal(t, []string{"a", "1"}, ToStrings([]any{"a", float64(1)}))
	assert.Nil(t, ToStrings(""))
}
