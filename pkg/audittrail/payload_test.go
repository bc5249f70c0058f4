package audittrail

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEmptyInputs(t *testing.T) {
	require.Nil(t, Parse(nil))
	require.Nil(t, Parse(""))
	require.Nil(t, Parse("   \n\t"))
	require.Nil(t, Parse(Absent()))
	require.Nil(t, Parse([]byte(nil)))
}

func TestParseDecodesJSON(t *testing.T) {
	parsed := Parse(`{"a":1}`)
	obj, ok := parsed.(*Object)
	require.True(t, ok)
	require.Equal(t, []string{"a"}, obj.Keys())
	v, _ := obj.Get("a")
	require.Equal(t, float64(1), v)

	require.Equal(t, []any{float64(1), float64(2)}, Parse([]byte(`[1,2]`)))
	require.Equal(t, []any{"x"}, Parse(json.RawMessage(` ["x"] `)))
	require.Equal(t, "quoted", Parse(`"quoted"`))
	require.Equal(t, float64(12), Parse(" 12 "))
	require.Nil(t, Parse("null"))
}

func TestParseKeepsKeyOrder(t *testing.T) {
	obj, ok := Parse(`{"zeta":1,"alpha":{"y":1,"b":2},"mid":null}`).(*Object)
	require.True(t, ok)
	require.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Keys())

	nested, _ := obj.Get("alpha")
	require.Equal(t, []string{"y", "b"}, nested.(*Object).Keys())
}

func TestParseKeepsKeyOrderInsideArrays(t *testing.T) {
	parsed, ok := Parse(`[{"k":1,"b":2},[{"z":0,"a":1}]]`).([]any)
	require.True(t, ok)
	require.Len(t, parsed, 2)
	require.Equal(t, []string{"k", "b"}, parsed[0].(*Object).Keys())

	inner, ok := parsed[1].([]any)
	require.True(t, ok)
	require.Equal(t, []string{"z", "a"}, inner[0].(*Object).Keys())

	out, err := encodeJSON(parsed, false)
	require.NoError(t, err)
	require.Equal(t, `[{"k":1,"b":2},[{"z":0,"a":1}]]`, string(out))
}

func TestParseRejectsFragmentsThatOnlyParseWhenNested(t *testing.T) {
	require.Equal(t, `1,"x":2`, Parse(`1,"x":2`))
	require.Equal(t, `"a"}`, Parse(`"a"}`))
}

func TestParseFallsBackToRawString(t *testing.T) {
	require.Equal(t, "not json", Parse("not json"))
	require.Equal(t, "  {broken ", Parse("  {broken "))
	require.Equal(t, `{"a":1} trailing`, Parse(`{"a":1} trailing`))
	require.Equal(t, "1 2", Parse("1 2"))
}

func TestParseReturnsStructuredInputUnchanged(t *testing.T) {
	m := map[string]any{"before": map[string]any{}}
	parsed := Parse(m)
	require.True(t, EqualAny(m, parsed))
	parsed.(map[string]any)["marker"] = true
	require.Contains(t, m, "marker")

	require.Equal(t, 42, Parse(42))
	require.Equal(t, false, Parse(false))
}

func TestClassify(t *testing.T) {
	require.Equal(t, PayloadAbsent, classify(nil).Kind)
	require.Equal(t, PayloadRaw, classify("oops").Kind)
	require.Equal(t, "oops", classify("oops").Raw)
	require.Equal(t, PayloadStructured, classify(NewObject()).Kind)
	require.Equal(t, PayloadStructured, classify([]any{}).Kind)
	require.Equal(t, "change_list", PayloadChangeList.String())
}

func TestBeforeAfterRequiresObjects(t *testing.T) {
	_, _, ok := beforeAfter(Parse(`{"before":{"a":1},"after":{"a":2}}`))
	require.True(t, ok)

	_, _, ok = beforeAfter(Parse(`{"before":{"a":1}}`))
	require.False(t, ok)

	_, _, ok = beforeAfter(Parse(`{"before":[1],"after":{"a":2}}`))
	require.False(t, ok)

	_, _, ok = beforeAfter(Parse(`{"before":null,"after":{"a":2}}`))
	require.False(t, ok)

	_, _, ok = beforeAfter(map[string]any{"before": map[string]any{}, "after": map[string]any{"x": 1}})
	require.True(t, ok)
}
