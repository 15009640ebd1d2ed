package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpinions_AliasesAndCoercion(t *testing.T) {
	raw := `[
		{"provider_id": "gpt", "action": "buy", "confidence": 80, "rationale": "上行突破"},
		{"provider": "claude", "action": "LONG", "confidence": "75"},
		{"model": "local", "action": "wait", "confidence": 50, "reasoning": "缺乏方向", "timestamp": 1748779200}
	]`
	opinions, err := ParseOpinions(raw)
	require.NoError(t, err)
	require.Len(t, opinions, 3)

	assert.Equal(t, "gpt", opinions[0].ProviderID)
	assert.Equal(t, ActionBuy, opinions[0].Action)
	assert.Equal(t, "上行突破", opinions[0].Rationale)

	assert.Equal(t, "claude", opinions[1].ProviderID)
	assert.Equal(t, ActionBuy, opinions[1].Action)
	assert.Equal(t, 75.0, opinions[1].Confidence)

	assert.Equal(t, "local", opinions[2].ProviderID)
	assert.Equal(t, ActionHold, opinions[2].Action)
	assert.Equal(t, "缺乏方向", opinions[2].Rationale)
	assert.False(t, opinions[2].Timestamp.IsZero())
}

func TestParseOpinions_Rejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"空载荷", ""},
		{"非JSON", "not json"},
		{"非数组", `{"provider_id":"x"}`},
		{"空数组", `[]`},
		{"缺provider", `[{"action":"buy","confidence":50}]`},
		{"非法action", `[{"provider_id":"x","action":"yolo","confidence":50}]`},
		{"缺confidence", `[{"provider_id":"x","action":"buy"}]`},
		{"confidence越界", `[{"provider_id":"x","action":"buy","confidence":150}]`},
		{"confidence非数值", `[{"provider_id":"x","action":"buy","confidence":"high"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseOpinions(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestNormalizeAction(t *testing.T) {
	assert.Equal(t, ActionBuy, NormalizeAction("open_long"))
	assert.Equal(t, ActionSell, NormalizeAction("Short"))
	assert.Equal(t, ActionHold, NormalizeAction("NEUTRAL"))
	assert.Equal(t, Action(""), NormalizeAction("maybe"))
}
