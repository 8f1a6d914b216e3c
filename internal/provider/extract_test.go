package provider

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"183*", 183, true},
		{"12,500", 12500, true},
		{" 45.5 ", 45.5, true},
		{"-", 0, false},
		{"N/A", 0, false},
		{"na", 0, false},
		{"null", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"-3", -3, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToDate(t *testing.T) {
	assert.Equal(t, "2024-03-15", ToDate("2024-03-15T09:30:00Z"))
	assert.Equal(t, "2024-03-15", ToDate("2024-03-15"))
	assert.Equal(t, "2023-11-14", ToDate("1700000000"), "epoch seconds")
	assert.Equal(t, "2023-11-14", ToDate("1700000000000"), "epoch milliseconds")
	assert.Equal(t, "", ToDate("15/03/2024"))
	assert.Equal(t, "", ToDate("2024-13-45"))
	assert.Equal(t, "", ToDate(""))
}

func TestLenientDecode(t *testing.T) {
	var got struct {
		A Int   `json:"a"`
		B Int   `json:"b"`
		C Int   `json:"c"`
		D Float `json:"d"`
		E Text  `json:"e"`
		F Text  `json:"f"`
		G Bool  `json:"g"`
		H Bool  `json:"h"`
		I Date  `json:"i"`
		J Int   `json:"j"`
		K Text  `json:"k"`
	}
	payload := `{"a": 12, "b": "1,234", "c": "-", "d": "150.00", "e": 77,
		"f": " Wankhede ", "g": "true", "h": null, "i": 1700000000000,
		"j": {"nested": 1}, "k": ["x"]}`
	require.NoError(t, sonic.Unmarshal([]byte(payload), &got))

	assert.Equal(t, Int{V: 12, Valid: true}, got.A)
	assert.Equal(t, Int{V: 1234, Valid: true}, got.B)
	assert.False(t, got.C.Valid)
	assert.Equal(t, 150.0, got.D.V)
	assert.Equal(t, Text("77"), got.E)
	assert.Equal(t, Text("Wankhede"), got.F)
	assert.True(t, got.G.V)
	assert.False(t, got.H.Valid)
	assert.Equal(t, Date("2023-11-14"), got.I)
	assert.False(t, got.J.Valid)
	assert.Equal(t, Text(""), got.K)
}

func TestFirstHelpers(t *testing.T) {
	assert.Equal(t, int64(7), FirstInt(Int{}, Int{V: 7, Valid: true}, Int{V: 9, Valid: true}).V)
	assert.False(t, FirstInt().Valid)
	assert.Equal(t, "b", FirstText("", "b", "c"))
	assert.Equal(t, "", FirstText())
	assert.Equal(t, "2024-01-01", FirstDate("", "2024-01-01"))
}

func TestSeriesStartYear(t *testing.T) {
	assert.Equal(t, 2024, Series{StartDate: "2024-06-01"}.StartYear())
	assert.Equal(t, 0, Series{}.StartYear())
}

func TestMatchApplyKeepsExisting(t *testing.T) {
	winner := int64(2)
	other := int64(3)
	m := Match{WinnerID: &winner, WinMargin: "5 wkts"}
	require.True(t, m.NeedsResult())

	m.Apply(MatchResult{WinnerID: &other, WinMargin: "10 runs", VictoryType: "wickets", TossWinnerID: &other, TossDecision: "bat"})

	assert.Equal(t, int64(2), *m.WinnerID)
	assert.Equal(t, "5 wkts", m.WinMargin)
	assert.Equal(t, "wickets", m.VictoryType)
	assert.Equal(t, "bat", m.TossDecision)
	assert.False(t, m.NeedsResult())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ab", Truncate("ab", 3))
}

func TestLenientContainers(t *testing.T) {
	type item struct {
		ID Int `json:"id"`
	}
	var got struct {
		Obj     Object[item] `json:"obj"`
		NotObj  Object[item] `json:"notObj"`
		List    List[item]   `json:"list"`
		NotList List[item]   `json:"notList"`
		Dict    Dict[item]   `json:"dict"`
		NotDict Dict[item]   `json:"notDict"`
	}
	body := `{
		"obj": {"id": "7"},
		"notObj": "oops",
		"list": [{"id": 1}, "junk", {"id": 2}, 3],
		"notList": {"id": 1},
		"dict": {"a": {"id": 5}, "b": [1, 2]},
		"notDict": []
	}`
	require.NoError(t, sonic.Unmarshal([]byte(body), &got))

	assert.True(t, got.Obj.Valid)
	assert.Equal(t, int64(7), got.Obj.V.ID.V)
	assert.False(t, got.NotObj.Valid)

	require.Len(t, got.List, 2, "non-object elements are dropped")
	assert.Equal(t, int64(2), got.List[1].ID.V)
	assert.Empty(t, got.NotList)

	require.Len(t, got.Dict, 1)
	assert.Equal(t, int64(5), got.Dict["a"].ID.V)
	assert.Empty(t, got.NotDict)
}
