package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBusinessRules(t *testing.T) {
	rules, err := LoadBusinessRules()
	require.NoError(t, err)

	require.Len(t, rules.Rules, 3)

	keys := make(map[string]bool)
	for _, r := range rules.Rules {
		assert.NotEmpty(t, r.JoinType)
		keys[r.LeftTable+"."+r.LeftColumn+"="+r.RightTable+"."+r.RightColumn] = true
	}
	assert.True(t, keys["VBAK.VBELN=VBAP.VBELN"])
	assert.True(t, keys["VBAP.MATNR=MARA.MATNR"])
	assert.True(t, keys["VBAK.KUNNR=KNA1.KUNNR"])
}

func TestBusinessRulesIgnoredColumns(t *testing.T) {
	rules, err := LoadBusinessRules()
	require.NoError(t, err)

	assert.True(t, rules.IsIgnoredColumn("MANDT"))
	assert.True(t, rules.IsIgnoredColumn("mandt"))
	assert.False(t, rules.IsIgnoredColumn("VBELN"))
}
