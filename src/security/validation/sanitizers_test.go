package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForFormulaInjection(t *testing.T) {
	assert.Equal(t, "'=SUM(A1:A2)", SanitizeForFormulaInjection("=SUM(A1:A2)"))
	assert.Equal(t, "'+cmd", SanitizeForFormulaInjection("+cmd"))
	assert.Equal(t, "'@import", SanitizeForFormulaInjection("@import"))
	assert.Equal(t, "'-2+3", SanitizeForFormulaInjection("-2+3"))
	assert.Equal(t, "AAPL", SanitizeForFormulaInjection("AAPL"))
	assert.Equal(t, "", SanitizeForFormulaInjection(""))
}

func TestStripUnprintable(t *testing.T) {
	assert.Equal(t, "AAPL", StripUnprintable("AA\x00PL"))
	assert.Equal(t, "a\tb\nc", StripUnprintable("a\tb\nc"))
	assert.Equal(t, "café", StripUnprintable("café"))
}
