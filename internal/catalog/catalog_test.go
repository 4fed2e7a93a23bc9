package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cat, err := Parse([]byte(`
instruments:
  - symbol: "000001"
    name: Ping An Bank
    sector: Finance
    price: "15.50"
    volatility: 5
    shares_outstanding: 1000000
    initial_volume: 1000000
  - symbol: off1
    name: Dormant Co
    price: "2"
    volatility: 1
    active: false
`))
	require.NoError(t, err)

	inputs := cat.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, "000001", inputs[0].Symbol)
	assert.Equal(t, "15.5", inputs[0].Price.String())
	assert.Equal(t, int64(1000000), inputs[0].InitialVolume)
	assert.True(t, inputs[0].Active, "active defaults to true")
	assert.False(t, inputs[1].Active)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":           `instruments: []`,
		"no_symbol":       "instruments:\n  - name: X\n    price: \"1\"\n    volatility: 1\n",
		"duplicate":       "instruments:\n  - {symbol: a, name: A, price: \"1\", volatility: 1}\n  - {symbol: A, name: B, price: \"1\", volatility: 1}\n",
		"bad_price":       "instruments:\n  - {symbol: a, name: A, price: abc, volatility: 1}\n",
		"zero_price":      "instruments:\n  - {symbol: a, name: A, price: \"0\", volatility: 1}\n",
		"volatility_high": "instruments:\n  - {symbol: a, name: A, price: \"1\", volatility: 11}\n",
		"not_yaml":        "instruments: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ShippedCatalog(t *testing.T) {
	cat, err := Load(filepath.Join("..", "..", "configs", "instruments.yaml"))
	require.NoError(t, err)
	assert.Len(t, cat.Instruments, 10)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SEED_PRICE", "42.00")
	path := filepath.Join(t.TempDir(), "cat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instruments:\n  - {symbol: ENV, name: Env Co, price: \"${SEED_PRICE}\", volatility: 2}\n"), 0o600))

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "42", cat.Inputs()[0].Price.String())
}
