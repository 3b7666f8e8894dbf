package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	keys := make([]string, 0, len(c.Regions()))
	for _, r := range c.Regions() {
		keys = append(keys, r.Key)
		assert.NotEmpty(t, r.Countries, r.Key)
	}
	assert.Equal(t, []string{"asia", "middle_east", "europe", "americas", "cis", "africa", "oceania"}, keys)

	country, region, ok := c.Lookup("Япония")
	require.True(t, ok)
	assert.Equal(t, "JP", country.Code)
	assert.Equal(t, "asia", region)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	c := Default()
	country, _, ok := c.Lookup(Normalize("  южная корея "))
	require.True(t, ok)
	assert.Equal(t, "Южная Корея", country.Name)

	_, _, ok = c.Lookup("Атлантида")
	assert.False(t, ok)
}

func TestByCode(t *testing.T) {
	c := Default()
	country, region, ok := c.ByCode("ae")
	require.True(t, ok)
	assert.Equal(t, "ОАЭ", country.Name)
	assert.Equal(t, "middle_east", region)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Япония", Normalize("япония"))
	assert.Equal(t, "Япония", Normalize("ЯПОНИЯ"))
	assert.Equal(t, "Japan", Normalize(" jAPAN "))
	assert.Equal(t, "", Normalize("   "))
}

func TestLoadValidates(t *testing.T) {
	_, err := Load([]byte(`regions: []`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load([]byte("regions:\n  - key: a\n    countries:\n      - {name: X}\n"))
	assert.ErrorIs(t, err, ErrInvalid)

	c, err := Load([]byte("regions:\n  - key: asia\n    countries:\n      - {name: Japan, code: JP}\n"))
	require.NoError(t, err)
	_, ok := c.Region("asia")
	assert.True(t, ok)
	_, ok = c.Region("mars")
	assert.False(t, ok)
}
