package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platecost/internal/models"
	"platecost/internal/uom"
)

func TestOpenSeedsReferenceTables(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	var units, aliases, densities int
	db.Model(&models.Unit{}).Count(&units)
	db.Model(&models.UnitAlias{}).Count(&aliases)
	db.Model(&models.IngredientDensity{}).Count(&densities)
	assert.Equal(t, len(uom.DefaultUnits()), units)
	assert.Equal(t, len(uom.DefaultAliases()), aliases)
	assert.Equal(t, len(uom.DefaultDensities()), densities)

	var gram models.Unit
	require.NoError(t, db.Where("symbol = ?", "g").First(&gram).Error)
	assert.Equal(t, models.DimensionWeight, gram.Dimension)
	assert.Equal(t, "1", gram.ToBase.String())

	var flour models.IngredientDensity
	require.NoError(t, db.Where("ingredient_name = ?", "Flour").First(&flour).Error)
	assert.Equal(t, "0.529", flour.DensityGPerML.String())
	assert.NotEmpty(t, flour.Source)
}

func TestSeedIsIdempotent(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Seed(db))

	var units int
	db.Model(&models.Unit{}).Count(&units)
	assert.Equal(t, len(uom.DefaultUnits()), units)
}
