package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalibrationTable_Lookup(t *testing.T) {
	t.Parallel()

	table := DefaultCalibrationTable()
	c, ok := table.Lookup(" pms3003")
	assert.True(t, ok)
	assert.Equal(t, table["PMS3003"], c)

	_, ok = table.Lookup("")
	assert.False(t, ok)
	_, ok = table.Lookup("unknown")
	assert.False(t, ok)
}

func TestCalibrationTable_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultCalibrationTable().Validate())
	assert.Error(t, CalibrationTable{"X": {Slope: 0, Intercept: 1}}.Validate())
	assert.Error(t, CalibrationTable{" ": {Slope: 1}}.Validate())
}
