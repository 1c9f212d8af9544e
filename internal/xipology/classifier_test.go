package xipology

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyNaNAlwaysMiss(t *testing.T) {
	calib := &Calibration{Miss: 10000, Hit: 1000}
	assert.False(t, Classify(math.NaN(), calib))
	assert.False(t, Classify(math.NaN(), nil))
}

func TestClassifyLegacyThresholdWhenNoCalibration(t *testing.T) {
	assert.True(t, Classify(9999, nil))
	assert.False(t, Classify(10000, nil))
	assert.False(t, Classify(10001, nil))
}

func TestClassifyNearestCentroid(t *testing.T) {
	calib := &Calibration{Miss: 10000, Hit: 1000}

	assert.True(t, Classify(1000, calib))
	assert.True(t, Classify(2000, calib))
	assert.False(t, Classify(9000, calib))
	assert.False(t, Classify(10000, calib))
}

func TestClassifyExactMidpointTieIsMiss(t *testing.T) {
	calib := &Calibration{Miss: 10000, Hit: 1000}
	midpoint := (calib.Miss + calib.Hit) / 2
	assert.False(t, Classify(midpoint, calib))
}
