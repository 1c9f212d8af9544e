package xipology

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameDerivatorDeterministic(t *testing.T) {
	secret := []byte("test-secret")

	a := NewNameDerivator(secret)
	b := NewNameDerivator(secret)

	for i := 0; i < 10; i++ {
		na, err := a.NextName()
		require.NoError(t, err)
		nb, err := b.NextName()
		require.NoError(t, err)
		assert.Equal(t, na, nb, "step %d diverged", i)
	}
}

func TestNameDerivatorDifferentSecretsDiverge(t *testing.T) {
	a := NewNameDerivator([]byte("secret-a"))
	b := NewNameDerivator([]byte("secret-b"))

	na, err := a.NextName()
	require.NoError(t, err)
	nb, err := b.NextName()
	require.NoError(t, err)
	assert.NotEqual(t, na, nb)
}

func TestNameShapeAndBounds(t *testing.T) {
	d := NewNameDerivator([]byte("bounds"))
	name, err := d.NextName()
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(name, "."+sinkZoneSuffix))
	assert.LessOrEqual(t, len(name), 253)

	labels := strings.Split(strings.TrimSuffix(name, "."+sinkZoneSuffix), ".")
	require.Len(t, labels, 2)
	for _, l := range labels {
		assert.LessOrEqual(t, len(l), 20)
	}
}

func TestDecoyDerivatorMatchesFreshFromFirstBlock(t *testing.T) {
	secret := []byte("decoy-secret")

	primary := NewNameDerivator(secret)
	decoy, err := NewDecoyDerivator(primary)
	require.NoError(t, err)

	mirror := NewNameDerivator(secret)
	block, err := mirror.nextBlock()
	require.NoError(t, err)
	freshDecoy := NewNameDerivator(block)

	for i := 0; i < 5; i++ {
		n1, err := decoy.NextName()
		require.NoError(t, err)
		n2, err := freshDecoy.NextName()
		require.NoError(t, err)
		assert.Equal(t, n1, n2, "decoy step %d diverged", i)
	}
}

func TestDecoyDerivatorConsumesOneBlockFromPrimary(t *testing.T) {
	secret := []byte("consume-secret")

	withDecoy := NewNameDerivator(secret)
	_, err := NewDecoyDerivator(withDecoy)
	require.NoError(t, err)

	plain := NewNameDerivator(secret)
	_, err = plain.nextBlock() // mimic the one block the decoy ctor consumed

	require.NoError(t, err)

	n1, err := withDecoy.NextName()
	require.NoError(t, err)
	n2, err := plain.NextName()
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
}

func TestResetRewindsToConstructionState(t *testing.T) {
	secret := []byte("reset-secret")
	d := NewNameDerivator(secret)

	var first []string
	for i := 0; i < 5; i++ {
		n, err := d.NextName()
		require.NoError(t, err)
		first = append(first, n)
	}

	d.reset()

	for i := 0; i < 5; i++ {
		n, err := d.NextName()
		require.NoError(t, err)
		assert.Equal(t, first[i], n)
	}
}
