package xipology

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xipology-go/internal/dnstest"
)

func newFakeResolver(t *testing.T) *dnstest.Resolver {
	t.Helper()
	r, err := dnstest.NewResolver(15*time.Millisecond, 1*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestChannelRoundTripSingleByte(t *testing.T) {
	resolver := newFakeResolver(t)
	ctx := context.Background()
	secret := []byte("round-trip-secret")

	writer, err := FromSecret(resolver.Addr(), secret)
	require.NoError(t, err)
	_, err = writer.WriteByte(ctx, 0x41)
	require.NoError(t, err)

	reader, err := FromSecret(resolver.Addr(), secret)
	require.NoError(t, err)
	b, err := reader.ReadByte(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x41), b)
}

func TestChannelFreeWhenNeverWritten(t *testing.T) {
	resolver := newFakeResolver(t)
	ctx := context.Background()

	reader, err := FromSecret(resolver.Addr(), []byte("untouched-secret"))
	require.NoError(t, err)

	_, err = reader.ReadByte(ctx)
	assert.ErrorIs(t, err, ErrFree)
}

func TestChannelConsumedOnSecondRead(t *testing.T) {
	resolver := newFakeResolver(t)
	ctx := context.Background()
	secret := []byte("consumed-secret")

	writer, err := FromSecret(resolver.Addr(), secret)
	require.NoError(t, err)
	_, err = writer.WriteByte(ctx, 0x07)
	require.NoError(t, err)

	readerA, err := FromSecret(resolver.Addr(), secret)
	require.NoError(t, err)
	b, err := readerA.ReadByte(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x07), b)

	// readerA's own probe of the Guard slot caches that name, so a
	// second reader landing on the same frame sees it as consumed.
	readerB, err := FromSecret(resolver.Addr(), secret)
	require.NoError(t, err)
	_, err = readerB.ReadByte(ctx)
	assert.ErrorIs(t, err, ErrConsumed)
}

func TestChannelRoundTripMultiByte(t *testing.T) {
	resolver := newFakeResolver(t)
	ctx := context.Background()
	secret := []byte("multi-byte-secret")

	writer, err := FromSecret(resolver.Addr(), secret, WithDecoyBits(0))
	require.NoError(t, err)
	_, err = writer.WriteBytes(ctx, []byte("hi"))
	require.NoError(t, err)

	reader, err := FromSecret(resolver.Addr(), secret, WithDecoyBits(0))
	require.NoError(t, err)
	data, err := reader.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestChannelWriteBytesPanicsOnInvalidLength(t *testing.T) {
	resolver := newFakeResolver(t)
	ctx := context.Background()

	xipo, err := FromSecret(resolver.Addr(), []byte("panic-secret"))
	require.NoError(t, err)

	assert.Panics(t, func() { _, _ = xipo.WriteBytes(ctx, nil) })
	oversized := make([]byte, 255)
	assert.Panics(t, func() { _, _ = xipo.WriteBytes(ctx, oversized) })
}

func TestChannelResetRewindsDerivators(t *testing.T) {
	resolver := newFakeResolver(t)
	ctx := context.Background()
	secret := []byte("reset-secret")

	writer, err := FromSecret(resolver.Addr(), secret)
	require.NoError(t, err)
	_, err = writer.WriteByte(ctx, 0x10)
	require.NoError(t, err)
	require.NoError(t, writer.Reset())
	_, err = writer.WriteByte(ctx, 0x10)
	require.NoError(t, err)

	reader, err := FromSecret(resolver.Addr(), secret)
	require.NoError(t, err)
	b, err := reader.ReadByte(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x10), b)

	// The rewritten frame landed back on position 0, so position 1 was
	// never written.
	_, err = reader.ReadByte(ctx)
	assert.ErrorIs(t, err, ErrFree)
}

func TestChannelCalibrationCacheAvoidsReprobe(t *testing.T) {
	resolver := newFakeResolver(t)
	ctx := context.Background()
	cache := NewCalibrationCache()

	a, err := FromSecret(resolver.Addr(), []byte("cache-a"), WithCalibrationCache(cache))
	require.NoError(t, err)
	require.NoError(t, a.ensureCalibration(ctx))
	require.NotNil(t, a.calib)

	b, err := FromSecret(resolver.Addr(), []byte("cache-b"), WithCalibrationCache(cache))
	require.NoError(t, err)
	require.NoError(t, b.ensureCalibration(ctx))

	assert.Equal(t, a.calib, b.calib)
}
