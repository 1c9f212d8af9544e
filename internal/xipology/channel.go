package xipology

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

// maxBytesMessage is the largest payload write_bytes/read_bytes will
// carry: the framed length is a single byte, and 0 is reserved to mean
// "no payload", so length must be in [1, 254].
const maxBytesMessage = 254

// Xipology is the channel engine (component E): it owns one primary
// derivator, one decoy derivator, the resolver address and the shared
// secret, and an optional calibration. It is not safe for concurrent
// writers — spec.md §5 assumes at most one reader and one writer
// active on a given derivator position at a time.
type Xipology struct {
	server string
	secret []byte

	primary *NameDerivator
	decoy   *NameDerivator

	decoyBits  int
	prober     prober
	calibCache *CalibrationCache
	calib      *Calibration
}

// Option configures a Xipology at construction time.
type Option func(*Xipology)

// WithDecoyBits overrides the default decoy-slot count per frame.
func WithDecoyBits(n int) Option {
	return func(x *Xipology) { x.decoyBits = n }
}

// WithCalibrationCache shares a CalibrationCache across instances
// targeting the same resolver, so only the first instance pays for
// the 20-trial calibration probe within the cache's TTL.
func WithCalibrationCache(c *CalibrationCache) Option {
	return func(x *Xipology) { x.calibCache = c }
}

// WithProber overrides the resolver probe, for tests.
func WithProber(p prober) Option {
	return func(x *Xipology) { x.prober = p }
}

// FromSecret constructs a channel against server (host:port) using
// secret as the shared key for both derivators.
func FromSecret(server string, secret []byte, opts ...Option) (*Xipology, error) {
	x := &Xipology{
		server:    server,
		secret:    append([]byte(nil), secret...),
		decoyBits: DefaultDecoyBits,
		prober:    newResolverProbe(server),
	}
	for _, opt := range opts {
		opt(x)
	}

	if err := x.rebuildDerivators(); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *Xipology) rebuildDerivators() error {
	x.primary = NewNameDerivator(x.secret)
	decoy, err := NewDecoyDerivator(x.primary)
	if err != nil {
		return fmt.Errorf("xipology: seed decoy derivator: %w", err)
	}
	x.decoy = decoy
	return nil
}

// Reset rewinds both derivators to their initial state for the
// current secret and discards any calibration.
func (x *Xipology) Reset() error {
	x.calib = nil
	return x.rebuildDerivators()
}

// ChangeSecret replaces the shared secret and resets the channel.
func (x *Xipology) ChangeSecret(newSecret []byte) error {
	x.secret = append([]byte(nil), newSecret...)
	return x.Reset()
}

// WriteByte writes one byte as a frame and returns the number of
// probes attempted. Per-slot probe failures are logged at debug level
// and swallowed: the protocol is best-effort, recoverable by parity on
// read, or reported as Parity.
func (x *Xipology) WriteByte(ctx context.Context, b byte) (int, error) {
	slots, err := writeFrame(b, x.primary, x.decoy, x.decoyBits)
	if err != nil {
		return 0, NewIOError(err)
	}
	x.dispatchWrite(ctx, slots)
	return len(slots), nil
}

// WriteBytes writes a length-prefixed multi-byte message: all frames
// (length byte, then each payload byte) are generated, concatenated,
// shuffled as one set, and probed in a single parallel fan-out, per
// spec.md §4.5. It panics if len(buf) is not in [1, 254].
func (x *Xipology) WriteBytes(ctx context.Context, buf []byte) (int, error) {
	assertMessageLength(len(buf))

	all := make([]slot, 0, (len(buf)+1)*(primarySlotsPerFrame+x.decoyBits))

	lenSlots, err := writeFrame(byte(len(buf)), x.primary, x.decoy, x.decoyBits)
	if err != nil {
		return 0, NewIOError(err)
	}
	all = append(all, lenSlots...)

	for _, b := range buf {
		frameSlots, err := writeFrame(b, x.primary, x.decoy, x.decoyBits)
		if err != nil {
			return 0, NewIOError(err)
		}
		all = append(all, frameSlots...)
	}

	x.dispatchWrite(ctx, all)
	return len(all), nil
}

// assertMessageLength panics on an out-of-range length, matching the
// `assert!` in the original write_bytes (spec.md's Exposed Operations
// table documents this as the one operation that panics).
func assertMessageLength(n int) {
	if n <= 0 || n > maxBytesMessage {
		panic(fmt.Sprintf("xipology: write_bytes length %d out of range [1, %d]", n, maxBytesMessage))
	}
}

// dispatchWrite shuffles slots to decorrelate wall-clock order from
// bit position, then fans the probes out in parallel. Individual
// failures are logged and ignored — write has no failure mode beyond
// the outermost I/O errors already surfaced above.
func (x *Xipology) dispatchWrite(ctx context.Context, slots []slot) {
	shuffle(slots)

	g, gctx := errgroup.WithContext(ctx)
	for i := range slots {
		name := slots[i].Name
		g.Go(func() error {
			if _, err := x.prober.poke(gctx, name); err != nil {
				log.Debug().Err(err).Str("name", name).Msg("xipology: write probe failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ReadByte reads one frame, lazily calibrating against the resolver
// on the first read after construction, Reset or ChangeSecret (or
// pulling a recent calibration from the shared cache).
func (x *Xipology) ReadByte(ctx context.Context) (byte, error) {
	if err := x.ensureCalibration(ctx); err != nil {
		return 0, err
	}

	slots, err := readFrame(x.primary, x.decoy, x.decoyBits)
	if err != nil {
		return 0, NewIOError(err)
	}

	x.dispatchRead(ctx, slots)
	classifySlots(slots, x.calib)

	b, err := reconstruct(slots)
	if err != nil {
		return 0, err
	}
	return b, nil
}

// ReadBytes reads the length-prefixed message: the length byte first,
// then that many payload bytes. A Free/Consumed/Parity error on the
// length byte propagates as-is. Inside the payload, the same frame
// errors are lossily recovered as ASCII space (0x20) so the returned
// slice always has the declared length; an I/O error aborts the whole
// read immediately.
func (x *Xipology) ReadBytes(ctx context.Context) ([]byte, error) {
	length, err := x.ReadByte(ctx)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	for i := 0; i < int(length); i++ {
		b, err := x.ReadByte(ctx)
		if err != nil {
			if IsIOError(err) {
				return nil, err
			}
			buf[i] = ' '
			continue
		}
		buf[i] = b
	}
	return buf, nil
}

func (x *Xipology) ensureCalibration(ctx context.Context) error {
	if x.calib != nil {
		return nil
	}

	if x.calibCache != nil {
		if calib, ok := x.calibCache.Get(x.server); ok {
			x.calib = calib
			return nil
		}
	}

	calib, err := CalibrateQueryTimes(ctx, x.prober)
	if err != nil {
		return NewIOError(err)
	}
	x.calib = calib
	if x.calibCache != nil {
		x.calibCache.Set(x.server, calib)
	}
	return nil
}

// dispatchRead shuffles slots, then probes all of them in parallel,
// recording each slot's latency (NaN on a probe error, which the
// classifier treats as a miss).
func (x *Xipology) dispatchRead(ctx context.Context, slots []slot) {
	shuffle(slots)

	g, gctx := errgroup.WithContext(ctx)
	for i := range slots {
		i := i
		name := slots[i].Name
		g.Go(func() error {
			latency, err := x.prober.poke(gctx, name)
			if err != nil {
				log.Debug().Err(err).Str("name", name).Msg("xipology: read probe failed")
				slots[i].Latency = math.NaN()
				return nil
			}
			slots[i].Latency = latency
			return nil
		})
	}
	_ = g.Wait()
}

// shuffle randomizes slot order before dispatch to decorrelate
// wall-clock slot order from bit position — both for traffic-analysis
// resistance and to keep the resolver's own ordering optimizations
// from biasing timing, per spec.md §9.
func shuffle(slots []slot) {
	rand.Shuffle(len(slots), func(i, j int) {
		slots[i], slots[j] = slots[j], slots[i]
	})
}
