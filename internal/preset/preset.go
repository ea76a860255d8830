// Package preset implements the slot-based save/load/list/delete pattern
// shared by every persisted configuration kind (effect presets, zone
// configs, zone layout presets, audio tuning). A Manager owns a fixed
// number of integer slots in one store namespace; each occupied slot holds
// one checksummed record of the manager's payload type.
//
// Corruption policy: a slot whose record fails the checksum, has an
// unknown version, or fails structural validation behaves exactly like an
// empty slot. The damage is logged once and the occupancy cache corrected;
// callers only ever see "no preset here".
package preset

import (
	"errors"
	"fmt"
	"sync"

	"lumen/internal/logging"
	"lumen/internal/record"
	"lumen/internal/store"
)

var (
	ErrBadSlot    = errors.New("slot out of range")
	ErrNoFreeSlot = errors.New("no free slot")
	ErrInvalid    = errors.New("invalid preset data")
)

var logger = logging.For("preset")

// Payload is the contract a persisted struct implements. Size, Encode and
// Decode cover the current format version only; older versions are handled
// by Migrations. Encode must be deterministic: the same fields always
// produce the same bytes.
type Payload interface {
	// Size returns the encoded payload size in bytes (fixed per version).
	Size() int
	// Encode writes the payload into dst, which is exactly Size() bytes.
	Encode(dst []byte)
	// Decode reads a current-version payload. The receiver may be left
	// in any state on error; the Manager never exposes such a value.
	Decode(src []byte) error
	// Clamp forces every numeric field into its declared valid range.
	Clamp()
	// Validate checks structural invariants that clamping cannot fix.
	Validate() error
	// Label returns the display name shown in listings.
	Label() string
}

// codec ties a payload implementation to its pointer type so the Manager
// can instantiate values internally.
type codec[T any] interface {
	Payload
	*T
}

// Migration decodes a recognized legacy payload version into the current
// struct, defaulting fields the old format did not carry. Explicit
// field-by-field decoding only: no byte-layout reinterpretation.
type Migration[T any] func(payload []byte, dst *T) error

// Options configures a Manager instance.
type Options[T any] struct {
	// Namespace is the store partition, 1..15 ASCII chars.
	Namespace string
	// Slots is the fixed slot count; slot ids are [0, Slots).
	Slots int
	// Version is the current on-flash format version.
	Version uint8
	// Migrations maps older known versions to their decoders.
	Migrations map[uint8]Migration[T]
}

// Info describes one occupied slot in a listing.
type Info struct {
	Slot int
	Name string
}

// Manager is one instance of the preset-slot pattern. All methods are
// safe for concurrent use, but the store itself assumes a single writer
// per key; give each Manager its own namespace.
type Manager[T any, PT codec[T]] struct {
	mu         sync.Mutex
	st         store.Store
	ns         string
	slots      int
	keyFmt     string
	version    uint8
	migrations map[uint8]Migration[T]
	occupied   []bool
	lastErr    error
}

// New creates a Manager. Call Init once the store is ready to prime the
// slot-occupancy cache.
func New[T any, PT codec[T]](st store.Store, opts Options[T]) *Manager[T, PT] {
	keyFmt := "preset_%d"
	if opts.Slots > 9 {
		// Two-digit slot counts use zero-padded keys; the exact shape
		// is load-bearing for flash images written by older firmware.
		keyFmt = "preset_%02d"
	}
	return &Manager[T, PT]{
		st:         st,
		ns:         opts.Namespace,
		slots:      opts.Slots,
		keyFmt:     keyFmt,
		version:    opts.Version,
		migrations: opts.Migrations,
		occupied:   make([]bool, opts.Slots),
	}
}

// Init probes every slot and caches which are occupied. Probing is by
// stored size only; deep validation happens lazily on first read of each
// slot. Safe to call again after a store re-init.
func (m *Manager[T, PT]) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < m.slots; i++ {
		_, err := m.st.BlobSize(m.ns, m.key(i))
		if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrNotInitialized) {
			m.lastErr = err
			return err
		}
		m.occupied[i] = err == nil
	}
	return nil
}

// Namespace returns the store namespace this manager owns.
func (m *Manager[T, PT]) Namespace() string { return m.ns }

// Slots returns the fixed slot count.
func (m *Manager[T, PT]) Slots() int { return m.slots }

// LastErr returns the most recent internal error, for diagnostics. It is
// not cleared by successful operations.
func (m *Manager[T, PT]) LastErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Save stores v in the lowest free slot and returns its id.
func (m *Manager[T, PT]) Save(v PT) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.findFree()
	if !ok {
		return 0, ErrNoFreeSlot
	}
	if err := m.saveAt(slot, v); err != nil {
		return 0, err
	}
	return slot, nil
}

// SaveAt overwrites the given slot with v.
func (m *Manager[T, PT]) SaveAt(slot int, v PT) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot < 0 || slot >= m.slots {
		return fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	return m.saveAt(slot, v)
}

func (m *Manager[T, PT]) saveAt(slot int, v PT) error {
	v.Clamp()
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	payload := make([]byte, v.Size())
	v.Encode(payload)
	if err := m.st.SaveBlob(m.ns, m.key(slot), record.Seal(m.version, payload)); err != nil {
		m.lastErr = err
		return err
	}
	m.occupied[slot] = true
	return nil
}

// Load reads the preset in slot into out. Out-of-range slots fail without
// touching storage. A corrupt, truncated, unknown-version or structurally
// invalid record behaves as store.ErrNotFound; out is never partially
// written.
func (m *Manager[T, PT]) Load(slot int, out PT) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot < 0 || slot >= m.slots {
		return fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	var tmp T
	if err := m.loadSlot(slot, &tmp); err != nil {
		return err
	}
	*out = tmp
	return nil
}

// loadSlot reads and fully validates one slot, correcting the occupancy
// cache as a side effect. Callers hold m.mu.
func (m *Manager[T, PT]) loadSlot(slot int, dst *T) error {
	raw, err := m.st.LoadBlob(m.ns, m.key(slot), -1)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.occupied[slot] = false
			return store.ErrNotFound
		}
		m.lastErr = err
		return err
	}

	version, payload, err := record.Open(raw)
	if err != nil {
		return m.corrupt(slot, err)
	}

	switch {
	case version == m.version:
		if len(payload) != PT(dst).Size() {
			return m.corrupt(slot, fmt.Errorf("payload size %d for version %d", len(payload), version))
		}
		if err := PT(dst).Decode(payload); err != nil {
			return m.corrupt(slot, err)
		}
	default:
		migrate, ok := m.migrations[version]
		if !ok {
			// Newer or unrecognized format: never guess at it.
			return m.corrupt(slot, fmt.Errorf("unsupported version %d", version))
		}
		if err := migrate(payload, dst); err != nil {
			return m.corrupt(slot, err)
		}
		logger.Debug("migrated legacy preset on load",
			"ns", m.ns, "slot", slot, "from_version", version, "to_version", m.version)
	}

	PT(dst).Clamp()
	if err := PT(dst).Validate(); err != nil {
		return m.corrupt(slot, err)
	}
	m.occupied[slot] = true
	return nil
}

// corrupt records a bad slot: warn once, mark the slot free, and fold the
// failure into NotFound for the caller.
func (m *Manager[T, PT]) corrupt(slot int, cause error) error {
	logger.Warn("skipping corrupt preset slot", "ns", m.ns, "slot", slot, "err", cause)
	m.occupied[slot] = false
	m.lastErr = fmt.Errorf("slot %d: %w", slot, cause)
	return store.ErrNotFound
}

// List probes every slot and returns the valid ones in slot order.
// Corrupt slots are silently excluded.
func (m *Manager[T, PT]) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, m.slots)
	for i := 0; i < m.slots; i++ {
		var tmp T
		if err := m.loadSlot(i, &tmp); err != nil {
			continue
		}
		out = append(out, Info{Slot: i, Name: PT(&tmp).Label()})
	}
	return out
}

// Delete erases the given slot. Deleting an empty slot succeeds.
func (m *Manager[T, PT]) Delete(slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot < 0 || slot >= m.slots {
		return fmt.Errorf("%w: %d", ErrBadSlot, slot)
	}
	err := m.st.EraseKey(m.ns, m.key(slot))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		m.lastErr = err
		return err
	}
	m.occupied[slot] = false
	return nil
}

// Has reports whether the slot holds a fully valid preset. Unlike the
// occupancy cache this is a deep probe, so a record corrupted behind the
// API is reported as absent.
func (m *Manager[T, PT]) Has(slot int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot < 0 || slot >= m.slots {
		return false
	}
	var tmp T
	return m.loadSlot(slot, &tmp) == nil
}

// Count returns the number of slots the cache believes are occupied.
func (m *Manager[T, PT]) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.occupied {
		if o {
			n++
		}
	}
	return n
}

// FindFreeSlot returns the lowest unoccupied slot id.
func (m *Manager[T, PT]) FindFreeSlot() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findFree()
}

func (m *Manager[T, PT]) findFree() (int, bool) {
	for i, o := range m.occupied {
		if !o {
			return i, true
		}
	}
	return 0, false
}

func (m *Manager[T, PT]) key(slot int) string {
	return fmt.Sprintf(m.keyFmt, slot)
}
