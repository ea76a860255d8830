// Package dirty implements the debounced parameter store: the bridge
// between interactive parameter editing (potentially once per rendered
// frame) and flash, whose write-cycle budget cannot absorb that rate.
//
// Mutations are captured in RAM only and marked dirty; a periodic Tick
// flushes records that have been quiet for a full debounce window. Records
// are sparse: only parameters differing from their registered defaults are
// stored, so a record's meaning is always relative to the firmware's
// current default table. A parameter equal to its default today reads as
// "default" under any future table too, including a changed one.
package dirty

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"lumen/internal/logging"
	"lumen/internal/record"
	"lumen/internal/store"
)

const (
	Namespace      = "fxparams"
	CurrentVersion = 1

	// MaxRecords bounds the RAM cache; MaxEntries bounds the sparse
	// diff captured per effect.
	MaxRecords = 16
	MaxEntries = 16

	// paramNameField is the encoded width of a parameter name:
	// 11 chars plus NUL.
	paramNameField = 12
	entrySize      = paramNameField + 4
	headerSize     = 2 // effectID, entry count
)

var logger = logging.For("dirty")

// Mode is the store-availability state.
type Mode uint8

const (
	// Backed: mutations are buffered and flushed to flash.
	Backed Mode = iota
	// Volatile: the store failed; everything is RAM-only until a fresh
	// Init. Settings stop surviving reboots but running state is safe.
	Volatile
)

func (m Mode) String() string {
	if m == Backed {
		return "backed"
	}
	return "volatile"
}

// ParamSource exposes the live parameter values of an effect instance.
// EachParam must be cheap: it is called on the render path.
type ParamSource interface {
	EachParam(fn func(name string, value int32))
}

// ParamSink accepts parameter values applied back by name on effect
// activation. SetParam reports whether the name was recognized.
type ParamSink interface {
	SetParam(name string, value int32) bool
}

// DefaultSource resolves the registered default for one parameter of one
// effect; effect.Registry implements it.
type DefaultSource interface {
	Default(effectID uint8, name string) (int32, bool)
}

type entry struct {
	name  string
	value int32
}

type paramRecord struct {
	effectID   uint8
	inUse      bool
	dirty      bool
	lastChange time.Time
	entries    []entry
}

// Debouncer buffers per-effect sparse parameter diffs and writes them
// through the checksummed-record path on a housekeeping cadence. Mark
// never blocks on storage; only Tick and Activate touch the store.
type Debouncer struct {
	mu       sync.Mutex
	st       store.Store
	defaults DefaultSource
	window   time.Duration
	mode     Mode
	recs     [MaxRecords]paramRecord
	scratch  []byte
}

// New creates a Debouncer flushing through st after the given quiet
// window. Call Init before use.
func New(st store.Store, defaults DefaultSource, window time.Duration) *Debouncer {
	d := &Debouncer{
		st:       st,
		defaults: defaults,
		window:   window,
		mode:     Volatile,
		scratch:  make([]byte, 0, headerSize+MaxEntries*entrySize+record.Overhead),
	}
	for i := range d.recs {
		d.recs[i].entries = make([]entry, 0, MaxEntries)
	}
	return d
}

// Init brings the store up and enters Backed mode on success. This is the
// only way back to Backed after a failure forced Volatile.
func (d *Debouncer) Init() error {
	err := d.st.Init()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil || !d.st.Ready() {
		d.mode = Volatile
		if err == nil {
			err = store.ErrNotInitialized
		}
		logger.Warn("parameter store unavailable, running volatile", "err", err)
		return err
	}
	d.mode = Backed
	return nil
}

// Mode returns the current store-availability mode.
func (d *Debouncer) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Mark recaptures the sparse diff of the effect's live parameters and
// stamps the record dirty. No I/O happens here, in either mode; flushing
// is Tick's job. Safe to call at frame rate.
func (d *Debouncer) Mark(effectID uint8, src ParamSource, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := d.findOrCreate(effectID, now)
	if rec == nil {
		logger.Warn("parameter cache full, change not tracked", "effect", effectID)
		return
	}

	// Full recapture, not incremental: the diff is recomputed from the
	// live values every time, so a parameter moved back to its default
	// drops out of the record.
	rec.entries = rec.entries[:0]
	src.EachParam(func(name string, value int32) {
		if def, ok := d.defaults.Default(effectID, name); ok && def == value {
			return
		}
		if len(rec.entries) == MaxEntries {
			logger.Warn("sparse entry overflow, parameter dropped", "effect", effectID, "param", name)
			return
		}
		rec.entries = append(rec.entries, entry{name: name, value: value})
	})
	rec.dirty = true
	rec.lastChange = now
}

// Tick flushes every dirty record whose last change is at least one
// debounce window old. In Volatile mode it does nothing.
func (d *Debouncer) Tick(now time.Time) {
	d.flush(now, false)
}

// Flush writes out all dirty records regardless of the window. Used on
// graceful shutdown.
func (d *Debouncer) Flush(now time.Time) {
	d.flush(now, true)
}

func (d *Debouncer) flush(now time.Time, force bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != Backed {
		return
	}
	for i := range d.recs {
		rec := &d.recs[i]
		if !rec.inUse || !rec.dirty {
			continue
		}
		if !force && now.Sub(rec.lastChange) < d.window {
			continue
		}
		if err := d.save(rec); err != nil {
			logger.Error("parameter flush failed, going volatile", "effect", rec.effectID, "err", err)
			d.mode = Volatile
			return
		}
		rec.dirty = false
	}
}

// Activate applies the stored sparse diff for the effect onto dst. The
// store copy wins over the RAM cache; the cache is the fallback when the
// store cannot produce a usable record. Parameters absent from the record
// are left at whatever defaults dst already carries.
func (d *Debouncer) Activate(effectID uint8, dst ParamSink) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode == Backed {
		raw, err := d.st.LoadBlob(Namespace, key(effectID), -1)
		switch {
		case err == nil:
			if d.applyRaw(effectID, raw, dst) {
				return
			}
		case errors.Is(err, store.ErrNotFound):
			// First activation since the last erase: nothing stored.
		default:
			logger.Error("parameter load failed, going volatile", "effect", effectID, "err", err)
			d.mode = Volatile
		}
	}

	if rec := d.find(effectID); rec != nil {
		for _, e := range rec.entries {
			if !dst.SetParam(e.name, e.value) {
				logger.Debug("stored parameter not recognized", "effect", effectID, "param", e.name)
			}
		}
	}
}

// applyRaw validates and applies a stored record, reporting whether it was
// usable. A checksum failure on a plausible record means flash gave us
// damaged data; that flips the store to Volatile.
func (d *Debouncer) applyRaw(effectID uint8, raw []byte, dst ParamSink) bool {
	version, payload, err := record.Open(raw)
	if err != nil {
		logger.Error("stored parameters corrupt, going volatile", "effect", effectID, "err", err)
		d.mode = Volatile
		return false
	}
	if version != CurrentVersion {
		logger.Warn("stored parameters have unknown version, ignored", "effect", effectID, "version", version)
		return false
	}
	if len(payload) < headerSize || payload[0] != effectID {
		logger.Warn("stored parameters malformed, ignored", "effect", effectID)
		return false
	}
	count := int(payload[1])
	if len(payload) != headerSize+count*entrySize {
		logger.Warn("stored parameters malformed, ignored", "effect", effectID)
		return false
	}
	for i := 0; i < count; i++ {
		off := headerSize + i*entrySize
		name := record.GetName(payload[off : off+paramNameField])
		value := int32(binary.LittleEndian.Uint32(payload[off+paramNameField : off+entrySize]))
		if !dst.SetParam(name, value) {
			logger.Debug("stored parameter not recognized", "effect", effectID, "param", name)
		}
	}
	return true
}

// Erase drops the stored and cached diff for one effect (reset to
// defaults).
func (d *Debouncer) Erase(effectID uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec := d.find(effectID); rec != nil {
		rec.inUse = false
		rec.dirty = false
		rec.entries = rec.entries[:0]
	}
	if d.mode != Backed {
		return nil
	}
	err := d.st.EraseKey(Namespace, key(effectID))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Run flushes on the given housekeeping cadence until done is closed.
func (d *Debouncer) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Tick(time.Now())
		case <-done:
			return
		}
	}
}

// save encodes and persists one record. Callers hold d.mu.
func (d *Debouncer) save(rec *paramRecord) error {
	payload := d.scratch[:headerSize+len(rec.entries)*entrySize]
	payload[0] = rec.effectID
	payload[1] = uint8(len(rec.entries))
	for i, e := range rec.entries {
		off := headerSize + i*entrySize
		record.PutName(payload[off:off+paramNameField], e.name)
		binary.LittleEndian.PutUint32(payload[off+paramNameField:off+entrySize], uint32(e.value))
	}
	return d.st.SaveBlob(Namespace, key(rec.effectID), record.Seal(CurrentVersion, payload))
}

func (d *Debouncer) find(effectID uint8) *paramRecord {
	for i := range d.recs {
		if d.recs[i].inUse && d.recs[i].effectID == effectID {
			return &d.recs[i]
		}
	}
	return nil
}

// findOrCreate returns the record for the effect, claiming a free one or
// evicting the stalest clean record if needed. When every record is dirty
// the new identity is not tracked: dropping one edit beats blocking the
// render path or losing unflushed changes.
func (d *Debouncer) findOrCreate(effectID uint8, now time.Time) *paramRecord {
	if rec := d.find(effectID); rec != nil {
		return rec
	}
	var victim *paramRecord
	for i := range d.recs {
		rec := &d.recs[i]
		if !rec.inUse {
			victim = rec
			break
		}
		if !rec.dirty && (victim == nil || rec.lastChange.Before(victim.lastChange)) {
			victim = rec
		}
	}
	if victim == nil {
		return nil
	}
	victim.effectID = effectID
	victim.inUse = true
	victim.dirty = false
	victim.entries = victim.entries[:0]
	victim.lastChange = now
	return victim
}

func key(effectID uint8) string {
	return fmt.Sprintf("fx_%d", effectID)
}
