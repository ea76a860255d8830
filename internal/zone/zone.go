// Package zone holds the persisted representation of zone layouts: how
// the LED strip is split into independently rendered segments and which
// effect each segment runs. The mapping of zones onto physical LEDs
// happens in the composer; only its saved form lives here.
//
// Layouts were originally stored as a four-value enum (single, dual,
// triple, quad). The current format stores the segment table explicitly;
// enum-era records are migrated on load using the canonical segment
// tables the enum used to imply.
package zone

import (
	"encoding/binary"
	"errors"
	"fmt"

	"lumen/internal/effect"
	"lumen/internal/preset"
	"lumen/internal/record"
	"lumen/internal/store"
)

const (
	ConfigNamespace = "zonecfg"
	ConfigSlots     = 4
	LayoutNamespace = "zonelayout"
	LayoutSlots     = 8
	CurrentVersion  = 2

	// StripLen is the LED count of the strip; segment bounds live in
	// [0, StripLen].
	StripLen = 160
	MaxZones = 4
)

// Legacy layout enum, version-1 records only.
const (
	LayoutSingle uint8 = iota
	LayoutDual
	LayoutTriple
	LayoutQuad
)

// Segment is a half-open LED range [Start, End).
type Segment struct {
	Start uint16
	End   uint16
}

// Config is the version-2 payload: name[16] zoneCount centre(u16) then
// MaxZones segments (start,end u16 each) and MaxZones per-zone effect ids.
// Unused trailing segment and effect entries are zero.
type Config struct {
	Name      string
	ZoneCount uint8 // 1..MaxZones
	Centre    uint16
	Segments  [MaxZones]Segment
	Effects   [MaxZones]uint8
}

const payloadSize = record.NameField + 1 + 2 + MaxZones*4 + MaxZones

func (c *Config) Size() int { return payloadSize }

func (c *Config) Encode(dst []byte) {
	record.PutName(dst[:record.NameField], c.Name)
	off := record.NameField
	dst[off] = c.ZoneCount
	binary.LittleEndian.PutUint16(dst[off+1:], c.Centre)
	off += 3
	for _, s := range c.Segments {
		binary.LittleEndian.PutUint16(dst[off:], s.Start)
		binary.LittleEndian.PutUint16(dst[off+2:], s.End)
		off += 4
	}
	copy(dst[off:], c.Effects[:])
}

func (c *Config) Decode(src []byte) error {
	c.Name = record.GetName(src[:record.NameField])
	off := record.NameField
	c.ZoneCount = src[off]
	c.Centre = binary.LittleEndian.Uint16(src[off+1:])
	off += 3
	for i := range c.Segments {
		c.Segments[i].Start = binary.LittleEndian.Uint16(src[off:])
		c.Segments[i].End = binary.LittleEndian.Uint16(src[off+2:])
		off += 4
	}
	copy(c.Effects[:], src[off:off+MaxZones])
	return nil
}

func (c *Config) Clamp() {
	if c.ZoneCount < 1 {
		c.ZoneCount = 1
	}
	if c.ZoneCount > MaxZones {
		c.ZoneCount = MaxZones
	}
	for i := range c.Effects {
		if c.Effects[i] >= effect.EffectCount {
			c.Effects[i] = effect.EffectCount - 1
		}
	}
}

// Validate checks the structural invariants clamping cannot repair: the
// declared zone count must match the populated segment table, the
// segments must tile the strip contiguously, and the zone boundaries
// must mirror around the declared centre.
func (c *Config) Validate() error {
	segs := c.Segments[:c.ZoneCount]

	if segs[0].Start != 0 {
		return fmt.Errorf("first segment starts at %d, not 0", segs[0].Start)
	}
	for i, s := range segs {
		if s.Start >= s.End {
			return fmt.Errorf("segment %d is empty or inverted [%d,%d)", i, s.Start, s.End)
		}
		if i > 0 && s.Start != segs[i-1].End {
			return fmt.Errorf("gap or overlap between segments %d and %d", i-1, i)
		}
	}
	if segs[len(segs)-1].End != StripLen {
		return fmt.Errorf("segments end at %d, strip is %d", segs[len(segs)-1].End, StripLen)
	}
	for i := int(c.ZoneCount); i < MaxZones; i++ {
		if c.Segments[i] != (Segment{}) {
			return fmt.Errorf("unused segment %d is populated", i)
		}
	}

	if c.Centre == 0 || c.Centre >= StripLen {
		return fmt.Errorf("centre %d outside strip", c.Centre)
	}
	// Every internal zone boundary must have its mirror image around
	// the centre among the boundaries, or the composer cannot render
	// the layout symmetrically.
	for i := 0; i < len(segs)-1; i++ {
		b := int(segs[i].End)
		mirror := 2*int(c.Centre) - b
		if !c.hasBoundary(mirror) {
			return fmt.Errorf("boundary %d has no mirror around centre %d", b, c.Centre)
		}
	}
	return nil
}

func (c *Config) hasBoundary(pos int) bool {
	for i := 0; i < int(c.ZoneCount)-1; i++ {
		if int(c.Segments[i].End) == pos {
			return true
		}
	}
	return false
}

func (c *Config) Label() string { return c.Name }

// ReferenceSegments returns the canonical segment table the legacy layout
// enum implied. These tables are frozen: migration correctness for flash
// images written by enum-era firmware depends on them.
func ReferenceSegments(layout uint8) ([MaxZones]Segment, uint8, error) {
	switch layout {
	case LayoutSingle:
		return [MaxZones]Segment{{0, 160}}, 1, nil
	case LayoutDual:
		return [MaxZones]Segment{{0, 80}, {80, 160}}, 2, nil
	case LayoutTriple:
		return [MaxZones]Segment{{0, 40}, {40, 120}, {120, 160}}, 3, nil
	case LayoutQuad:
		return [MaxZones]Segment{{0, 40}, {40, 80}, {80, 120}, {120, 160}}, 4, nil
	default:
		return [MaxZones]Segment{}, 0, fmt.Errorf("unknown layout %d", layout)
	}
}

const v1PayloadSize = record.NameField + 1 + MaxZones

// migrateV1 decodes the enum-era payload: name[16] layout effects[4].
func migrateV1(payload []byte, dst *Config) error {
	if len(payload) != v1PayloadSize {
		return errors.New("bad v1 payload size")
	}
	segs, count, err := ReferenceSegments(payload[record.NameField])
	if err != nil {
		return err
	}
	dst.Name = record.GetName(payload[:record.NameField])
	dst.ZoneCount = count
	dst.Centre = StripLen / 2
	dst.Segments = segs
	copy(dst.Effects[:], payload[record.NameField+1:])
	return nil
}

// Manager is a preset manager over zone configurations; the same payload
// backs both the active zone configs and the named layout presets.
type Manager = preset.Manager[Config, *Config]

// NewConfigManager creates the manager for active zone configurations.
func NewConfigManager(st store.Store) *Manager {
	return newManager(st, ConfigNamespace, ConfigSlots)
}

// NewLayoutManager creates the manager for named zone layout presets.
func NewLayoutManager(st store.Store) *Manager {
	return newManager(st, LayoutNamespace, LayoutSlots)
}

func newManager(st store.Store, ns string, slots int) *Manager {
	return preset.New[Config, *Config](st, preset.Options[Config]{
		Namespace: ns,
		Slots:     slots,
		Version:   CurrentVersion,
		Migrations: map[uint8]preset.Migration[Config]{
			1: migrateV1,
		},
	})
}
