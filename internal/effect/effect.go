// Package effect holds the persisted representation of effect presets:
// a named snapshot of one effect choice and its headline controls. The
// rendering of effects is elsewhere; this package only defines what
// survives a power cycle.
package effect

import (
	"errors"

	"lumen/internal/preset"
	"lumen/internal/record"
	"lumen/internal/store"
)

const (
	Namespace      = "ledpresets"
	MaxSlots       = 16
	CurrentVersion = 2

	// EffectCount and PaletteCount bound the id fields; both follow the
	// effect table compiled into the firmware.
	EffectCount  = 24
	PaletteCount = 16

	MinSpeed = 1
	MaxSpeed = 100
)

// Preset is the version-2 payload: name[16] effectID brightness speed
// paletteID. Version 1 was the same layout without the trailing paletteID.
type Preset struct {
	Name       string
	EffectID   uint8
	Brightness uint8
	Speed      uint8 // MinSpeed..MaxSpeed
	PaletteID  uint8
}

const payloadSize = record.NameField + 4

func (p *Preset) Size() int { return payloadSize }

func (p *Preset) Encode(dst []byte) {
	record.PutName(dst[:record.NameField], p.Name)
	dst[record.NameField] = p.EffectID
	dst[record.NameField+1] = p.Brightness
	dst[record.NameField+2] = p.Speed
	dst[record.NameField+3] = p.PaletteID
}

func (p *Preset) Decode(src []byte) error {
	p.Name = record.GetName(src[:record.NameField])
	p.EffectID = src[record.NameField]
	p.Brightness = src[record.NameField+1]
	p.Speed = src[record.NameField+2]
	p.PaletteID = src[record.NameField+3]
	return nil
}

func (p *Preset) Clamp() {
	if p.EffectID >= EffectCount {
		p.EffectID = EffectCount - 1
	}
	if p.Speed < MinSpeed {
		p.Speed = MinSpeed
	}
	if p.Speed > MaxSpeed {
		p.Speed = MaxSpeed
	}
	if p.PaletteID >= PaletteCount {
		p.PaletteID = PaletteCount - 1
	}
	// Brightness uses the full u8 range.
}

func (p *Preset) Validate() error {
	if p.Name == "" {
		return errors.New("preset name must not be empty")
	}
	return nil
}

func (p *Preset) Label() string { return p.Name }

// migrateV1 decodes the version-1 payload, which carried no palette
// selection; migrated presets default to palette 0.
func migrateV1(payload []byte, dst *Preset) error {
	if len(payload) != record.NameField+3 {
		return errors.New("bad v1 payload size")
	}
	dst.Name = record.GetName(payload[:record.NameField])
	dst.EffectID = payload[record.NameField]
	dst.Brightness = payload[record.NameField+1]
	dst.Speed = payload[record.NameField+2]
	dst.PaletteID = 0
	return nil
}

// Manager is the preset manager for effect presets.
type Manager = preset.Manager[Preset, *Preset]

// NewManager creates the effect preset manager over st.
func NewManager(st store.Store) *Manager {
	return preset.New[Preset, *Preset](st, preset.Options[Preset]{
		Namespace: Namespace,
		Slots:     MaxSlots,
		Version:   CurrentVersion,
		Migrations: map[uint8]preset.Migration[Preset]{
			1: migrateV1,
		},
	})
}
