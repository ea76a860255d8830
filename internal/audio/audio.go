// Package audio holds the persisted audio-tuning presets: input gain,
// AGC, squelch and the 8-point frequency response curve the sound-reactive
// effects shape their input with. Feature extraction itself is out of
// scope; only the tuning survives a power cycle.
package audio

import (
	"errors"

	"lumen/internal/preset"
	"lumen/internal/record"
	"lumen/internal/store"
)

const (
	Namespace      = "audiotune"
	MaxSlots       = 5
	CurrentVersion = 1

	CurvePoints = 8
	MinGain     = 1
	MaxGain     = 63
)

// Tuning is the version-1 payload: name[16] gain agc squelch curve[8].
type Tuning struct {
	Name    string
	Gain    uint8 // MinGain..MaxGain
	AGC     bool
	Squelch uint8
	Curve   [CurvePoints]uint8
}

const payloadSize = record.NameField + 3 + CurvePoints

func (a *Tuning) Size() int { return payloadSize }

func (a *Tuning) Encode(dst []byte) {
	record.PutName(dst[:record.NameField], a.Name)
	off := record.NameField
	dst[off] = a.Gain
	if a.AGC {
		dst[off+1] = 1
	} else {
		dst[off+1] = 0
	}
	dst[off+2] = a.Squelch
	copy(dst[off+3:], a.Curve[:])
}

func (a *Tuning) Decode(src []byte) error {
	a.Name = record.GetName(src[:record.NameField])
	off := record.NameField
	a.Gain = src[off]
	a.AGC = src[off+1] != 0
	a.Squelch = src[off+2]
	copy(a.Curve[:], src[off+3:off+3+CurvePoints])
	return nil
}

func (a *Tuning) Clamp() {
	if a.Gain < MinGain {
		a.Gain = MinGain
	}
	if a.Gain > MaxGain {
		a.Gain = MaxGain
	}
}

func (a *Tuning) Validate() error {
	if a.Name == "" {
		return errors.New("tuning name must not be empty")
	}
	return nil
}

func (a *Tuning) Label() string { return a.Name }

// Manager is the preset manager for audio tuning presets.
type Manager = preset.Manager[Tuning, *Tuning]

// NewManager creates the audio tuning manager over st.
func NewManager(st store.Store) *Manager {
	return preset.New[Tuning, *Tuning](st, preset.Options[Tuning]{
		Namespace: Namespace,
		Slots:     MaxSlots,
		Version:   CurrentVersion,
	})
}
