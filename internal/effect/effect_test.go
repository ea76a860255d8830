package effect

import (
	"errors"
	"path/filepath"
	"testing"

	"lumen/internal/preset"
	"lumen/internal/record"
	"lumen/internal/store/bolt"
)

func tempManager(t *testing.T) (*Manager, *bolt.Store) {
	t.Helper()
	st := bolt.Open(filepath.Join(t.TempDir(), "settings.db"), 256)
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	m := NewManager(st)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	return m, st
}

func TestSunsetScenario(t *testing.T) {
	m, st := tempManager(t)

	err := m.SaveAt(2, &Preset{
		Name:       "Sunset",
		EffectID:   12,
		Brightness: 200,
		Speed:      25,
		PaletteID:  5,
	})
	if err != nil {
		t.Fatal(err)
	}

	var got Preset
	if err := m.Load(2, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "Sunset" || got.EffectID != 12 || got.Brightness != 200 ||
		got.Speed != 25 || got.PaletteID != 5 {
		t.Fatalf("round trip: %+v", got)
	}

	// Corrupt the checksum trailer behind the API.
	raw, err := st.LoadBlob(Namespace, "preset_02", -1)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0xff
	if err := st.SaveBlob(Namespace, "preset_02", raw); err != nil {
		t.Fatal(err)
	}

	if m.Has(2) {
		t.Fatal("hasSlot(2) must be false after corruption")
	}
	for _, info := range m.List() {
		if info.Slot == 2 {
			t.Fatal("list must omit the corrupted slot")
		}
	}
}

func TestClampRanges(t *testing.T) {
	p := Preset{Name: "x", EffectID: 200, Speed: 0, PaletteID: 99}
	p.Clamp()
	if p.EffectID != EffectCount-1 {
		t.Errorf("effect id: got %d", p.EffectID)
	}
	if p.Speed != MinSpeed {
		t.Errorf("speed low: got %d", p.Speed)
	}
	if p.PaletteID != PaletteCount-1 {
		t.Errorf("palette id: got %d", p.PaletteID)
	}

	p = Preset{Name: "x", Speed: 255}
	p.Clamp()
	if p.Speed != MaxSpeed {
		t.Errorf("speed high: got %d", p.Speed)
	}
}

func TestV1MigrationDefaultsPalette(t *testing.T) {
	m, st := tempManager(t)

	// v1 payload: name[16] effectID brightness speed.
	payload := make([]byte, record.NameField+3)
	record.PutName(payload[:record.NameField], "Legacy")
	payload[record.NameField] = 7
	payload[record.NameField+1] = 128
	payload[record.NameField+2] = 50
	if err := st.SaveBlob(Namespace, "preset_00", record.Seal(1, payload)); err != nil {
		t.Fatal(err)
	}

	var got Preset
	if err := m.Load(0, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "Legacy" || got.EffectID != 7 || got.Brightness != 128 || got.Speed != 50 {
		t.Fatalf("migrated fields: %+v", got)
	}
	if got.PaletteID != 0 {
		t.Fatalf("migrated palette should default to 0, got %d", got.PaletteID)
	}
}

func TestEmptyNameRejected(t *testing.T) {
	m, _ := tempManager(t)
	if _, err := m.Save(&Preset{Speed: 10}); err == nil {
		t.Fatal("empty name should be rejected")
	}
}

func TestLongNameTruncated(t *testing.T) {
	m, _ := tempManager(t)
	slot, err := m.Save(&Preset{Name: "AVeryLongPresetNameIndeed", Speed: 10})
	if err != nil {
		t.Fatal(err)
	}
	var got Preset
	if err := m.Load(slot, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Name) != record.NameField-1 {
		t.Fatalf("name should be truncated to %d chars, got %q", record.NameField-1, got.Name)
	}
}

func TestSixteenSlots(t *testing.T) {
	m, _ := tempManager(t)
	for i := 0; i < MaxSlots; i++ {
		if _, err := m.Save(&Preset{Name: "p", Speed: 10}); err != nil {
			t.Fatalf("slot %d: %v", i, err)
		}
	}
	if _, err := m.Save(&Preset{Name: "p", Speed: 10}); !errors.Is(err, preset.ErrNoFreeSlot) {
		t.Fatalf("17th save should fail with ErrNoFreeSlot, got %v", err)
	}
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()
	r.Register(12, map[string]int32{"speed": 25, "intensity": 128})

	if v, ok := r.Default(12, "speed"); !ok || v != 25 {
		t.Fatalf("speed default: got %d, %v", v, ok)
	}
	if _, ok := r.Default(12, "nonexistent"); ok {
		t.Fatal("unknown parameter should not resolve")
	}
	if _, ok := r.Default(99, "speed"); ok {
		t.Fatal("unknown effect should not resolve")
	}
	if !r.Known(12) || r.Known(99) {
		t.Fatal("Known mismatch")
	}
}

func TestRegistryCopiesTable(t *testing.T) {
	r := NewRegistry()
	table := map[string]int32{"speed": 25}
	r.Register(1, table)
	table["speed"] = 99
	if v, _ := r.Default(1, "speed"); v != 25 {
		t.Fatalf("registry must copy tables, got %d", v)
	}
}
