package main

import (
	"fmt"
	"strconv"
	"time"

	"lumen/internal/audio"
	"lumen/internal/dirty"
	"lumen/internal/effect"
	"lumen/internal/preset"
	"lumen/internal/store"
	"lumen/internal/zone"
)

// manager is the common surface of the four preset managers the commands
// operate on; the per-payload detail view comes from the catalog.
type manager interface {
	Init() error
	List() []preset.Info
	Delete(slot int) error
	Count() int
	Slots() int
	Namespace() string
}

type catalog struct {
	effects *effect.Manager
	zones   *zone.Manager
	layouts *zone.Manager
	audio   *audio.Manager
}

func (c *catalog) initAll() {
	for _, m := range []manager{c.effects, c.zones, c.layouts, c.audio} {
		// Init failures are per-slot diagnostics, not fatal; the
		// managers stay usable.
		_ = m.Init()
	}
}

// byName resolves a manager name to its listing surface and a detail
// formatter for show.
func (c *catalog) byName(name string) (manager, func(slot int) (string, error), bool) {
	switch name {
	case "presets":
		return c.effects, func(slot int) (string, error) {
			var p effect.Preset
			if err := c.effects.Load(slot, &p); err != nil {
				return "", err
			}
			return fmt.Sprintf("name=%q effect=%d brightness=%d speed=%d palette=%d",
				p.Name, p.EffectID, p.Brightness, p.Speed, p.PaletteID), nil
		}, true
	case "zones":
		return c.zones, zoneDetail(c.zones), true
	case "layouts":
		return c.layouts, zoneDetail(c.layouts), true
	case "audio":
		return c.audio, func(slot int) (string, error) {
			var a audio.Tuning
			if err := c.audio.Load(slot, &a); err != nil {
				return "", err
			}
			return fmt.Sprintf("name=%q gain=%d agc=%v squelch=%d curve=%v",
				a.Name, a.Gain, a.AGC, a.Squelch, a.Curve), nil
		}, true
	default:
		return nil, nil, false
	}
}

func zoneDetail(m *zone.Manager) func(slot int) (string, error) {
	return func(slot int) (string, error) {
		var z zone.Config
		if err := m.Load(slot, &z); err != nil {
			return "", err
		}
		s := fmt.Sprintf("name=%q zones=%d centre=%d", z.Name, z.ZoneCount, z.Centre)
		for i := 0; i < int(z.ZoneCount); i++ {
			s += fmt.Sprintf("\n  zone %d: [%d,%d) effect=%d",
				i, z.Segments[i].Start, z.Segments[i].End, z.Effects[i])
		}
		return s, nil
	}
}

func cmdList(cat *catalog, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: list <presets|zones|layouts|audio>")
	}
	m, _, ok := cat.byName(args[0])
	if !ok {
		return fmt.Errorf("unknown manager %q", args[0])
	}
	infos := m.List()
	if len(infos) == 0 {
		fmt.Printf("%s: (empty)\n", args[0])
		return nil
	}
	fmt.Printf("%s (%d/%d slots):\n", args[0], len(infos), m.Slots())
	for _, info := range infos {
		fmt.Printf("  %2d  %s\n", info.Slot, info.Name)
	}
	return nil
}

func cmdShow(cat *catalog, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: show <presets|zones|layouts|audio> <slot>")
	}
	_, detail, ok := cat.byName(args[0])
	if !ok {
		return fmt.Errorf("unknown manager %q", args[0])
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad slot %q", args[1])
	}
	s, err := detail(slot)
	if err != nil {
		return err
	}
	fmt.Printf("slot %d: %s\n", slot, s)
	return nil
}

func cmdDelete(cat *catalog, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: delete <presets|zones|layouts|audio> <slot>")
	}
	m, _, ok := cat.byName(args[0])
	if !ok {
		return fmt.Errorf("unknown manager %q", args[0])
	}
	slot, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad slot %q", args[1])
	}
	if err := m.Delete(slot); err != nil {
		return err
	}
	fmt.Printf("deleted %s slot %d\n", args[0], slot)
	return nil
}

func cmdSaveEffect(cat *catalog, args []string) error {
	if len(args) != 6 {
		return fmt.Errorf("usage: save-effect <slot|-> <name> <effect> <brightness> <speed> <palette>")
	}
	nums := make([]uint8, 4)
	for i, a := range args[2:] {
		n, err := strconv.ParseUint(a, 10, 8)
		if err != nil {
			return fmt.Errorf("bad value %q", a)
		}
		nums[i] = uint8(n)
	}
	p := &effect.Preset{
		Name:       args[1],
		EffectID:   nums[0],
		Brightness: nums[1],
		Speed:      nums[2],
		PaletteID:  nums[3],
	}

	if args[0] == "-" {
		slot, err := cat.effects.Save(p)
		if err != nil {
			return err
		}
		fmt.Printf("saved %q to slot %d\n", p.Name, slot)
		return nil
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad slot %q", args[0])
	}
	if err := cat.effects.SaveAt(slot, p); err != nil {
		return err
	}
	fmt.Printf("saved %q to slot %d\n", p.Name, slot)
	return nil
}

// printSink prints applied parameters instead of driving a live effect.
type printSink struct{ n int }

func (p *printSink) SetParam(name string, value int32) bool {
	fmt.Printf("  %-11s = %d\n", name, value)
	p.n++
	return true
}

func cmdParams(st store.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: params <effect-id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return fmt.Errorf("bad effect id %q", args[0])
	}

	// An empty registry: every stored value counts as an override here.
	d := dirty.New(st, effect.NewRegistry(), time.Second)
	if err := d.Init(); err != nil {
		return err
	}
	sink := &printSink{}
	fmt.Printf("stored overrides for effect %d:\n", id)
	d.Activate(uint8(id), sink)
	if sink.n == 0 {
		fmt.Println("  (none)")
	}
	return nil
}

func cmdErase(st store.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: erase <namespace>")
	}
	if err := st.EraseAll(args[0]); err != nil {
		return err
	}
	fmt.Printf("erased namespace %q\n", args[0])
	return nil
}
