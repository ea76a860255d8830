// Command lumen is the maintenance CLI for the controller's settings
// partition: it inspects, edits and repairs the persisted presets the
// firmware reads at boot.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"lumen/internal/audio"
	"lumen/internal/config"
	"lumen/internal/effect"
	"lumen/internal/identity"
	boltstore "lumen/internal/store/bolt"
	"lumen/internal/zone"

	"lumen/internal/logging"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: lumen [flags] <command> [args]

Commands:
  list <presets|zones|layouts|audio>           list occupied slots
  show <presets|zones|layouts|audio> <slot>    show one slot in full
  delete <presets|zones|layouts|audio> <slot>  erase one slot
  save-effect <slot|-> <name> <fx> <bri> <spd> <pal>
                                               save an effect preset
                                               (- picks the first free slot)
  params <effect-id>                           show stored parameter overrides
  stats                                        settings partition usage
  device                                       device identity and boot count
  erase <namespace>                            erase a whole namespace

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	storePath := flag.String("store", "", "settings partition path (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)

	path := config.ExpandHome(cfg.Store.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}

	st := boltstore.Open(path, cfg.Store.EntryCapacity)
	if err := st.Init(); err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	cat := &catalog{
		effects: effect.NewManager(st),
		zones:   zone.NewConfigManager(st),
		layouts: zone.NewLayoutManager(st),
		audio:   audio.NewManager(st),
	}
	cat.initAll()

	if err := runCommand(st, cat, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(st *boltstore.Store, cat *catalog, cmd string, args []string) error {
	switch cmd {
	case "list":
		return cmdList(cat, args)
	case "show":
		return cmdShow(cat, args)
	case "delete":
		return cmdDelete(cat, args)
	case "save-effect":
		return cmdSaveEffect(cat, args)
	case "params":
		return cmdParams(st, args)
	case "stats":
		return cmdStats(st)
	case "device":
		return cmdDevice(st)
	case "erase":
		return cmdErase(st, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdDevice(st *boltstore.Store) error {
	dev, err := identity.Load(st)
	if err != nil {
		return err
	}
	fmt.Printf("Device ID: %s\n", dev.ID)
	fmt.Printf("Boots:     %d\n", dev.Boots)
	return nil
}

func cmdStats(st *boltstore.Store) error {
	used, free := st.Stats()
	fmt.Printf("Entries used: %d\n", used)
	fmt.Printf("Entries free: %d\n", free)
	return nil
}
