package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"os"

	"github.com/plan-systems/klog"

	"github.com/dte-systems/go-dte/godte"
	"github.com/dte-systems/go-dte/libdte"
	"github.com/dte-systems/go-dte/libdte/journal"
)

func main() {

	flag.Set("logtostderr", "true")
	flag.Set("v", "2")

	fset := flag.NewFlagSet("", flag.ContinueOnError)
	klog.InitFlags(fset)
	fset.Set("logtostderr", "true")
	fset.Set("v", "2")
	klog.SetFormatter(&klog.FmtConstWidth{
		FileNameCharWidth: 16,
		UseColor:          true,
	})

	engineKind := flag.String("engine", "dte", "engine to run: dte or fractal")
	steps := flag.Int("steps", 50, "number of steps to attempt")
	seed := flag.Int64("seed", 0, "rng seed (0 seeds from the clock)")
	every := flag.Int("every", 1, "print every Nth snapshot")
	journalPath := flag.String("journal", "", "journal db path (empty disables journaling)")
	topo := flag.String("topo", "", "seed topology expression (empty uses the built-in seed graph)")
	start := flag.String("start", "", "start node (requires -topo)")
	resetOnDeadEnd := flag.Bool("reset-on-dead-end", true, "reset and keep going when the walk strands")
	maxNodes := flag.Int("max-nodes", 0, "graph growth ceiling (0 for default)")

	flag.Parse()

	if *seed == 0 {
		*seed = rand.Int63()
	}

	opts := godte.EngineOpts{
		Seed:      *seed,
		SeedExpr:  *topo,
		StartNode: *start,
		MaxNodes:  *maxNodes,
	}

	var jrnl *journal.Journal
	if *journalPath != "" {
		jopts := journal.DefaultOpts()
		jopts.DbPathName = *journalPath
		var err error
		jrnl, err = jopts.Open()
		if err != nil {
			klog.Fatalf("failed to open journal: %v", err)
		}
		defer jrnl.Close()
		opts.Notifier = jrnl
	}

	var eng godte.RecursionEngine
	var err error
	switch *engineKind {
	case "dte":
		eng, err = libdte.NewDTEngine(opts)
	case "fractal":
		eng, err = libdte.NewFractalEngine(opts)
	default:
		klog.Fatalf("unknown engine %q", *engineKind)
	}
	if err != nil {
		klog.Fatalf("failed to start %s engine: %v", *engineKind, err)
	}

	runOpts := libdte.RunOpts{
		Steps:          *steps,
		ResetOnDeadEnd: *resetOnDeadEnd,
	}
	count := libdte.RunEngine(eng, runOpts).
		Print(os.Stdout, *every).
		PullAll()
	klog.Infof("completed %d of %d steps (seed %d)", count, *steps, *seed)

	final, err := json.MarshalIndent(eng.GetState(), "", "  ")
	if err != nil {
		klog.Fatalf("failed to encode final state: %v", err)
	}
	os.Stdout.Write(final)
	os.Stdout.Write([]byte("\n"))

	klog.Flush()
}
