package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/tacsim/battlesim/internal/sim"
	"github.com/tacsim/battlesim/pkg/core"
)

type cliOptions struct {
	configDir   string
	matchName   string
	seed        int64
	combatants  int
	tdm         bool
	showVersion bool
}

func parseFlags() cliOptions {
	var opts cliOptions
	flag.StringVar(&opts.configDir, "config", ".", "directory containing config.json")
	flag.StringVar(&opts.matchName, "name", "", "match name override")
	flag.Int64Var(&opts.seed, "seed", 0, "scenario seed override (0 uses config, then wall clock)")
	flag.IntVar(&opts.combatants, "combatants", 0, "combatants per faction override")
	flag.BoolVar(&opts.tdm, "tdm", false, "force team-deathmatch victory rules")
	flag.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	flag.Parse()
	return opts
}

func printResult(m *sim.Match) {
	result := m.Result()
	us, opfor := m.Tickets()

	winner := result.Winner.String()
	if result.Winner == core.FactionNone {
		winner = "DRAW"
	}

	fmt.Println()
	fmt.Printf("  winner:   %s\n", winner)
	fmt.Printf("  reason:   %s\n", result.Reason)
	fmt.Printf("  duration: %s\n", m.Elapsed().Round(time.Second))
	fmt.Printf("  tickets:  US %.0f / OPFOR %.0f\n", us, opfor)
	for _, z := range m.ZoneStatuses() {
		if z.IsHomeBase {
			continue
		}
		fmt.Printf("  zone %-10s %s (%.0f%%)\n", z.Name, z.Owner, z.Progress)
	}
	fmt.Println()
}
