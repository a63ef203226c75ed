// Command validate loads and schema-checks the world definition files,
// printing a summary. Intended for CI and for authors editing world files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"mudgate.gg/internal/world"
)

func main() {
	worldDir := flag.String("worlds", "./configs/worlds", "world definition directory")
	flag.Parse()

	logger := log.New(os.Stderr, "[validate] ", 0)

	def, err := world.Load(*worldDir)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	issues := def.CheckReferences()
	for _, issue := range issues {
		logger.Printf("warning: %v", issue)
	}

	fmt.Printf("%d zones, %d rooms, default room %q\n", len(def.Zones), len(def.Rooms), def.DefaultRoom)
	for _, z := range def.Zones {
		fmt.Printf("  zone %s (%s)\n", z.ID, z.Name)
		for _, r := range def.Rooms {
			if r.ZoneID != z.ID {
				continue
			}
			voice := ""
			if r.HasVoice {
				voice = " +voice"
			}
			fmt.Printf("    room %s%s\n", r.ID, voice)
		}
	}

	if len(issues) > 0 {
		os.Exit(1)
	}
}
