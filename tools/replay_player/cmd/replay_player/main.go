package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"swingspin/bowler/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "Path to a recorded session directory")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	report, err := replayplayer.ReplayBundle(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	//1.- Render the report as JSON so callers can pipe the output elsewhere.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
