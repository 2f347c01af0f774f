// Command forestsnap saves, loads, relocates and archives landscape
// snapshots and serves the admin endpoints for a running landscape.
package main

import (
	"encoding/json"
	"fmt"
	"os"
)

const usage = `usage: forestsnap <command> [flags]

commands:
  inspect     list tables and row counts of a snapshot store
  relocate    load a snapshot into the configured project and save it again
  stand-save  load a snapshot and save one stand into the stand store
  stand-load  load a snapshot, replace one stand from the stand store, save the result
  archive     archive a snapshot (or list archives with -list)
  restore     restore an archived snapshot
  journal     print the events of the progress journal
  serve       serve the admin endpoints for a landscape
  state       query a running server
  snapshot    trigger a snapshot on a running server`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "inspect":
		inspectCmd(args)
	case "relocate":
		relocateCmd(args)
	case "stand-save":
		standSaveCmd(args)
	case "stand-load":
		standLoadCmd(args)
	case "archive":
		archiveCmd(args)
	case "restore":
		restoreCmd(args)
	case "journal":
		journalCmd(args)
	case "serve":
		serveCmd(args)
	case "state":
		stateCmd(args)
	case "snapshot":
		snapshotCmd(args)
	case "-h", "-help", "--help", "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}

func fatal(prefix string, err error) {
	fmt.Fprintln(os.Stderr, prefix+":", err)
	os.Exit(1)
}
