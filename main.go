// Command autohub discovers, runs, generates and schedules workflow scripts.
package main

import (
	"fmt"
	"os"

	"github.com/zjrosen/autohub/cmd"
)

// Set via -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	os.Exit(cmd.ExitCode(cmd.Execute()))
}
