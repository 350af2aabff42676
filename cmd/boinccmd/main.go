// boinccmd controls a BOINC compute client over GUI RPC.
//
// Usage:
//
//	boinccmd [--host hostname[:port]] [--passwd password] --get_host_info
//	boinccmd --lookup_account URL email password
//	boinccmd --project URL detach
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cmd := newRootCommand(newApp(os.Stdin, os.Stdout, os.Stderr))
	if err := fang.Execute(
		ctx,
		cmd,
		fang.WithVersion(versioninfo.Short()),
		fang.WithErrorHandler(errorHandler(cmd)),
	); err != nil {
		os.Exit(1)
	}
}
