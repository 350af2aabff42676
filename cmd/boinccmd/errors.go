package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/smnsjas/go-boincrpc/rpcerr"
)

// errorHandler prints the error kind and message, followed by usage help
// for command-line mistakes.
func errorHandler(cmd *cobra.Command) fang.ErrorHandler {
	return func(w io.Writer, styles fang.Styles, err error) {
		_, _ = fmt.Fprintln(w, styles.ErrorHeader.String())
		_, _ = fmt.Fprintln(w, styles.ErrorText.Render(describe(err)+"."))
		_, _ = fmt.Fprintln(w)

		if isUsageError(err) {
			cmd.SetOut(colorprofile.NewWriter(w, os.Environ()))
			cmd.HelpFunc()(cmd, []string{})
			return
		}
		_, _ = fmt.Fprintln(w, lipgloss.JoinHorizontal(
			lipgloss.Left,
			styles.ErrorText.UnsetWidth().Render("Try"),
			styles.Program.Flag.Render("--help"),
			styles.ErrorText.UnsetWidth().UnsetMargins().UnsetTransform().PaddingLeft(1).Render("for usage."),
		))
		_, _ = fmt.Fprintln(w)
	}
}

// describe prefixes protocol errors with their kind so scripts can match on
// it, e.g. "[incorrect password] lookup_account_poll: remote error -206: ...".
func describe(err error) string {
	var rerr *rpcerr.Error
	if !errors.As(err, &rerr) {
		return err.Error()
	}
	label := rerr.Kind.String()
	if rerr.Kind == rpcerr.KindRemote && rpcerr.Known(rerr.Code) {
		label = rpcerr.Message(rerr.Code)
	}
	return "[" + label + "] " + err.Error()
}

func isUsageError(err error) bool {
	if rpcerr.KindOf(err) == rpcerr.KindInvalidArgument {
		return true
	}
	s := err.Error()
	for _, prefix := range []string{
		"flag needs an argument:",
		"unknown flag:",
		"unknown shorthand flag:",
		"invalid argument",
		"if any flags in the group",
		"failed to load config file",
	} {
		if strings.Contains(s, prefix) {
			return true
		}
	}
	return false
}
