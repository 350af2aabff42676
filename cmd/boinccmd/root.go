package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	boincrpc "github.com/smnsjas/go-boincrpc"
	"github.com/smnsjas/go-boincrpc/config"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

// app holds the process streams so tests can swap them.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	// readPassword prompts for the GUI RPC password without echo.
	readPassword func() (string, error)

	clientOpts []boincrpc.Option
}

func newApp(stdin *os.File, stdout, stderr io.Writer) *app {
	a := &app{stdout: stdout, stderr: stderr, getenv: os.Getenv}
	a.readPassword = func() (string, error) {
		fd := int(stdin.Fd())
		if !term.IsTerminal(fd) {
			return readLine(stdin)
		}
		fmt.Fprint(stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return a
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

type flags struct {
	host       string
	passwd     string
	askPasswd  bool
	configPath string
	logLevel   string

	getHostInfo       bool
	clientVersion     bool
	getState          bool
	acctMgrInfo       bool
	projectStatus     bool
	projectInitStatus bool
	rpc               string

	acctMgrAttach bool
	lookupAccount bool
	projectAttach bool
	project       bool
	pollTimeout   time.Duration
}

// positional describes a flag whose values follow as positional arguments,
// like --lookup_account URL email password.
type positional struct {
	name  string
	set   *bool
	nargs []string
}

func newRootCommand(a *app) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "boinccmd [flags] [ARGS...]",
		Short: "Control a BOINC client over GUI RPC",
		Long: `boinccmd talks to a running BOINC client on port 31416.

Flags that take several values read them as positional arguments:
  boinccmd --lookup_account URL email password
  boinccmd --project URL {reset|detach|update|suspend|resume|nomorework|allowmorework|detach_when_done|dont_detach_when_done}`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, &f, args)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.host, "host", "", "connect to `hostname[:port]`")
	fs.StringVar(&f.passwd, "passwd", "", "`password` for RPC authentication")
	fs.BoolVar(&f.askPasswd, "ask-passwd", false, "prompt for the RPC password")
	fs.StringVar(&f.configPath, "config", "", "TOML configuration `file`")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	fs.BoolVar(&f.getHostInfo, "get_host_info", false, "show host info")
	fs.BoolVar(&f.clientVersion, "client_version", false, "show client version")
	fs.BoolVar(&f.getState, "get_state", false, "show entire state")
	fs.BoolVar(&f.acctMgrInfo, "acct_mgr_info", false, "show current account manager info")
	fs.BoolVar(&f.projectStatus, "get_project_status", false, "show status of all attached projects")
	fs.BoolVar(&f.projectInitStatus, "get_project_init_status", false, "show the project set at install time")
	fs.StringVar(&f.rpc, "rpc", "", "send a raw request `xml` fragment, e.g. \"<get_state/>\"")

	fs.BoolVar(&f.acctMgrAttach, "acct_mgr_attach", false, "attach to account manager (args: URL name password)")
	fs.BoolVar(&f.lookupAccount, "lookup_account", false, "look up an account and print its authenticator (args: URL email password)")
	fs.BoolVar(&f.projectAttach, "project_attach", false, "attach to project (args: URL auth)")
	fs.BoolVar(&f.project, "project", false, "run a project operation (args: URL op)")
	fs.DurationVar(&f.pollTimeout, "poll-timeout", 0, "give up on attach/lookup after this long (0 = attempt limit only)")

	cmd.MarkFlagsMutuallyExclusive("passwd", "ask-passwd")
	cmd.MarkFlagsMutuallyExclusive("acct_mgr_attach", "lookup_account", "project_attach", "project")
	return cmd
}

func (a *app) run(cmd *cobra.Command, f *flags, args []string) error {
	ctx := cmd.Context()

	positionals := []positional{
		{"acct_mgr_attach", &f.acctMgrAttach, []string{"URL", "name", "password"}},
		{"lookup_account", &f.lookupAccount, []string{"URL", "email", "password"}},
		{"project_attach", &f.projectAttach, []string{"URL", "auth"}},
		{"project", &f.project, []string{"URL", "op"}},
	}
	var active *positional
	for i := range positionals {
		if *positionals[i].set {
			active = &positionals[i]
		}
	}
	switch {
	case active == nil && len(args) > 0:
		return fmt.Errorf("invalid argument %q", args[0])
	case active != nil && len(args) != len(active.nargs):
		return fmt.Errorf("invalid argument: --%s accepts %d arg(s), received %d (%s)",
			active.name, len(active.nargs), len(args), strings.Join(active.nargs, " "))
	}

	simple := f.getHostInfo || f.clientVersion || f.getState || f.acctMgrInfo ||
		f.projectStatus || f.projectInitStatus || f.rpc != ""
	if !simple && active == nil {
		return cmd.Help()
	}

	// Validate the project operation before touching the network.
	if f.project {
		if _, err := boincrpc.ParseProjectOp(args[1]); err != nil {
			return err
		}
	}

	cfg, err := a.loadConfig(cmd, f)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	password, err := a.password(cmd, f, cfg, logger)
	if err != nil {
		return err
	}

	clientCfg := cfg.Client(password)
	if f.pollTimeout > 0 {
		clientCfg.PollTimeout = f.pollTimeout
	}

	opts := append([]boincrpc.Option{boincrpc.WithLogger(logger)}, a.clientOpts...)
	return boincrpc.Do(ctx, clientCfg, func(c *boincrpc.Client) error {
		return a.dispatch(ctx, c, f, args)
	}, opts...)
}

func (a *app) loadConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		if err := config.LoadFile(&cfg, f.configPath); err != nil {
			return config.Config{}, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := config.ApplyEnv(&cfg, a.getenv); err != nil {
		return config.Config{}, err
	}

	if cmd.Flags().Changed("host") {
		host, port, err := config.ParseHostPort(f.host, config.Default().Port)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid argument --host: %w", err)
		}
		cfg.Host, cfg.Port = host, port
	}
	if cmd.Flags().Changed("log-level") {
		lvl, ok := config.ParseLogLevel(f.logLevel)
		if !ok {
			return config.Config{}, fmt.Errorf("invalid argument --log-level %q", f.logLevel)
		}
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

// password resolves the RPC secret: flag, prompt, config, then the
// daemon's password file. An unreadable password file is only a warning.
func (a *app) password(cmd *cobra.Command, f *flags, cfg config.Config, logger *slog.Logger) (string, error) {
	switch {
	case cmd.Flags().Changed("passwd"):
		return f.passwd, nil
	case f.askPasswd:
		return a.readPassword()
	}

	pw, err := cfg.ResolvePassword()
	if errors.Is(err, config.ErrPasswordUnavailable) {
		logger.Warn("continuing without password", "file", cfg.PasswordFile, "error", err)
		return "", nil
	}
	return pw, err
}

func (a *app) dispatch(ctx context.Context, c *boincrpc.Client, f *flags, args []string) error {
	type step struct {
		enabled bool
		call    func(context.Context) (*xmltree.Node, error)
	}
	steps := []step{
		{f.getHostInfo, c.HostInfo},
		{f.clientVersion, c.ExchangeVersions},
		{f.getState, c.State},
		{f.acctMgrInfo, c.AcctMgrInfo},
		{f.projectStatus, c.ProjectStatus},
		{f.projectInitStatus, c.ProjectInitStatus},
	}
	for _, s := range steps {
		if !s.enabled {
			continue
		}
		node, err := s.call(ctx)
		if err != nil {
			return err
		}
		if err := printTree(a.stdout, node); err != nil {
			return err
		}
	}

	if f.rpc != "" {
		reply, err := c.Raw(ctx, f.rpc)
		if err != nil {
			return err
		}
		if err := printTree(a.stdout, reply.Body()...); err != nil {
			return err
		}
	}

	switch {
	case f.acctMgrAttach:
		node, err := c.AcctMgrAttach(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return printTree(a.stdout, node)

	case f.lookupAccount:
		key, err := c.LookupAccount(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(a.stdout, "Authenticator: %s\n", key)
		return err

	case f.projectAttach:
		node, err := c.ProjectAttach(ctx, args[0], args[1], "")
		if err != nil {
			return err
		}
		return printTree(a.stdout, node)

	case f.project:
		reply, err := c.ProjectCommand(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printTree(a.stdout, reply.Body()...)
	}
	return nil
}
