package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boincrpc "github.com/smnsjas/go-boincrpc"
	"github.com/smnsjas/go-boincrpc/boinctest"
	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

type harness struct {
	app    *app
	stdout bytes.Buffer
	stderr bytes.Buffer
	sleeps []time.Duration
}

func newHarness(env map[string]string) *harness {
	h := &harness{}
	h.app = &app{
		stdout: &h.stdout,
		stderr: &h.stderr,
		getenv: func(k string) string { return env[k] },
		readPassword: func() (string, error) {
			return "", errors.New("no terminal")
		},
	}
	h.app.clientOpts = []boincrpc.Option{
		boincrpc.WithSleepFunc(func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return ctx.Err()
		}),
	}
	return h
}

func (h *harness) run(args ...string) error {
	cmd := newRootCommand(h.app)
	cmd.SetArgs(args)
	cmd.SetOut(&h.stdout)
	cmd.SetErr(&h.stderr)
	return cmd.ExecuteContext(context.Background())
}

func newServer(t *testing.T, opts ...boinctest.Option) *boinctest.Server {
	t.Helper()
	srv, err := boinctest.NewServer(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestHostInfoPrintsTree(t *testing.T) {
	srv := newServer(t, boinctest.WithPassword("pw"))
	srv.Handle("get_host_info", boinctest.Body(
		xmltree.New("host_info",
			xmltree.Leaf("domain_name", "node1"),
			xmltree.Leaf("p_ncpus", "8"),
		),
	))

	h := newHarness(nil)
	require.NoError(t, h.run("--host", srv.Addr(), "--passwd", "pw", "--get_host_info"))

	assert.Equal(t, "host_info: \ndomain_name: node1\np_ncpus: 8\n", h.stdout.String())
	assert.Equal(t, []string{"auth1", "auth2", "get_host_info"}, srv.Commands())
}

func TestSeveralActionsShareOneConnection(t *testing.T) {
	srv := newServer(t)
	srv.Handle("exchange_versions", boinctest.Body(
		xmltree.New("server_version", xmltree.Leaf("major", "8")),
	))
	srv.Handle("acct_mgr_info", boinctest.Body(
		xmltree.New("acct_mgr_info", xmltree.Leaf("acct_mgr_url", "")),
	))

	h := newHarness(nil)
	require.NoError(t, h.run("--host", srv.Addr(), "--passwd", "", "--client_version", "--acct_mgr_info"))

	assert.Equal(t, "server_version: \nmajor: 8\nacct_mgr_info: \nacct_mgr_url: \n", h.stdout.String())
	assert.Equal(t, 1, srv.Connections())
}

func TestLookupAccountPrintsAuthenticator(t *testing.T) {
	srv := newServer(t)
	srv.Handle("lookup_account", boinctest.Body(xmltree.Leaf("success", "")))
	srv.Handle("lookup_account_poll", boinctest.Sequence(
		boinctest.ErrorNum(rpcerr.CodeInProgress),
		boinctest.Reply{Body: []*xmltree.Node{
			xmltree.New("account_out", xmltree.Leaf("authenticator", "KEY123")),
		}},
	))

	h := newHarness(nil)
	err := h.run("--host", srv.Addr(), "--passwd", "",
		"--lookup_account", "http://p.example/", "user@example.org", "secret")
	require.NoError(t, err)

	assert.Equal(t, "Authenticator: KEY123\n", h.stdout.String())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, h.sleeps)
}

func TestLookupAccountIncorrectPassword(t *testing.T) {
	srv := newServer(t)
	srv.Handle("lookup_account", boinctest.Body(xmltree.Leaf("success", "")))
	srv.Handle("lookup_account_poll", boinctest.Sequence(boinctest.ErrorNum(rpcerr.CodeBadPassword)))

	h := newHarness(nil)
	err := h.run("--host", srv.Addr(), "--passwd", "",
		"--lookup_account", "http://p.example/", "user@example.org", "wrong")
	require.ErrorIs(t, err, rpcerr.ErrIncorrectPassword)
	assert.Contains(t, describe(err), "[incorrect password]")
}

func TestProjectCommand(t *testing.T) {
	srv := newServer(t)
	srv.Handle("project_detach", boinctest.Body(xmltree.Leaf("success", "")))

	h := newHarness(nil)
	require.NoError(t, h.run("--host", srv.Addr(), "--passwd", "", "--project", "http://p.example/", "detach"))

	assert.Equal(t, "success: \n", h.stdout.String())
	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "<project_detach><project_url>http://p.example/</project_url></project_detach>", reqs[0].String())
}

func TestProjectCommandInvalidOpSendsNothing(t *testing.T) {
	srv := newServer(t)

	h := newHarness(nil)
	err := h.run("--host", srv.Addr(), "--passwd", "", "--project", "http://p.example/", "explode")
	require.Error(t, err)
	assert.Equal(t, rpcerr.KindInvalidArgument, rpcerr.KindOf(err))
	assert.True(t, isUsageError(err))
	assert.Empty(t, srv.Commands())
	assert.Equal(t, 0, srv.Connections())
}

func TestProjectAttach(t *testing.T) {
	srv := newServer(t)
	srv.Handle("project_attach", boinctest.Body(xmltree.Leaf("success", "")))
	srv.Handle("project_attach_poll", boinctest.Body(
		xmltree.New("project_attach_reply", xmltree.Leaf("error_num", "0")),
	))

	h := newHarness(nil)
	require.NoError(t, h.run("--host", srv.Addr(), "--passwd", "", "--project_attach", "http://p.example/", "KEY"))

	assert.Equal(t, "project_attach_reply: \nerror_num: 0\n", h.stdout.String())
	assert.Equal(t, []string{"project_attach", "project_attach_poll"}, srv.Commands())
}

func TestRawRPC(t *testing.T) {
	srv := newServer(t)
	srv.Handle("get_cc_status", boinctest.Body(
		xmltree.New("cc_status", xmltree.Leaf("network_status", "0")),
	))

	h := newHarness(nil)
	require.NoError(t, h.run("--host", srv.Addr(), "--passwd", "", "--rpc", "<get_cc_status/>"))
	assert.Equal(t, "cc_status: \nnetwork_status: 0\n", h.stdout.String())
}

func TestArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"stray argument", []string{"--get_state", "extra"}, `invalid argument "extra"`},
		{"missing lookup args", []string{"--lookup_account", "http://p/"}, "accepts 3 arg(s), received 1"},
		{"two positional flags", []string{"--project", "--project_attach", "a", "b"}, "if any flags in the group"},
		{"bad host port", []string{"--host", "node1:abc", "--get_state"}, "invalid argument --host"},
		{"bad log level", []string{"--log-level", "loud", "--get_state"}, "invalid argument --log-level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newHarness(nil).run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, isUsageError(err))
		})
	}
}

func TestNoActionShowsHelp(t *testing.T) {
	h := newHarness(nil)
	require.NoError(t, h.run())
	assert.Contains(t, h.stdout.String(), "--lookup_account")
}

func TestWrongPassword(t *testing.T) {
	srv := newServer(t, boinctest.WithPassword("right"))

	h := newHarness(nil)
	err := h.run("--host", srv.Addr(), "--passwd", "wrong", "--get_state")
	require.ErrorIs(t, err, rpcerr.ErrAuthenticationFailed)
	assert.NotContains(t, srv.Commands(), "get_state")
	assert.False(t, isUsageError(err))
}

func TestAskPasswd(t *testing.T) {
	srv := newServer(t, boinctest.WithPassword("prompted"))
	srv.Handle("get_state", boinctest.Body(xmltree.New("client_state")))

	h := newHarness(nil)
	h.app.readPassword = func() (string, error) { return "prompted", nil }
	require.NoError(t, h.run("--host", srv.Addr(), "--ask-passwd", "--get_state"))
	assert.Equal(t, "client_state: \n", h.stdout.String())
}

func TestEnvironmentSuppliesHostAndPassword(t *testing.T) {
	srv := newServer(t, boinctest.WithPassword("envpw"))
	srv.Handle("get_state", boinctest.Body(xmltree.New("client_state")))

	h := newHarness(map[string]string{
		"BOINCRPC_HOST":     srv.Addr(),
		"BOINCRPC_PASSWORD": "envpw",
	})
	require.NoError(t, h.run("--get_state"))
	assert.Equal(t, []string{"auth1", "auth2", "get_state"}, srv.Commands())
}

func TestConfigFilePasswordFile(t *testing.T) {
	srv := newServer(t, boinctest.WithPassword("filepw"))
	srv.Handle("get_state", boinctest.Body(xmltree.New("client_state")))

	dir := t.TempDir()
	pwFile := filepath.Join(dir, "gui_rpc_auth.cfg")
	require.NoError(t, os.WriteFile(pwFile, []byte("filepw\n"), 0o600))
	cfgFile := filepath.Join(dir, "boincrpc.toml")
	content := "host = \"" + srv.Host() + "\"\nport = " + strconv.Itoa(srv.Port()) + "\npassword_file = \"" + filepath.ToSlash(pwFile) + "\"\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o600))

	h := newHarness(nil)
	require.NoError(t, h.run("--config", cfgFile, "--get_state"))
	assert.Equal(t, []string{"auth1", "auth2", "get_state"}, srv.Commands())
}

func TestMissingPasswordFileWarns(t *testing.T) {
	srv := newServer(t)
	srv.Handle("get_state", boinctest.Body(xmltree.New("client_state")))

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "boincrpc.toml")
	content := "password_file = \"" + filepath.ToSlash(filepath.Join(dir, "absent.cfg")) + "\"\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o600))

	h := newHarness(nil)
	require.NoError(t, h.run("--config", cfgFile, "--host", srv.Addr(), "--get_state"))
	assert.Contains(t, h.stderr.String(), "continuing without password")
	assert.Equal(t, []string{"get_state"}, srv.Commands())
}

func TestConnectionRefused(t *testing.T) {
	srv := newServer(t)
	addr := srv.Addr()
	require.NoError(t, srv.Close())

	h := newHarness(nil)
	err := h.run("--host", addr, "--passwd", "", "--get_state")
	require.ErrorIs(t, err, rpcerr.ErrConnectionRefused)
	assert.True(t, strings.HasPrefix(describe(err), "[connection refused]"))
}

func TestPrintTreeMultipleRoots(t *testing.T) {
	var buf bytes.Buffer
	err := printTree(&buf,
		xmltree.New("a", xmltree.Leaf("b", "1")),
		xmltree.Leaf("c", "2"),
	)
	require.NoError(t, err)
	assert.Equal(t, "a: \nb: 1\nc: 2\n", buf.String())
}
