package boincrpc

import (
	"context"
	"strconv"

	"github.com/smnsjas/go-boincrpc/xmltree"
)

// Simple command names.
const (
	CmdGetHostInfo          = "get_host_info"
	CmdExchangeVersions     = "exchange_versions"
	CmdGetState             = "get_state"
	CmdAcctMgrInfo          = "acct_mgr_info"
	CmdGetProjectStatus     = "get_project_status"
	CmdGetProjectInitStatus = "get_project_init_status"
)

// HostInfo returns the <host_info> element.
func (c *Client) HostInfo(ctx context.Context) (*xmltree.Node, error) {
	return c.expect(ctx, xmltree.New(CmdGetHostInfo), "host_info")
}

// ExchangeVersions advertises the library version and returns the daemon's
// <server_version> element.
func (c *Client) ExchangeVersions(ctx context.Context) (*xmltree.Node, error) {
	return c.expect(ctx, ExchangeVersionsRequest(), "server_version")
}

// ExchangeVersionsRequest builds the exchange_versions command.
func ExchangeVersionsRequest() *xmltree.Node {
	return xmltree.New(CmdExchangeVersions,
		xmltree.Leaf("major", strconv.Itoa(VersionMajor)),
		xmltree.Leaf("minor", strconv.Itoa(VersionMinor)),
		xmltree.Leaf("release", strconv.Itoa(VersionRelease)),
	)
}

// State returns the full <client_state> dump.
func (c *Client) State(ctx context.Context) (*xmltree.Node, error) {
	return c.expect(ctx, xmltree.New(CmdGetState), "client_state")
}

// AcctMgrInfo returns the <acct_mgr_info> element.
func (c *Client) AcctMgrInfo(ctx context.Context) (*xmltree.Node, error) {
	return c.expect(ctx, xmltree.New(CmdAcctMgrInfo), "acct_mgr_info")
}

// ProjectStatus returns the <projects> element listing attached projects.
func (c *Client) ProjectStatus(ctx context.Context) (*xmltree.Node, error) {
	return c.expect(ctx, xmltree.New(CmdGetProjectStatus), "projects")
}

// ProjectInitStatus returns the project the daemon was told to attach to at
// install time, if any.
func (c *Client) ProjectInitStatus(ctx context.Context) (*xmltree.Node, error) {
	return c.expect(ctx, xmltree.New(CmdGetProjectInitStatus), "get_project_init_status")
}
