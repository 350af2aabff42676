package boincrpc

import (
	"context"

	"github.com/smnsjas/go-boincrpc/auth"
	"github.com/smnsjas/go-boincrpc/poll"
	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/wire"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

// Submit and poll command names.
const (
	CmdAcctMgrRPC        = "acct_mgr_rpc"
	CmdAcctMgrRPCPoll    = "acct_mgr_rpc_poll"
	CmdLookupAccount     = "lookup_account"
	CmdLookupAccountPoll = "lookup_account_poll"
	CmdProjectAttach     = "project_attach"
	CmdProjectAttachPoll = "project_attach_poll"
)

// AcctMgrAttachRequest builds the acct_mgr_rpc command.
func AcctMgrAttachRequest(url, name, password string) *xmltree.Node {
	return xmltree.New(CmdAcctMgrRPC,
		xmltree.Leaf("url", url),
		xmltree.Leaf("name", name),
		xmltree.Leaf("password", password),
	)
}

// LookupAccountRequest builds the lookup_account command. The password is
// sent hashed with the lowercased email, never in clear.
func LookupAccountRequest(url, email, password string) *xmltree.Node {
	return xmltree.New(CmdLookupAccount,
		xmltree.Leaf("url", url),
		xmltree.Leaf("email_addr", email),
		xmltree.Leaf("passwd_hash", auth.AccountPasswordHash(password, email)),
	)
}

// ProjectAttachRequest builds the project_attach command. projectName may be
// empty.
func ProjectAttachRequest(url, authenticator, projectName string) *xmltree.Node {
	return xmltree.New(CmdProjectAttach,
		xmltree.Leaf("project_url", url),
		xmltree.Leaf("authenticator", authenticator),
		xmltree.Leaf("project_name", projectName),
	)
}

// AcctMgrAttach attaches the daemon to an account manager and waits for the
// result. It returns the final poll reply element.
func (c *Client) AcctMgrAttach(ctx context.Context, url, name, password string) (*xmltree.Node, error) {
	if url == "" {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, CmdAcctMgrRPC, "empty account manager URL")
	}
	return c.submitAndPoll(ctx, AcctMgrAttachRequest(url, name, password), CmdAcctMgrRPCPoll, poll.ClassifyErrorNum)
}

// LookupAccount asks the project at url for the account matching email and
// password and returns its authenticator.
func (c *Client) LookupAccount(ctx context.Context, url, email, password string) (string, error) {
	if url == "" || email == "" {
		return "", rpcerr.New(rpcerr.KindInvalidArgument, CmdLookupAccount, "URL and email are required")
	}
	node, err := c.submitAndPoll(ctx, LookupAccountRequest(url, email, password), CmdLookupAccountPoll, poll.ClassifyLookup)
	if err != nil {
		return "", err
	}
	return node.Text, nil
}

// ProjectAttach attaches the daemon to the project at url using an account
// authenticator and waits for the result.
func (c *Client) ProjectAttach(ctx context.Context, url, authenticator, projectName string) (*xmltree.Node, error) {
	if url == "" || authenticator == "" {
		return nil, rpcerr.New(rpcerr.KindInvalidArgument, CmdProjectAttach, "URL and authenticator are required")
	}
	return c.submitAndPoll(ctx, ProjectAttachRequest(url, authenticator, projectName), CmdProjectAttachPoll, poll.ClassifyErrorNum)
}

// submitAndPoll sends cmd, then polls pollCmd until classify resolves it.
// The submit reply carries no result; it only fails on an immediate error.
func (c *Client) submitAndPoll(ctx context.Context, cmd *xmltree.Node, pollCmd string, classify func(*wire.Reply) (poll.Result, error)) (*xmltree.Node, error) {
	if _, err := c.Call(ctx, cmd); err != nil {
		return nil, err
	}
	c.logger.Debug("submitted", "command", cmd.Tag)

	if c.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PollTimeout)
		defer cancel()
	}

	return c.poller().Run(ctx, pollCmd, func(ctx context.Context) (poll.Result, error) {
		reply, err := c.sess.Call(ctx, xmltree.New(pollCmd))
		if err != nil {
			return poll.Result{}, err
		}
		if reply.First() != nil && reply.First().Tag == auth.TagUnauthorized {
			return poll.Result{}, rpcerr.New(rpcerr.KindAuthenticationFailed, pollCmd, "unauthorized")
		}
		return classify(reply)
	})
}
