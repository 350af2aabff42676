package main

import (
	"strings"

	"github.com/google/uuid"

	boincrpc "github.com/smnsjas/go-boincrpc"
	"github.com/smnsjas/go-boincrpc/boinctest"
	"github.com/smnsjas/go-boincrpc/rpcerr"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

var leaf = xmltree.Leaf

func success() boinctest.Reply {
	return boinctest.Reply{Body: []*xmltree.Node{xmltree.New("success")}}
}

func register(srv *boinctest.Server, pollRounds int) {
	srv.Handle(boincrpc.CmdGetHostInfo, boinctest.Body(
		xmltree.New("host_info",
			leaf("domain_name", "mock"),
			leaf("ip_addr", "127.0.0.1"),
			leaf("p_ncpus", "4"),
			leaf("p_vendor", "GenuineIntel"),
			leaf("m_nbytes", "8589934592"),
			leaf("os_name", "Linux"),
		),
	))
	srv.Handle(boincrpc.CmdExchangeVersions, boinctest.Body(
		xmltree.New("server_version",
			leaf("major", "8"),
			leaf("minor", "0"),
			leaf("release", "2"),
		),
	))
	srv.Handle(boincrpc.CmdGetState, boinctest.Body(
		xmltree.New("client_state",
			xmltree.New("project",
				leaf("master_url", "http://mock.example/"),
				leaf("project_name", "Mock@home"),
			),
			leaf("platform_name", "x86_64-pc-linux-gnu"),
		),
	))
	srv.Handle(boincrpc.CmdAcctMgrInfo, boinctest.Body(
		xmltree.New("acct_mgr_info",
			leaf("acct_mgr_url", ""),
			leaf("acct_mgr_name", ""),
		),
	))
	srv.Handle(boincrpc.CmdGetProjectStatus, boinctest.Body(
		xmltree.New("projects",
			xmltree.New("project",
				leaf("master_url", "http://mock.example/"),
				leaf("user_name", "mock"),
			),
		),
	))
	srv.Handle(boincrpc.CmdGetProjectInitStatus, boinctest.Body(
		xmltree.New("get_project_init_status",
			leaf("url", ""),
			leaf("name", ""),
			leaf("team_name", ""),
		),
	))

	for _, op := range boincrpc.ProjectOps() {
		srv.Handle(op.Command(), func(req *xmltree.Node) boinctest.Reply {
			if req.Find("project_url") == nil || req.Find("project_url").Text == "" {
				return boinctest.Reply{Body: []*xmltree.Node{leaf("error", "Missing project URL")}}
			}
			return success()
		})
	}

	srv.Handle(boincrpc.CmdLookupAccount, func(req *xmltree.Node) boinctest.Reply {
		if req.Find("email_addr") == nil || !strings.Contains(req.Find("email_addr").Text, "@") {
			return boinctest.ErrorNum(rpcerr.CodeBadEmail)
		}
		return success()
	})
	srv.Handle(boincrpc.CmdLookupAccountPoll, polling(pollRounds, boinctest.Reply{Body: []*xmltree.Node{
		xmltree.New("account_out", leaf("authenticator", strings.ReplaceAll(uuid.NewString(), "-", ""))),
	}}))

	srv.Handle(boincrpc.CmdAcctMgrRPC, boinctest.Body(xmltree.New("success")))
	srv.Handle(boincrpc.CmdAcctMgrRPCPoll, polling(pollRounds, boinctest.Reply{Body: []*xmltree.Node{
		xmltree.New("acct_mgr_rpc_reply", leaf("error_num", "0")),
	}}))

	srv.Handle(boincrpc.CmdProjectAttach, boinctest.Body(xmltree.New("success")))
	srv.Handle(boincrpc.CmdProjectAttachPoll, polling(pollRounds, boinctest.Reply{Body: []*xmltree.Node{
		xmltree.New("project_attach_reply", leaf("error_num", "0")),
	}}))
}

// polling answers "in progress" rounds times, then done forever after.
func polling(rounds int, done boinctest.Reply) boinctest.Handler {
	replies := make([]boinctest.Reply, 0, rounds+1)
	for range rounds {
		replies = append(replies, boinctest.ErrorNum(rpcerr.CodeInProgress))
	}
	return boinctest.Sequence(append(replies, done)...)
}
