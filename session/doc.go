// Package session implements the transport session to a GUI RPC daemon.
//
// A Session owns exactly one TCP connection. Requests on it are strictly
// sequential: the protocol has no request IDs, so a second request is never
// written before the previous reply and its terminator have been consumed.
// Callers needing concurrency open independent sessions.
//
// # State Machine
//
//	Unconnected → Connected → Closed
//	      ↓                     ↑
//	      └─────────────────────┘
//
// A failed dial leaves the session Unconnected, so Open may be retried. Any
// failure after the connection is up (write, read, deadline, handshake)
// closes the session; Closed is terminal.
//
// # Authentication
//
// When Config.Password is non-empty, Open runs the auth1/auth2 handshake on
// the fresh connection before returning. The nonce and the authenticated
// state belong to that connection and die with it.
//
// # Usage
//
//	cfg := session.DefaultConfig()
//	cfg.Password = "secret"
//
//	s := session.New(cfg, session.WithLogger(logger))
//	if err := s.Open(ctx); err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	reply, err := s.Call(ctx, xmltree.New("get_host_info"))
package session
