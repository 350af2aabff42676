// Package boincrpc is a client for the BOINC GUI RPC protocol.
//
// The protocol is a terminator-delimited, XML-framed request/response
// exchange over TCP with the local or remote compute-client daemon (port
// 31416 by default), optionally unlocked by a challenge-response login.
//
// # Architecture
//
// The library is organized into layers:
//
//   - Client: command dispatcher with simple, parameterized and submit+poll calls
//   - session: one TCP connection, timeouts, handshake on open
//   - auth: auth1/auth2 digest and state machine
//   - poll: bounded "poll until ready" loop for long-running jobs
//   - wire: request framing, terminator-delimited stream reader, reply decoding
//   - xmltree: the tag/text/children tree every reply is decoded into
//   - rpcerr: the typed error every layer returns
//
// # Basic Usage
//
//	cfg := boincrpc.DefaultConfig()
//	cfg.Password = "secret"
//
//	err := boincrpc.Do(ctx, cfg, func(c *boincrpc.Client) error {
//	    info, err := c.HostInfo(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(info.Child("domain_name").Text)
//	    return nil
//	})
//
// # Errors
//
// Every failure is an *rpcerr.Error. Use errors.Is with the rpcerr sentinels:
//
//	_, err := c.LookupAccount(ctx, url, email, password)
//	if errors.Is(err, rpcerr.ErrIncorrectPassword) {
//	    ...
//	}
package boincrpc

// Version is the library version.
const Version = "0.1.0"

// Version components, advertised to the daemon by ExchangeVersions.
const (
	VersionMajor   = 0
	VersionMinor   = 1
	VersionRelease = 0
)
