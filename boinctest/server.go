// Package boinctest provides an in-process fake of the GUI RPC daemon.
//
// The fake speaks the real framing and handshake, so clients under test go
// through exactly the code paths they use against a live daemon. Commands
// other than auth1 and auth2 are answered by handlers registered per command
// name.
//
// # Usage
//
//	srv, err := boinctest.NewServer(boinctest.WithPassword("secret"))
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer srv.Close()
//
//	srv.Handle("get_host_info", boinctest.Body(
//	    xmltree.New("host_info", xmltree.Leaf("domain_name", "node1")),
//	))
package boinctest

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smnsjas/go-boincrpc/auth"
	"github.com/smnsjas/go-boincrpc/wire"
	"github.com/smnsjas/go-boincrpc/xmltree"
)

// Reply is what a Handler wants sent back for one request.
type Reply struct {
	// Body is encoded inside <boinc_gui_rpc_reply> and terminated.
	Body []*xmltree.Node
	// Raw, when non-nil, is written verbatim instead of Body. No terminator
	// is added.
	Raw []byte
	// Hangup closes the connection after Raw (if any) has been written.
	// Body is ignored.
	Hangup bool
	// Delay is waited before anything is written.
	Delay time.Duration
}

// Handler produces the reply to a single command. req is the command
// element, without the request wrapper.
type Handler func(req *xmltree.Node) Reply

// Body returns a Handler that always answers with nodes.
func Body(nodes ...*xmltree.Node) Handler {
	return func(*xmltree.Node) Reply {
		return Reply{Body: nodes}
	}
}

// Sequence returns a Handler that answers with replies in order. Once they
// are used up the last one is repeated.
func Sequence(replies ...Reply) Handler {
	var (
		mu sync.Mutex
		i  int
	)
	return func(*xmltree.Node) Reply {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return Reply{}
		}
		r := replies[i]
		if i < len(replies)-1 {
			i++
		}
		return r
	}
}

// ErrorNum returns a reply carrying only <error_num>code</error_num>.
func ErrorNum(code int) Reply {
	return Reply{Body: []*xmltree.Node{xmltree.Leaf("error_num", strconv.Itoa(code))}}
}

// Option configures a Server.
type Option func(*Server)

// WithPassword sets the shared secret. Without one every digest computed
// from an empty secret is accepted and commands are served unauthenticated.
func WithPassword(password string) Option {
	return func(s *Server) { s.password = password }
}

// WithChunkSize makes the server write replies n bytes at a time.
func WithChunkSize(n int) Option {
	return func(s *Server) { s.chunkSize = n }
}

// WithLogger sets the logger used for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is a fake daemon listening on a TCP port.
type Server struct {
	ln        net.Listener
	password  string
	chunkSize int
	logger    *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	requests []*xmltree.Node
	conns    map[net.Conn]struct{}
	accepted int

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewServer starts a server on a random loopback port.
func NewServer(opts ...Option) (*Server, error) {
	return Listen("127.0.0.1:0", opts...)
}

// Listen starts a server on addr.
func Listen(addr string, opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s := &Server{
		ln:       ln,
		logger:   slog.New(slog.DiscardHandler),
		handlers: make(map[string]Handler),
		conns:    make(map[net.Conn]struct{}),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Handle registers h for command. A later registration replaces an earlier
// one.
func (s *Server) Handle(command string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = h
}

// Addr returns the listening address as host:port.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Host returns the listening IP.
func (s *Server) Host() string {
	return s.ln.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Requests returns every command received so far, in arrival order,
// including auth1 and auth2.
func (s *Server) Requests() []*xmltree.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*xmltree.Node, len(s.requests))
	copy(out, s.requests)
	return out
}

// Commands returns the tag of every command received so far.
func (s *Server) Commands() []string {
	reqs := s.Requests()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Tag
	}
	return out
}

// Connections returns the number of connections accepted so far.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Close stops the listener, drops open connections and waits for handlers
// to return.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.ln.Close()

		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
	})
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("accept failed", "error", err)
			}
			return
		}

		s.mu.Lock()
		select {
		case <-s.closed:
			s.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		s.conns[conn] = struct{}{}
		s.accepted++
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// connState is the per-connection auth state. A nonce is only valid on the
// connection that asked for it.
type connState struct {
	nonce         string
	authenticated bool
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	logger := s.logger.With("remote", conn.RemoteAddr().String())
	logger.Debug("connection accepted")

	r := wire.NewReader(conn, wire.DefaultLimits())
	st := &connState{}
	for {
		payload, err := r.ReadMessage()
		if err != nil {
			logger.Debug("connection done", "error", err)
			return
		}

		var reply Reply
		cmd, err := wire.DecodeRequest(payload)
		if err != nil {
			reply = Reply{Body: []*xmltree.Node{xmltree.Leaf("error", "bad request")}}
		} else {
			s.record(cmd)
			logger.Debug("request", "command", cmd.Tag)
			reply = s.dispatch(st, cmd)
		}

		if reply.Delay > 0 {
			select {
			case <-time.After(reply.Delay):
			case <-s.closed:
				return
			}
		}

		switch {
		case reply.Raw != nil:
			err = s.write(conn, reply.Raw)
		case !reply.Hangup:
			err = s.write(conn, wire.EncodeReply(reply.Body...))
		}
		if err != nil || reply.Hangup {
			return
		}
	}
}

func (s *Server) record(cmd *xmltree.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, cmd)
}

func (s *Server) dispatch(st *connState, cmd *xmltree.Node) Reply {
	switch cmd.Tag {
	case auth.CommandAuth1:
		st.nonce = uuid.NewString()
		return Reply{Body: []*xmltree.Node{xmltree.Leaf(auth.TagNonce, st.nonce)}}

	case auth.CommandAuth2:
		hash := cmd.Child(auth.TagNonceHash)
		ok := st.nonce != "" && hash != nil && hash.Text == auth.Digest(st.nonce, s.password)
		st.nonce = ""
		if !ok {
			return Reply{Body: []*xmltree.Node{xmltree.New(auth.TagUnauthorized)}}
		}
		st.authenticated = true
		return Reply{Body: []*xmltree.Node{xmltree.New(auth.TagAuthorized)}}
	}

	if s.password != "" && !st.authenticated {
		return Reply{Body: []*xmltree.Node{xmltree.New(auth.TagUnauthorized)}}
	}

	s.mu.Lock()
	h := s.handlers[cmd.Tag]
	s.mu.Unlock()
	if h == nil {
		return Reply{Body: []*xmltree.Node{xmltree.Leaf("error", "unrecognized op: "+cmd.Tag)}}
	}
	return h(cmd)
}

func (s *Server) write(conn net.Conn, data []byte) error {
	if s.chunkSize <= 0 {
		_, err := conn.Write(data)
		return err
	}
	for len(data) > 0 {
		n := min(s.chunkSize, len(data))
		if _, err := conn.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
