package hazel

import (
	"net"
	"sync"

	"github.com/cyyynthia/hazelgo/internal/util"
	"github.com/cyyynthia/hazelgo/protocol"
)

// Server owns a UDP endpoint and demultiplexes inbound datagrams to
// per-remote connections keyed by "address:port". A new connection only
// materializes when an unknown remote opens with a HELLO; anything else
// from an unknown remote is dropped silently.
type Server struct {
	pc      *net.UDPConn
	version byte

	// wmu serializes writes to the shared socket so concurrent connections
	// cannot interleave their datagrams.
	wmu sync.Mutex

	mu           sync.Mutex
	conns        map[string]*Conn
	onConnection func(*Conn)
	closed       bool
}

// Listen binds a UDP endpoint ("host:port"; the host part selects IPv4 or
// IPv6) and starts accepting Hazel connections.
func Listen(addr string, cfg Config) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	pc, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		pc:      pc,
		version: cfg.Version,
		conns:   make(map[string]*Conn),
	}
	go s.readLoop()
	util.LogInfo("listening on %s", pc.LocalAddr())
	return s, nil
}

// OnConnection registers fn for every new connection. fn runs before the
// connection's first datagram is processed, so handlers registered inside
// it observe the hello event.
func (s *Server) OnConnection(fn func(*Conn)) {
	s.mu.Lock()
	s.onConnection = fn
	s.mu.Unlock()
}

// Addr returns the bound UDP address.
func (s *Server) Addr() net.Addr { return s.pc.LocalAddr() }

func (s *Server) readLoop() {
	buf := make([]byte, 65535)
	for {
		n, raddr, err := s.pc.ReadFromUDP(buf)
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				util.LogError("read: %v", err)
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.dispatch(data, raddr)
	}
}

func (s *Server) dispatch(data []byte, raddr *net.UDPAddr) {
	key := raddr.String()

	s.mu.Lock()
	c, ok := s.conns[key]
	if ok {
		s.mu.Unlock()
		c.handleDatagram(data)
		return
	}
	if s.closed || len(data) == 0 || data[0] != protocol.TypeHello {
		s.mu.Unlock()
		util.LogDebug("dropping datagram from unknown remote %s", key)
		return
	}
	c = newConn(raddr, roleServer, s.version, func(b []byte) (int, error) {
		return s.send(b, raddr)
	})
	c.onClosed = func(*Conn) { s.evict(key) }
	s.conns[key] = c
	onConnection := s.onConnection
	s.mu.Unlock()

	metricConnections.Inc()
	util.LogInfo("[%s] new connection from %s", c.id, key)
	if onConnection != nil {
		onConnection(c)
	}
	c.handleDatagram(data)
}

func (s *Server) send(data []byte, raddr *net.UDPAddr) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.pc.WriteToUDP(data, raddr)
}

func (s *Server) evict(key string) {
	s.mu.Lock()
	delete(s.conns, key)
	s.mu.Unlock()
}

// Close force-closes every connection and releases the socket.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close(CloseEvent{Forced: true}, protocol.EncodeDisconnect())
	}
	return s.pc.Close()
}
