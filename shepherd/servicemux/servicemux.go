package servicemux

import (
	"bufio"
	"crypto/rand"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	configuration "github.com/ShepherdCMS/shepherd-app/config"

	log "github.com/sirupsen/logrus"
	"github.com/soheilhy/cmux"
)

var keepAlivePeriod = 60 * time.Second

func init() {
	if raw := configuration.GetEnv("SERVICE_MUX_KEEP_ALIVE_INTERVAL"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			panic(err)
		}
		keepAlivePeriod = time.Duration(seconds) * time.Second
	}
}

// keepAliveListener probes idle connections so a stalled roster upload
// eventually frees its server goroutine.
type keepAliveListener struct {
	*net.TCPListener
}

func (ln keepAliveListener) Accept() (net.Conn, error) {
	conn, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	if err := conn.SetKeepAlive(true); err != nil {
		return nil, err
	}
	if err := conn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
		return nil, err
	}
	return conn, nil
}

func URLPrefixMatcher(prefix string) cmux.Matcher {
	return func(r io.Reader) bool {
		req, err := http.ReadRequest(bufio.NewReader(r))
		if err != nil {
			return false
		}
		return strings.HasPrefix(req.URL.Path, prefix)
	}
}

type prefixedServer struct {
	srv    *http.Server
	prefix string
}

type ServiceMux struct {
	Addr      string
	Listener  net.Listener
	Servers   []prefixedServer
	TLSConfig tls.Config
}

func New(addr string) *ServiceMux {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		panic(err)
	}

	return &ServiceMux{
		Addr:     addr,
		Listener: keepAliveListener{ln.(*net.TCPListener)},
	}
}

// AddServer registers srv for request paths starting with prefix. An empty
// prefix catches whatever the other registered servers did not claim.
func (sm *ServiceMux) AddServer(srv *http.Server, prefix string) {
	sm.Servers = append(sm.Servers, prefixedServer{srv: srv, prefix: prefix})
}

func (sm *ServiceMux) Serve() {
	certPath := configuration.GetEnv("SHEPHERD_TLS_CERT")
	keyPath := configuration.GetEnv("SHEPHERD_TLS_KEY")

	// Unless HTTP_ONLY is exactly "true", TLS material is mandatory.
	switch {
	case configuration.GetEnv("HTTP_ONLY") == "true":
		sm.serveHTTP()
	case certPath != "" && keyPath != "":
		sm.serveTLS(certPath, keyPath)
	default:
		panic("TLS certificate and key paths are required unless HTTP_ONLY is true")
	}
}

func (sm *ServiceMux) serveTLS(certPath, keyPath string) {
	certificate, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		log.Panic(err)
	}

	sm.TLSConfig = tls.Config{
		Certificates: []tls.Certificate{certificate},
		Rand:         rand.Reader,
		CurvePreferences: []tls.CurveID{
			tls.CurveP256,
			tls.X25519,
		},
		MinVersion: tls.VersionTLS12,
	}
	sm.Listener = tls.NewListener(sm.Listener, &sm.TLSConfig)

	sm.serveHTTP()
}

func (sm *ServiceMux) serveHTTP() {
	m := cmux.New(sm.Listener)

	for _, entry := range sm.Servers {
		var match net.Listener
		if entry.prefix == "" {
			match = m.Match(cmux.Any())
		} else {
			match = m.Match(URLPrefixMatcher(entry.prefix))
		}

		entry.srv.TLSConfig = &sm.TLSConfig

		//nolint
		go entry.srv.Serve(match)
	}

	if err := m.Serve(); err != nil {
		panic(err)
	}
}

func (sm *ServiceMux) Close() {
	if err := sm.Listener.Close(); err != nil {
		log.Panic(err)
	}
}

// IsHTTPS reports whether the server handling r terminates TLS itself.
func IsHTTPS(r *http.Request) bool {
	srv, ok := r.Context().Value(http.ServerContextKey).(*http.Server)
	if !ok {
		return false
	}
	return srv.TLSConfig != nil && srv.TLSConfig.Certificates != nil
}
