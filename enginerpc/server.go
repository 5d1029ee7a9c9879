package enginerpc

import (
	"github.com/ethereum/go-ethereum/node"
	"github.com/ethereum/go-ethereum/rpc"
)

// Config configures the RPC surface: the authenticated engine-API listener
// and the public Eth API listener, following the teacher's own
// node.Config shape (node/node_auth_test.go).
type Config struct {
	HTTPHost string
	HTTPPort int
	WSHost   string
	WSPort   int

	AuthAddr string
	AuthPort int
	// JWTSecretPath is a path to a hex-encoded 32-byte secret file; geth's
	// node.Config only accepts a JWT secret by file path, never in memory
	// (see node_auth_test.go's comment on this).
	JWTSecretPath string

	Name    string
	DataDir string
}

// Server wraps a go-ethereum node.Node exposing the engine namespace on the
// authenticated listener and the eth namespace on the public one.
type Server struct {
	node *node.Node
}

// NewServer constructs the underlying node.Node and registers both APIs.
// It does not start listening; call Start.
func NewServer(cfg Config, engineAPI *EngineAPI, ethAPI *EthAPI) (*Server, error) {
	nodeCfg := &node.Config{
		Name:        cfg.Name,
		DataDir:     cfg.DataDir,
		HTTPHost:    cfg.HTTPHost,
		HTTPPort:    cfg.HTTPPort,
		WSHost:      cfg.WSHost,
		WSPort:      cfg.WSPort,
		AuthAddr:    cfg.AuthAddr,
		AuthPort:    cfg.AuthPort,
		JWTSecret:   cfg.JWTSecretPath,
		WSModules:   []string{"eth", "engine"},
		HTTPModules: []string{"eth"},
	}
	n, err := node.New(nodeCfg)
	if err != nil {
		return nil, err
	}
	n.RegisterAPIs([]rpc.API{
		{
			Namespace:     "engine",
			Version:       "1.0",
			Service:       engineAPI,
			Public:        true,
			Authenticated: true,
		},
		{
			Namespace: "eth",
			Version:   "1.0",
			Service:   ethAPI,
			Public:    true,
		},
	})
	return &Server{node: n}, nil
}

func (s *Server) Start() error { return s.node.Start() }
func (s *Server) Close() error { return s.node.Close() }

func (s *Server) HTTPEndpoint() string     { return s.node.HTTPEndpoint() }
func (s *Server) AuthHTTPEndpoint() string { return s.node.HTTPAuthEndpoint() }
func (s *Server) WSEndpoint() string       { return s.node.WSEndpoint() }
func (s *Server) AuthWSEndpoint() string   { return s.node.WSAuthEndpoint() }
