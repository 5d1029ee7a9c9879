package enginerpc

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/golang-jwt/jwt/v4"
)

// LoadJWTSecret reads a hex-encoded 32-byte JWT secret from path, the same
// file format node.Config.JWTSecret expects server-side (spec §6's engine
// API is JWT-authed; this is the client side of that contract for whatever
// drives basedseq's authrpc endpoint).
func LoadJWTSecret(path string) ([32]byte, error) {
	var secret [32]byte
	raw, err := os.ReadFile(path)
	if err != nil {
		return secret, fmt.Errorf("enginerpc: read jwt secret %s: %w", path, err)
	}
	decoded, err := hexutil.Decode(strings.TrimSpace(string(raw)))
	if err != nil {
		return secret, fmt.Errorf("enginerpc: decode jwt secret %s: %w", path, err)
	}
	if len(decoded) != 32 {
		return secret, fmt.Errorf("enginerpc: jwt secret %s must be 32 bytes, got %d", path, len(decoded))
	}
	copy(secret[:], decoded)
	return secret, nil
}

// NewJWTAuth builds an rpc.HTTPAuth that stamps every outbound authrpc
// request with a fresh HS256 JWT carrying only an "iat" claim, following
// go-ethereum's own auth provider shape (node/node_auth_test.go's
// offsetTimeAuth, minus the test's clock-skew knob).
func NewJWTAuth(secret [32]byte) rpc.HTTPAuth {
	return func(header http.Header) error {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iat": &jwt.NumericDate{Time: time.Now()},
		})
		signed, err := token.SignedString(secret[:])
		if err != nil {
			return fmt.Errorf("enginerpc: sign jwt: %w", err)
		}
		header.Set("Authorization", "Bearer "+signed)
		return nil
	}
}

// DialAuthenticated connects to an authrpc endpoint using a JWT secret
// loaded from secretPath, for driving basedseq's engine API the way a
// consensus-layer client would.
func DialAuthenticated(ctx context.Context, endpoint, secretPath string) (*rpc.Client, error) {
	secret, err := LoadJWTSecret(secretPath)
	if err != nil {
		return nil, err
	}
	return rpc.DialOptions(ctx, endpoint, rpc.WithHTTPAuth(NewJWTAuth(secret)))
}
