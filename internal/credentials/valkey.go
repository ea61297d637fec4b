package credentials

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/valkey-io/valkey-go"
)

// BackendValkey is the backend name of ValkeyStore.
const BackendValkey = "valkey"

// DefaultValkeyKeyPrefix is prepended to the credentials key.
const DefaultValkeyKeyPrefix = "calbridge:"

// ValkeyConfig holds configuration for the Valkey backend.
type ValkeyConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// TLSEnabled enables TLS for Valkey connections
	TLSEnabled bool

	// TLSCAFile is the path to a custom CA certificate file for TLS verification.
	TLSCAFile string

	// KeyPrefix is the prefix for the credentials key (default: "calbridge:")
	KeyPrefix string

	// DB is the Valkey database number (default: 0)
	DB int
}

// Validate checks that the configuration can be used to connect.
func (c ValkeyConfig) Validate() error {
	if c.URL == "" {
		return errors.New("valkey URL is required when using the valkey credentials backend")
	}
	if c.DB < 0 {
		return fmt.Errorf("valkey DB must be non-negative, got %d", c.DB)
	}
	if c.TLSCAFile != "" && !c.TLSEnabled {
		return errors.New("valkey TLS CA file is set but TLS is disabled")
	}
	return nil
}

// Key returns the key the credentials are stored under.
func (c ValkeyConfig) Key() string {
	prefix := c.KeyPrefix
	if prefix == "" {
		prefix = DefaultValkeyKeyPrefix
	}
	return prefix + "credentials"
}

// ValkeyStore keeps the credentials as a JSON string under a single key.
// SET replaces the value atomically.
type ValkeyStore struct {
	client valkey.Client
	key    string
}

// NewValkeyStore connects to Valkey using cfg.
func NewValkeyStore(cfg ValkeyConfig) (*ValkeyStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opt := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		tlsConfig, err := valkeyTLSConfig(cfg.TLSCAFile)
		if err != nil {
			return nil, storeErr(BackendValkey, "open", err)
		}
		opt.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, storeErr(BackendValkey, "open", err)
	}
	return NewValkeyStoreWithClient(client, cfg.Key()), nil
}

// NewValkeyStoreWithClient wraps an existing client.
func NewValkeyStoreWithClient(client valkey.Client, key string) *ValkeyStore {
	return &ValkeyStore{client: client, key: key}
}

func valkeyTLSConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

func (s *ValkeyStore) Load(ctx context.Context) (*Credentials, error) {
	value, err := s.client.Do(ctx, s.client.B().Get().Key(s.key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(BackendValkey, "load", err)
	}
	creds, err := unmarshal([]byte(value))
	if err != nil {
		return nil, storeErr(BackendValkey, "load", err)
	}
	return creds, nil
}

func (s *ValkeyStore) Save(ctx context.Context, creds *Credentials) error {
	data, err := marshal(creds)
	if err != nil {
		return storeErr(BackendValkey, "save", err)
	}
	cmd := s.client.B().Set().Key(s.key).Value(string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return storeErr(BackendValkey, "save", err)
	}
	return nil
}

// Close closes the client connection.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
