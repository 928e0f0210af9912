package consul

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/s3fs/data"
	"github.com/mwantia/s3fs/statcache"
)

// ConsulBackend stores stat entries in the HashiCorp Consul KV store.
//
// Every entry is a single KV pair below the configured prefix; the key is
// the path-escaped URI and the value holds the serialized stat and expiry.
// Consul KV limits values to 512KB, far above the size of one stat.
type ConsulBackend struct {
	client *api.Client
	kv     *api.KV

	// Configuration
	config *ConsulBackendConfig
}

// ConsulBackendConfig contains configuration options for the Consul backend
type ConsulBackendConfig struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Datacenter to use (optional)
	Datacenter string

	// Namespace for Consul Enterprise (optional)
	Namespace string

	// Prefix for all keys in Consul KV (default: "s3fs/stat/")
	Prefix string
}

type consulEntry struct {
	Stat    json.RawMessage `json:"stat"`
	Expires int64           `json:"expires"`
}

// NewConsulBackend creates a new Consul-backed stat cache backend
func NewConsulBackend(config *ConsulBackendConfig) (*ConsulBackend, error) {
	if config == nil {
		config = &ConsulBackendConfig{}
	}

	// Set defaults
	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}

	if config.Prefix == "" {
		config.Prefix = "s3fs/stat/"
	}
	if !strings.HasSuffix(config.Prefix, "/") {
		config.Prefix += "/"
	}
	config.Prefix = strings.TrimPrefix(config.Prefix, "/")

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}
	if config.Namespace != "" {
		clientConfig.Namespace = config.Namespace
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &ConsulBackend{
		client: client,
		kv:     client.KV(),
		config: config,
	}, nil
}

// Name returns the identifier name defined for this backend
func (*ConsulBackend) Name() string {
	return "consul"
}

// Open is part of the lifecycle behaviour and checks that the agent answers.
func (cb *ConsulBackend) Open(ctx context.Context) error {
	_, err := cb.client.Status().Leader()
	return err
}

// Close is part of the lifecycle behaviour; the Consul client is stateless.
func (*ConsulBackend) Close(ctx context.Context) error {
	return nil
}

// key maps uri onto a single KV path segment.
func (cb *ConsulBackend) key(uri string) string {
	return cb.config.Prefix + url.PathEscape(uri)
}

func (cb *ConsulBackend) Load(ctx context.Context, uri string) (*statcache.Entry, error) {
	opts := (&api.QueryOptions{}).WithContext(ctx)

	pair, _, err := cb.kv.Get(cb.key(uri), opts)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, data.ErrNotExist
	}

	var entry consulEntry
	if err := json.Unmarshal(pair.Value, &entry); err != nil {
		return nil, err
	}

	return &statcache.Entry{
		URI:     uri,
		Stat:    entry.Stat,
		Expires: time.Unix(entry.Expires, 0),
	}, nil
}

func (cb *ConsulBackend) Save(ctx context.Context, entry *statcache.Entry) error {
	value, err := json.Marshal(consulEntry{
		Stat:    entry.Stat,
		Expires: entry.Expires.Unix(),
	})
	if err != nil {
		return err
	}

	opts := (&api.WriteOptions{}).WithContext(ctx)
	_, err = cb.kv.Put(&api.KVPair{
		Key:   cb.key(entry.URI),
		Value: value,
	}, opts)
	return err
}

// Remove deletes every uri in one KV transaction.
func (cb *ConsulBackend) Remove(ctx context.Context, uris ...string) error {
	if len(uris) == 0 {
		return nil
	}

	ops := make(api.KVTxnOps, 0, len(uris))
	for _, uri := range uris {
		ops = append(ops, &api.KVTxnOp{
			Verb: api.KVDelete,
			Key:  cb.key(uri),
		})
	}

	opts := (&api.QueryOptions{}).WithContext(ctx)
	ok, resp, _, err := cb.kv.Txn(ops, opts)
	if err != nil {
		return err
	}
	if !ok && resp != nil && len(resp.Errors) > 0 {
		return &txnError{errors: resp.Errors}
	}

	return nil
}

type txnError struct {
	errors api.TxnErrors
}

func (e *txnError) Error() string {
	messages := make([]string, len(e.errors))
	for i, err := range e.errors {
		messages[i] = err.What
	}
	return "consul transaction failed: " + strings.Join(messages, "; ")
}
