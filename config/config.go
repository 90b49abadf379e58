// Package config loads the TOML files of the liquidnet server and client.
//
// Every key is optional: values start from the defaults and only keys
// present in the file replace them. Durations are Go duration strings
// ("500ms", "30s").
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"liquidnet/codec"
	"liquidnet/loadbalance"
	"liquidnet/logging"
)

const (
	RegistryMemory = "memory"
	RegistryEtcd   = "etcd"
)

type Registry struct {
	Kind        string
	Endpoints   []string
	Namespace   string
	DialTimeout time.Duration
}

type Server struct {
	Listen      string
	Advertise   string // defaults to Listen
	ServiceName string
	IdleTimeout time.Duration
	RegistryTTL int64

	// HandlerTimeout bounds each handler call; zero disables it.
	HandlerTimeout time.Duration
	// RateLimit is requests per second across the server; zero disables it.
	RateLimit float64
	RateBurst int

	// JournalPath enables the packet journal when set.
	JournalPath string
	JournalSync bool

	Registry Registry
	Log      logging.Config
}

type Client struct {
	ServiceName string
	Codec       codec.CodecType
	Balancer    string
	PoolSize    int
	DialTimeout time.Duration
	CallTimeout time.Duration
	Retries     int
	RetryDelay  time.Duration

	Registry Registry
	Log      logging.Config
}

func DefaultRegistry() Registry {
	return Registry{Kind: RegistryMemory, Namespace: "liquidnet", DialTimeout: 5 * time.Second}
}

func DefaultServer() Server {
	return Server{
		Listen:      ":7450",
		ServiceName: "liquidnet",
		IdleTimeout: 90 * time.Second,
		RegistryTTL: 10,
		Registry:    DefaultRegistry(),
		Log:         logging.DefaultConfig(),
	}
}

func DefaultClient() Client {
	return Client{
		ServiceName: "liquidnet",
		Codec:       codec.CodecTypeBinary,
		Balancer:    "round_robin",
		PoolSize:    2,
		DialTimeout: 3 * time.Second,
		CallTimeout: 5 * time.Second,
		Retries:     2,
		RetryDelay:  100 * time.Millisecond,
		Registry:    DefaultRegistry(),
		Log:         logging.DefaultConfig(),
	}
}

type registryFile struct {
	Kind        string   `toml:"kind"`
	Endpoints   []string `toml:"endpoints"`
	Namespace   string   `toml:"namespace"`
	DialTimeout string   `toml:"dial_timeout"`
}

type serverFile struct {
	Listen         string         `toml:"listen"`
	Advertise      string         `toml:"advertise"`
	ServiceName    string         `toml:"service_name"`
	IdleTimeout    string         `toml:"idle_timeout"`
	RegistryTTL    int64          `toml:"registry_ttl"`
	HandlerTimeout string         `toml:"handler_timeout"`
	RateLimit      float64        `toml:"rate_limit"`
	RateBurst      int            `toml:"rate_burst"`
	Journal        journalFile    `toml:"journal"`
	Registry       registryFile   `toml:"registry"`
	Log            logging.Config `toml:"log"`
}

type journalFile struct {
	Path string `toml:"path"`
	Sync bool   `toml:"sync"`
}

type clientFile struct {
	ServiceName string         `toml:"service_name"`
	Codec       string         `toml:"codec"`
	Balancer    string         `toml:"balancer"`
	PoolSize    int            `toml:"pool_size"`
	DialTimeout string         `toml:"dial_timeout"`
	CallTimeout string         `toml:"call_timeout"`
	Retries     int            `toml:"retries"`
	RetryDelay  string         `toml:"retry_delay"`
	Registry    registryFile   `toml:"registry"`
	Log         logging.Config `toml:"log"`
}

// LoadServer reads a server config file on top of DefaultServer.
func LoadServer(path string) (Server, error) {
	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Server{}, fmt.Errorf("load server config: %w", err)
	}
	cfg, err := applyServer(DefaultServer(), raw, meta)
	if err != nil {
		return Server{}, fmt.Errorf("load server config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadClient reads a client config file on top of DefaultClient.
func LoadClient(path string) (Client, error) {
	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Client{}, fmt.Errorf("load client config: %w", err)
	}
	cfg, err := applyClient(DefaultClient(), raw, meta)
	if err != nil {
		return Client{}, fmt.Errorf("load client config: %w", err)
	}
	return cfg, cfg.Validate()
}

func applyServer(cfg Server, raw serverFile, meta toml.MetaData) (Server, error) {
	var errs error
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("advertise") {
		cfg.Advertise = strings.TrimSpace(raw.Advertise)
	}
	if meta.IsDefined("service_name") {
		cfg.ServiceName = strings.TrimSpace(raw.ServiceName)
	}
	if meta.IsDefined("idle_timeout") {
		errs = multierr.Append(errs, parseDuration("idle_timeout", raw.IdleTimeout, &cfg.IdleTimeout))
	}
	if meta.IsDefined("registry_ttl") {
		cfg.RegistryTTL = raw.RegistryTTL
	}
	if meta.IsDefined("handler_timeout") {
		errs = multierr.Append(errs, parseDuration("handler_timeout", raw.HandlerTimeout, &cfg.HandlerTimeout))
	}
	if meta.IsDefined("rate_limit") {
		cfg.RateLimit = raw.RateLimit
	}
	if meta.IsDefined("rate_burst") {
		cfg.RateBurst = raw.RateBurst
	}
	if meta.IsDefined("journal", "path") {
		cfg.JournalPath = strings.TrimSpace(raw.Journal.Path)
	}
	if meta.IsDefined("journal", "sync") {
		cfg.JournalSync = raw.Journal.Sync
	}
	errs = multierr.Append(errs, applyRegistry(&cfg.Registry, raw.Registry, meta))
	applyLog(&cfg.Log, raw.Log, meta)
	if cfg.Advertise == "" {
		cfg.Advertise = cfg.Listen
	}
	return cfg, errs
}

func applyClient(cfg Client, raw clientFile, meta toml.MetaData) (Client, error) {
	var errs error
	if meta.IsDefined("service_name") {
		cfg.ServiceName = strings.TrimSpace(raw.ServiceName)
	}
	if meta.IsDefined("codec") {
		ct, err := ParseCodec(raw.Codec)
		errs = multierr.Append(errs, err)
		cfg.Codec = ct
	}
	if meta.IsDefined("balancer") {
		cfg.Balancer = strings.TrimSpace(raw.Balancer)
	}
	if meta.IsDefined("pool_size") {
		cfg.PoolSize = raw.PoolSize
	}
	if meta.IsDefined("dial_timeout") {
		errs = multierr.Append(errs, parseDuration("dial_timeout", raw.DialTimeout, &cfg.DialTimeout))
	}
	if meta.IsDefined("call_timeout") {
		errs = multierr.Append(errs, parseDuration("call_timeout", raw.CallTimeout, &cfg.CallTimeout))
	}
	if meta.IsDefined("retries") {
		cfg.Retries = raw.Retries
	}
	if meta.IsDefined("retry_delay") {
		errs = multierr.Append(errs, parseDuration("retry_delay", raw.RetryDelay, &cfg.RetryDelay))
	}
	errs = multierr.Append(errs, applyRegistry(&cfg.Registry, raw.Registry, meta))
	applyLog(&cfg.Log, raw.Log, meta)
	return cfg, errs
}

func applyRegistry(cfg *Registry, raw registryFile, meta toml.MetaData) error {
	if meta.IsDefined("registry", "kind") {
		cfg.Kind = strings.ToLower(strings.TrimSpace(raw.Kind))
	}
	if meta.IsDefined("registry", "endpoints") {
		cfg.Endpoints = normalizeList(raw.Endpoints)
	}
	if meta.IsDefined("registry", "namespace") {
		cfg.Namespace = strings.TrimSpace(raw.Namespace)
	}
	if meta.IsDefined("registry", "dial_timeout") {
		return parseDuration("registry.dial_timeout", raw.DialTimeout, &cfg.DialTimeout)
	}
	return nil
}

func applyLog(cfg *logging.Config, raw logging.Config, meta toml.MetaData) {
	if meta.IsDefined("log", "level") {
		cfg.Level = raw.Level
	}
	if meta.IsDefined("log", "format") {
		cfg.Format = raw.Format
	}
	if meta.IsDefined("log", "development") {
		cfg.Development = raw.Development
	}
}

func parseDuration(key, raw string, dst *time.Duration) error {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

// ParseCodec maps "binary" or "json" to a codec type.
func ParseCodec(raw string) (codec.CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "binary", "":
		return codec.CodecTypeBinary, nil
	case "json":
		return codec.CodecTypeJSON, nil
	default:
		return codec.CodecTypeBinary, fmt.Errorf("unknown codec %q", raw)
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (r Registry) Validate() error {
	switch r.Kind {
	case RegistryMemory:
		return nil
	case RegistryEtcd:
		var errs error
		if len(r.Endpoints) == 0 {
			errs = multierr.Append(errs, errors.New("registry.endpoints is required for etcd"))
		}
		if r.DialTimeout <= 0 {
			errs = multierr.Append(errs, errors.New("registry.dial_timeout must be positive"))
		}
		return errs
	default:
		return fmt.Errorf("unknown registry kind %q", r.Kind)
	}
}

func (s Server) Validate() error {
	var errs error
	if s.Listen == "" {
		errs = multierr.Append(errs, errors.New("listen is required"))
	}
	if s.ServiceName == "" {
		errs = multierr.Append(errs, errors.New("service_name is required"))
	}
	if s.IdleTimeout < 0 || s.HandlerTimeout < 0 {
		errs = multierr.Append(errs, errors.New("timeouts must not be negative"))
	}
	if s.RegistryTTL <= 0 {
		errs = multierr.Append(errs, errors.New("registry_ttl must be positive"))
	}
	if s.RateLimit < 0 {
		errs = multierr.Append(errs, errors.New("rate_limit must not be negative"))
	}
	if s.RateLimit > 0 && s.RateBurst <= 0 {
		errs = multierr.Append(errs, errors.New("rate_burst must be positive when rate_limit is set"))
	}
	errs = multierr.Append(errs, s.Registry.Validate())
	if errs != nil {
		return fmt.Errorf("invalid server config: %w", errs)
	}
	return nil
}

func (c Client) Validate() error {
	var errs error
	if c.ServiceName == "" {
		errs = multierr.Append(errs, errors.New("service_name is required"))
	}
	if _, err := loadbalance.New(c.Balancer); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.PoolSize <= 0 {
		errs = multierr.Append(errs, errors.New("pool_size must be positive"))
	}
	if c.DialTimeout <= 0 || c.CallTimeout <= 0 {
		errs = multierr.Append(errs, errors.New("dial_timeout and call_timeout must be positive"))
	}
	if c.Retries < 0 || c.RetryDelay < 0 {
		errs = multierr.Append(errs, errors.New("retries and retry_delay must not be negative"))
	}
	errs = multierr.Append(errs, c.Registry.Validate())
	if errs != nil {
		return fmt.Errorf("invalid client config: %w", errs)
	}
	return nil
}

const serverTemplate = `# liquidnet server
listen = ":7450"
# advertise = "10.0.0.5:7450"
service_name = "liquidnet"
idle_timeout = "90s"
registry_ttl = 10
# handler_timeout = "2s"
# rate_limit = 1000.0
# rate_burst = 100

[journal]
# path = "/var/lib/liquidnet/journal"
sync = false

[registry]
kind = "memory"
# kind = "etcd"
# endpoints = ["127.0.0.1:2379"]
namespace = "liquidnet"
dial_timeout = "5s"

[log]
level = "info"
format = "json"
`

const clientTemplate = `# liquidnet client
service_name = "liquidnet"
codec = "binary"
balancer = "round_robin"
pool_size = 2
dial_timeout = "3s"
call_timeout = "5s"
retries = 2
retry_delay = "100ms"

[registry]
kind = "memory"
namespace = "liquidnet"
dial_timeout = "5s"

[log]
level = "info"
format = "console"
`

// Template returns an annotated config file for kind "server" or "client".
func Template(kind string) (string, error) {
	switch kind {
	case "server":
		return serverTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind %q", kind)
	}
}

// WriteTemplate writes Template(kind) to path. It refuses to overwrite an
// existing file.
func WriteTemplate(path, kind string) error {
	body, err := Template(kind)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
