package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	defaultPath       = "."
	defaultBcryptCost = 10
	defaultTokenTTL   = 2 * time.Hour
	defaultQueueGroup = "auth-ms"

	serversEnv = "TRANSPORT_SERVERS"
	secretEnv  = "SECRETKEY_JWT"

	// Variable names used by earlier deployments of the service.
	legacyServersEnv = "NATS_SERVERS"
	legacySecretEnv  = "JWT_SECRET"
)

// Transport providers.
const (
	TransportNATS    = "nats"
	TransportGoogle  = "google"
	TransportGoCloud = "gocloud"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	// HTTP serves the health endpoint. A zero port disables it.
	HTTP struct {
		Port     int `json:"port" yaml:"port"`
		Timeouts struct {
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	SecretKey struct {
		JWT string `json:"jwt" yaml:"jwt"`
	} `json:"secretKey" yaml:"secretKey"`

	Auth *AuthConfig `json:"auth" yaml:"auth"`

	Transport TransportConfig `json:"transport" yaml:"transport"`

	Store StoreConfig `json:"store" yaml:"store"`

	Mongo *MongoConfig `json:"mongo" yaml:"mongo"`

	Postgres *PostgresConfig `json:"postgres" yaml:"postgres"`
}

// AuthConfig defines authentication-related configuration
type AuthConfig struct {
	BcryptCost int           `json:"bcryptCost" yaml:"bcryptCost"`
	TokenTTL   time.Duration `json:"tokenTTL" yaml:"tokenTTL"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// TransportConfig selects and configures the message bus the RPC patterns are served on.
type TransportConfig struct {
	// Provider type: "nats", "google" or "gocloud"
	Provider string `json:"provider" yaml:"provider"`

	// NATS server addresses
	Servers []string `json:"servers" yaml:"servers"`

	// Queue group shared by all replicas (nats)
	QueueGroup string `json:"queueGroup" yaml:"queueGroup"`

	// Google Cloud project ID (google)
	ProjectID string `json:"projectId" yaml:"projectId"`

	// Prefix prepended to each pattern to form a subscription ID (google)
	SubscriptionPrefix string `json:"subscriptionPrefix" yaml:"subscriptionPrefix"`

	// Emulator address, dialed without TLS or authentication when set (google)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Path to a service account key file, application default credentials otherwise (google)
	CredentialsFile string `json:"credentialsFile" yaml:"credentialsFile"`

	// Subscription URL template, "{pattern}" is replaced by the message pattern (gocloud)
	SubscriptionURL string `json:"subscriptionUrl" yaml:"subscriptionUrl"`
}

// StoreConfig selects the user store implementation.
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"`
}

// MongoConfig defines the document database connection.
type MongoConfig struct {
	URI        string `json:"uri" yaml:"uri"`
	Database   string `json:"database" yaml:"database"`
	Collection string `json:"collection" yaml:"collection"`
}

// PostgresConfig defines the SQL store connection. Replicas are optional read-only DSNs.
type PostgresConfig struct {
	DSN      string   `json:"dsn" yaml:"dsn"`
	Replicas []string `json:"replicas" yaml:"replicas"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			abs := filepath.Join(pwd, path)
			searchPaths = append(searchPaths, abs)
		}
	}

	// The file is optional, environment variables alone are enough to run.
	var configFile string
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate

			break
		}
	}

	if configFile != "" {
		if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read %s config failed", currEnv)
		}
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Example: TRANSPORT_QUEUEGROUP -> transport.queueGroup
			key := canonicalizeEnvKey(k, existingConfigMap)

			return key, v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	// Unmarshal into the config struct (case-insensitive to match env vars)
	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	applyLegacyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SecretKey.JWT) == "" {
		return errors.New("config validation error: secretKey.jwt is required")
	}

	switch c.Transport.Provider {
	case TransportNATS:
		if len(c.Transport.Servers) == 0 {
			return errors.New("config validation error: transport.servers is required")
		}
		for _, server := range c.Transport.Servers {
			if err := validateServerAddress(server); err != nil {
				return err
			}
		}
	case TransportGoogle:
		if c.Transport.ProjectID == "" {
			return errors.New("config validation error: transport.projectId is required for google provider")
		}
	case TransportGoCloud:
		if !strings.Contains(c.Transport.SubscriptionURL, "{pattern}") {
			return errors.New("config validation error: transport.subscriptionUrl must contain {pattern}")
		}
	default:
		return errors.Errorf("config validation error: unknown transport provider %q", c.Transport.Provider)
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreMongo:
		if c.Mongo == nil || c.Mongo.URI == "" {
			return errors.New("config validation error: mongo.uri is required for mongo store")
		}
	case StorePostgres:
		if c.Postgres == nil || c.Postgres.DSN == "" {
			return errors.New("config validation error: postgres.dsn is required for postgres store")
		}
	default:
		return errors.Errorf("config validation error: unknown store driver %q", c.Store.Driver)
	}

	return nil
}

func validateServerAddress(server string) error {
	u, err := url.Parse(strings.TrimSpace(server))
	if err != nil {
		return errors.Wrapf(err, "config validation error: malformed server address %q", server)
	}
	if u.Host == "" {
		return errors.Errorf("config validation error: malformed server address %q", server)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
		return nil
	default:
		return errors.Errorf("config validation error: unsupported scheme in server address %q", server)
	}
}

// applyLegacyEnv lets the old variable names override the config file.
// The current names (TRANSPORT_SERVERS, SECRETKEY_JWT) still win when set.
func applyLegacyEnv(cfg *Config) {
	if servers := os.Getenv(legacyServersEnv); servers != "" && os.Getenv(serversEnv) == "" {
		cfg.Transport.Servers = splitList(servers)
	}
	if secret := os.Getenv(legacySecretEnv); secret != "" && os.Getenv(secretEnv) == "" {
		cfg.SecretKey.JWT = secret
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Transport.Provider == "" {
		cfg.Transport.Provider = TransportNATS
	}
	if cfg.Transport.QueueGroup == "" {
		cfg.Transport.QueueGroup = defaultQueueGroup
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreMemory
	}
	if cfg.Auth == nil {
		cfg.Auth = &AuthConfig{}
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = defaultBcryptCost
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = defaultTokenTTL
	}
	if cfg.Env.Log.Level == "" {
		cfg.Env.Log.Level = "info"
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}
