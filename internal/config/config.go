package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ruda0008/rideau-canal-sensor-simulation/common/config"
	"go.uber.org/multierr"
)

// Publisher sinks
const (
	SinkIoTHubMQTT = "iothub-mqtt"
	SinkIoTHubHTTP = "iothub-http"
	SinkRedis      = "redis"
	SinkKafka      = "kafka"
	SinkPostgres   = "postgres"
)

// Sinks lists every supported SIM_SINK value
var Sinks = []string{SinkIoTHubMQTT, SinkIoTHubHTTP, SinkRedis, SinkKafka, SinkPostgres}

// DeviceConfig one simulated sensor. Never mutated after Load.
type DeviceConfig struct {
	Key        string // e.g. "dows-lake"
	DeviceID   string
	Location   string
	Credential string // opaque, interpreted by the publisher sink
}

// CredentialEnvVar "dows-lake" -> "DOWS_LAKE_CONNECTION_STRING"
func (d DeviceConfig) CredentialEnvVar() string {
	return strings.ToUpper(strings.ReplaceAll(d.Key, "-", "_")) + "_CONNECTION_STRING"
}

// DefaultDevices the three skateway monitoring points
var DefaultDevices = []DeviceConfig{
	{Key: "dows-lake", DeviceID: "dows-lake-sensor", Location: "Dow's Lake"},
	{Key: "fifth-avenue", DeviceID: "fifth-avenue-sensor", Location: "Fifth Avenue"},
	{Key: "nac", DeviceID: "nac-sensor", Location: "NAC"},
}

// Config simulator configuration
type Config struct {
	Devices []DeviceConfig

	Simulation struct {
		Duration     time.Duration
		TickInterval time.Duration
		Seed         int64 // 0 = time based
		Sink         string
		ReportPath   string // xlsx export, empty disables
	}

	// Azure IoT Hub sinks; host and device come from each connection string
	IoTHub struct {
		APIVersion string
		TokenTTL   time.Duration
		MQTTPort   int
	}
	MQTT config.MQTTConfig
	HTTP config.HTTPConfig

	Redis       config.RedisConfig
	RedisStream struct {
		Name       string
		MaxLen     int64
		DeviceAuth bool
	}

	Kafka     config.KafkaConfig
	KafkaSASL bool

	Database config.DatabaseConfig

	Log struct {
		Level  string
		Format string
	}
}

// Iterations number of publish ticks in a run
func (c *Config) Iterations() int {
	if c.Simulation.TickInterval <= 0 {
		return 0
	}
	return int(c.Simulation.Duration / c.Simulation.TickInterval)
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	env := &envReader{}

	devices, err := selectDevices(getEnv("SIM_DEVICES", ""))
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		d.Credential = strings.TrimSpace(os.Getenv(d.CredentialEnvVar()))
		cfg.Devices = append(cfg.Devices, d)
	}

	cfg.Simulation.Duration = env.duration("SIM_DURATION", 30*time.Minute)
	cfg.Simulation.TickInterval = env.duration("SIM_TICK_INTERVAL", 10*time.Second)
	cfg.Simulation.Seed = env.int64("SIM_SEED", 0)
	cfg.Simulation.Sink = getEnv("SIM_SINK", SinkIoTHubMQTT)
	cfg.Simulation.ReportPath = getEnv("SIM_REPORT_XLSX", "")

	cfg.IoTHub.APIVersion = getEnv("IOTHUB_API_VERSION", "2021-04-12")
	cfg.IoTHub.TokenTTL = env.duration("IOTHUB_TOKEN_TTL", time.Hour)
	cfg.IoTHub.MQTTPort = int(env.int64("IOTHUB_MQTT_PORT", 8883))

	cfg.MQTT.QoS = 1
	cfg.MQTT.TLS = getEnv("MQTT_TLS", "true") == "true"
	cfg.MQTT.KeepAlive = 60 * time.Second
	cfg.MQTT.LoadFromEnv("MQTT")

	// no client timeout unless IOTHUB_HTTP_TIMEOUT is set
	cfg.HTTP.LoadFromEnv("IOTHUB_HTTP")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.RedisStream.Name = getEnv("SIM_REDIS_STREAM", "skateway:readings:stream")
	cfg.RedisStream.MaxLen = env.int64("SIM_REDIS_STREAM_MAXLEN", 10000)
	cfg.RedisStream.DeviceAuth = getEnv("REDIS_DEVICE_AUTH", "false") == "true"

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = "skateway.readings"
	cfg.Kafka.LoadFromEnv("KAFKA")
	cfg.KafkaSASL = getEnv("KAFKA_SASL", "false") == "true"

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "skateway"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 1
	cfg.Database.LoadFromEnv("DB")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "console")

	if env.err != nil {
		return nil, env.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks run parameters and sink. Credentials are checked
// separately by ValidateCredentials so `check` can report them on their own.
func (c *Config) Validate() error {
	if !isKnownSink(c.Simulation.Sink) {
		return fmt.Errorf("unsupported sink %q (expected one of %s)", c.Simulation.Sink, strings.Join(Sinks, ", "))
	}
	if c.Simulation.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.Simulation.TickInterval)
	}
	if c.Iterations() < 1 {
		return fmt.Errorf("duration %s is shorter than one tick (%s)", c.Simulation.Duration, c.Simulation.TickInterval)
	}
	if len(c.Devices) == 0 {
		return errors.New("no devices configured")
	}
	return nil
}

// MissingCredentialsError lists every device without a credential
type MissingCredentialsError struct {
	Devices []DeviceConfig
}

func (e *MissingCredentialsError) Error() string {
	return "missing connection strings: " + strings.Join(e.EnvVars(), ", ")
}

// EnvVars names of the unset variables, in device order
func (e *MissingCredentialsError) EnvVars() []string {
	vars := make([]string, 0, len(e.Devices))
	for _, d := range e.Devices {
		vars = append(vars, d.CredentialEnvVar())
	}
	return vars
}

// ValidateCredentials returns *MissingCredentialsError naming all devices
// with an empty credential, or nil.
func (c *Config) ValidateCredentials() error {
	var missing []DeviceConfig
	for _, d := range c.Devices {
		if d.Credential == "" {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		return &MissingCredentialsError{Devices: missing}
	}
	return nil
}

func selectDevices(keys string) ([]DeviceConfig, error) {
	if strings.TrimSpace(keys) == "" {
		return append([]DeviceConfig(nil), DefaultDevices...), nil
	}

	var out []DeviceConfig
	for _, key := range strings.Split(keys, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		found := false
		for _, d := range DefaultDevices {
			if d.Key == key {
				out = append(out, d)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown device %q in SIM_DEVICES", key)
		}
	}
	return out, nil
}

func isKnownSink(sink string) bool {
	for _, s := range Sinks {
		if s == sink {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables. Unset variables take the default; a
// set variable that does not parse is recorded in err.
type envReader struct {
	err error
}

func (r *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return d
}

func (r *envReader) int64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		r.fail(key, value, err)
		return defaultValue
	}
	return v
}

func (r *envReader) fail(key, value string, err error) {
	r.err = multierr.Append(r.err, fmt.Errorf("invalid %s %q: %w", key, value, err))
}
