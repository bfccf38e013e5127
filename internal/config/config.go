package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "drone_tracker.cfg.json"

// DroneConfig holds the simulated drone's start-up settings
type DroneConfig struct {
	ID             string   `json:"id" mapstructure:"id"`
	Sensors        []string `json:"sensors" mapstructure:"sensors"`
	InitialBattery float64  `json:"initialBattery" mapstructure:"initialBattery"`
	HomeLatitude   float64  `json:"homeLatitude" mapstructure:"homeLatitude"`
	HomeLongitude  float64  `json:"homeLongitude" mapstructure:"homeLongitude"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// DBConfig holds PostgreSQL connection settings
type DBConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// StorageConfig lists the enabled backends and their settings
type StorageConfig struct {
	Backends []string
	Memory   MemoryConfig
	SQLite   SQLiteConfig
	DB       DBConfig
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Host     string
	Port     int
	Protocol string
	Token    string
	Org      string
	Bucket   string
}

// WebSocketConfig holds telemetry stream settings
type WebSocketConfig struct {
	URL    string
	Secret string
}

// APIConfig holds recording upload settings
type APIConfig struct {
	Enabled   bool
	ServerURL string
	APIKey    string
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("drone.id", "DRN-01")
	viper.SetDefault("drone.sensors", []string{"Camera", "GPS", "Infrared"})
	viper.SetDefault("drone.initialBattery", 100.0)
	viper.SetDefault("drone.homeLatitude", 0.0)
	viper.SetDefault("drone.homeLongitude", 0.0)

	viper.SetDefault("storage.backends", []string{"console", "memory"})
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "drones")

	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", 8086)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "drone-metrics")
	viper.SetDefault("influx.bucket", "drone_telemetry")

	viper.SetDefault("websocket.url", "")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "drone-tracker")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", true)
}

// UseDefaults installs the default values without reading a file.
func UseDefaults() {
	setDefaults()
}

// GetDroneConfig returns the drone settings.
func GetDroneConfig() DroneConfig {
	return DroneConfig{
		ID:             viper.GetString("drone.id"),
		Sensors:        viper.GetStringSlice("drone.sensors"),
		InitialBattery: viper.GetFloat64("drone.initialBattery"),
		HomeLatitude:   viper.GetFloat64("drone.homeLatitude"),
		HomeLongitude:  viper.GetFloat64("drone.homeLongitude"),
	}
}

// GetStorageConfig returns the storage settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Backends: viper.GetStringSlice("storage.backends"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetInt("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetInt("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetWebSocketConfig returns the telemetry stream settings.
func GetWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		URL:    viper.GetString("websocket.url"),
		Secret: viper.GetString("websocket.secret"),
	}
}

// GetAPIConfig returns the upload settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		Enabled:   viper.GetBool("api.enabled"),
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
