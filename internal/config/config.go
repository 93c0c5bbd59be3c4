// Package config loads runtime settings for the print server and relay.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/thereceipt/order-printer/internal/logging"
)

const (
	defaultServerPort        = "12212"
	defaultRelayPort         = "12213"
	defaultAutoprintInterval = 5 * time.Second
	defaultPrintTimeout      = 10 * time.Second
	defaultRelayTimeout      = 5 * time.Second
	defaultActivationDelay   = 2 * time.Second
	defaultWatchInterval     = 30 * time.Second
	defaultLogCapacity       = 100
	defaultRestaurantName    = "RESTAURANTE"
	defaultPrintsTopic       = "orders/{order_id}/printed"
)

// DefaultThermalIdentifiers are substrings that mark a printer name as a
// receipt-class device.
var DefaultThermalIdentifiers = []string{
	"thermal", "termica", "pos", "tm-t20", "epson", "elgin", "bematech", "daruma",
}

// Config stores runtime settings loaded from the environment and an optional .env file.
type Config struct {
	ServerPort string
	RelayPort  string

	// RelayURLs are the base URLs of print relays tried in order by the
	// dispatcher. Empty disables relay forwarding.
	RelayURLs []string
	// RelayPublicURL is the externally reachable base of this relay; used to
	// build the authUrl returned with 403 responses.
	RelayPublicURL  string
	TrustedRelayIPs []string

	ThermalIdentifiers []string

	AutoprintEnabled  bool
	AutoprintInterval time.Duration

	DataDir      string
	UnprintedDir string
	LogFile      string
	LogCapacity  int
	AuthFile     string

	PrintTimeout    time.Duration
	RelayTimeout    time.Duration
	ActivationDelay time.Duration

	// PrinterWatchInterval is how often the catalog is refreshed in the
	// background.
	PrinterWatchInterval time.Duration

	DiscoverUSBDescriptors bool
	DiscoverSerial         bool

	OrdersAPIURL string
	OrdersAPIKey string
	OrdersDB     string

	RestaurantName string

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrints string

	LogLevel slog.Level
}

// Load reads .env (if present) and builds Config with stable defaults.
func Load() Config {
	_ = godotenv.Load()

	dataDir := getenv("DATA_DIR", defaultDataDir())

	return Config{
		ServerPort:             getPort("SERVER_PORT", defaultServerPort),
		RelayPort:              getPort("RELAY_PORT", defaultRelayPort),
		RelayURLs:              getList("RELAY_URLS", nil),
		RelayPublicURL:         getenv("RELAY_PUBLIC_URL", ""),
		TrustedRelayIPs:        getList("TRUSTED_RELAY_IPS", []string{"127.0.0.1", "::1"}),
		ThermalIdentifiers:     getList("THERMAL_IDENTIFIERS", DefaultThermalIdentifiers),
		AutoprintEnabled:       getBool("AUTOPRINT_ENABLED", false),
		AutoprintInterval:      getDuration("AUTOPRINT_INTERVAL", defaultAutoprintInterval),
		DataDir:                dataDir,
		UnprintedDir:           getenv("UNPRINTED_DIR", filepath.Join(dataDir, "pedidos_nao_impressos")),
		LogFile:                getenv("LOG_FILE", filepath.Join(dataDir, "print_logs.json")),
		LogCapacity:            getInt("LOG_CAPACITY", defaultLogCapacity),
		AuthFile:               getenv("AUTH_FILE", filepath.Join(dataDir, "authorized_ips.json")),
		PrintTimeout:           getDuration("PRINT_TIMEOUT", defaultPrintTimeout),
		RelayTimeout:           getDuration("RELAY_TIMEOUT", defaultRelayTimeout),
		ActivationDelay:        getDuration("ACTIVATION_DELAY", defaultActivationDelay),
		PrinterWatchInterval:   getDuration("PRINTER_WATCH_INTERVAL", defaultWatchInterval),
		DiscoverUSBDescriptors: getBool("DISCOVERY_USB_DESCRIPTORS", false),
		DiscoverSerial:         getBool("DISCOVERY_SERIAL", false),
		OrdersAPIURL:           strings.TrimRight(getenv("ORDERS_API_URL", ""), "/"),
		OrdersAPIKey:           getenv("ORDERS_API_KEY", ""),
		OrdersDB:               getenv("ORDERS_DB", ""),
		RestaurantName:         getenv("RESTAURANT_NAME", defaultRestaurantName),
		MQTTBroker:             getenv("MQTT_BROKER", ""),
		MQTTClientID:           getenv("MQTT_CLIENT_ID", "order-printer"),
		MQTTTopicPrints:        getenv("MQTT_TOPIC_PRINTS", defaultPrintsTopic),
		LogLevel:               logging.ParseLevel(getenv("LOG_LEVEL", "info")),
	}
}

// EnsureDirs creates the directories that hold local state.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.UnprintedDir, filepath.Dir(c.LogFile), filepath.Dir(c.AuthFile)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// getPort prefers the environment, then a --port argument, then the fallback.
func getPort(key, fallback string) string {
	if port := getenv(key, ""); port != "" {
		return port
	}
	for i, arg := range os.Args {
		if arg == "--port" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}
	return fallback
}

// defaultDataDir places state next to the executable when writable, falling
// back to the per-user config directory.
func defaultDataDir() string {
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		testFile := filepath.Join(exeDir, ".order-printer-write-test")
		if f, err := os.Create(testFile); err == nil {
			f.Close()
			os.Remove(testFile)
			return filepath.Join(exeDir, "data")
		}
	}

	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "order-printer")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "order-printer")
	}
	return "data"
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func getBool(key string, fallback bool) bool {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func getList(key string, fallback []string) []string {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
