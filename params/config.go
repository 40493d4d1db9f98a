package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	ListenAddr     string
	AllowedOrigins []string
}

type Storage struct {
	DataDir string
}

type Kafka struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type Engine struct {
	// DefaultSTP is applied to orders that do not pick a self-trade
	// prevention mode: NONE, EXPIRE_MAKER, EXPIRE_TAKER, EXPIRE_BOTH.
	DefaultSTP string
	// ExpirySweep paces the background expiry sweep across symbols.
	ExpirySweep time.Duration
	// MachineID seeds order/trade ID generation; give each node its own.
	MachineID uint16
}

type Config struct {
	Server  Server
	Storage Storage
	Kafka   Kafka
	Engine  Engine
	LogFile string
}

func Default() Config {
	return Config{
		Server: Server{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Storage: Storage{
			DataDir: "data",
		},
		Kafka: Kafka{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "exchange.events",
		},
		Engine: Engine{
			DefaultSTP:  "NONE",
			ExpirySweep: time.Second,
			MachineID:   1,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("SERVER_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	if dir := os.Getenv("STORAGE_DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}

	if enabled := os.Getenv("KAFKA_ENABLED"); enabled != "" {
		cfg.Kafka.Enabled = enabled == "true"
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("KAFKA_TOPIC"); topic != "" {
		cfg.Kafka.Topic = topic
	}

	if stp := os.Getenv("ENGINE_DEFAULT_STP"); stp != "" {
		cfg.Engine.DefaultSTP = stp
	}
	if sweep := os.Getenv("ENGINE_EXPIRY_SWEEP_MS"); sweep != "" {
		if ms, err := strconv.Atoi(sweep); err == nil && ms > 0 {
			cfg.Engine.ExpirySweep = time.Duration(ms) * time.Millisecond
		}
	}

	if id := os.Getenv("ENGINE_MACHINE_ID"); id != "" {
		if n, err := strconv.Atoi(id); err == nil && n > 0 && n < 1<<16 {
			cfg.Engine.MachineID = uint16(n)
		}
	}

	cfg.LogFile = os.Getenv("LOG_FILE")

	return cfg
}
