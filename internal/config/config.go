package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	// Realtime voice vendor.
	OpenAIKey      string
	RealtimeModel  string
	OpenAIBaseURL  string
	ICEServersJSON string
	// Transport selects the realtime event transport: "webrtc" or "websocket".
	Transport string

	// Auth session cookie signing.
	AuthSecret string

	// Ledger database. Driver is "mysql" or "sqlite".
	DBDriver string
	DBDSN    string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set - realtime sessions will not work")
	}

	model := os.Getenv("OPENAI_REALTIME_MODEL")
	if model == "" {
		model = "gpt-4o-realtime-preview-2025-06-03"
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	iceServers := os.Getenv("ICE_SERVERS_JSON")
	if iceServers == "" {
		iceServers = `[{"urls":["stun:stun.l.google.com:19302"]}]`
	}

	transport := os.Getenv("REALTIME_TRANSPORT")
	if transport == "" {
		transport = "webrtc"
	}

	authSecret := os.Getenv("AUTH_SECRET")
	if authSecret == "" {
		log.Println("Warning: AUTH_SECRET not set - login sessions will not survive restarts")
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		if driver == "mysql" {
			log.Println("Warning: DB_DSN not set - ledger writes will fail")
		}
		dsn = "curiosity.db"
	}

	log.Printf("config: HTTP_ADDRESS=%s transport=%s db=%s", addr, transport, driver)
	return Config{
		HTTPAddress:    addr,
		OpenAIKey:      apiKey,
		RealtimeModel:  model,
		OpenAIBaseURL:  baseURL,
		ICEServersJSON: iceServers,
		Transport:      transport,
		AuthSecret:     authSecret,
		DBDriver:       driver,
		DBDSN:          dsn,
	}
}
