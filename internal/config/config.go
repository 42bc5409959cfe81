package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	LLM     LLMConfig
	Twilio  TwilioConfig
	Trace   TraceConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port          int
	SessionSecret string
	CronToken     string
}

type StorageConfig struct {
	DataDir string
}

type LLMConfig struct {
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

type TraceConfig struct {
	Project  string
	Endpoint string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LLM: LLMConfig{
			GeminiModel: "gemini-1.5-flash",
			OpenAIModel: "gpt-4o-mini",
		},
		Trace: TraceConfig{
			Project: "carepilot",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/carepilot"
	}
	return "./data"
}

// Load reads configuration from defaults overridden by CAREPILOT_*
// environment variables. Provider keys are optional here; callers that
// require one (the gateway, the notifier) validate at construction time.
func Load() (Config, error) {
	return loadWith(os.Getenv)
}

func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if v := getenv("CAREPILOT_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CAREPILOT_PORT %q: %w", v, err)
		}
		cfg.Server.Port = p
	}
	if v := getenv("CAREPILOT_SESSION_SECRET"); v != "" {
		cfg.Server.SessionSecret = v
	}
	if v := getenv("CAREPILOT_CRON_TOKEN"); v != "" {
		cfg.Server.CronToken = v
	}
	if v := getenv("CAREPILOT_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := getenv("CAREPILOT_GEMINI_API_KEY"); v != "" {
		cfg.LLM.GeminiAPIKey = v
	}
	if v := getenv("CAREPILOT_GEMINI_MODEL"); v != "" {
		cfg.LLM.GeminiModel = v
	}
	if v := getenv("CAREPILOT_OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	}
	if v := getenv("CAREPILOT_OPENAI_MODEL"); v != "" {
		cfg.LLM.OpenAIModel = v
	}
	if v := getenv("CAREPILOT_TWILIO_ACCOUNT_SID"); v != "" {
		cfg.Twilio.AccountSID = v
	}
	if v := getenv("CAREPILOT_TWILIO_AUTH_TOKEN"); v != "" {
		cfg.Twilio.AuthToken = v
	}
	if v := getenv("CAREPILOT_TWILIO_FROM"); v != "" {
		cfg.Twilio.From = v
	}
	if v := getenv("CAREPILOT_TRACE_PROJECT"); v != "" {
		cfg.Trace.Project = v
	}
	if v := getenv("CAREPILOT_TRACE_ENDPOINT"); v != "" {
		cfg.Trace.Endpoint = v
	}
	if v := getenv("CAREPILOT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if cfg.LLM.GeminiAPIKey == "" && cfg.LLM.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("missing required config: at least one LLM provider key " +
			"(CAREPILOT_GEMINI_API_KEY or CAREPILOT_OPENAI_API_KEY)")
	}
	if cfg.Server.SessionSecret == "" {
		return Config{}, fmt.Errorf("missing required config: CAREPILOT_SESSION_SECRET")
	}

	return cfg, nil
}
