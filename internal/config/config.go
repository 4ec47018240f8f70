package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	TraceExporter string `yaml:"trace_exporter"` // none, stderr, otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	DataDir     string            `yaml:"data_dir"`
	TempDir     string            `yaml:"temp_dir"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Store       StoreConfig       `yaml:"store"`
	Audio       AudioConfig       `yaml:"audio"`
	Compression CompressionConfig `yaml:"compression"`
	STT         STTConfig         `yaml:"stt"`
	LLM         LLMConfig         `yaml:"llm"`
	Desktop     DesktopConfig     `yaml:"desktop"`
}

// BusConfig controls the optional NATS mirror of protocol traffic.
type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	ResultsDir    string `yaml:"results_dir"`
	RetentionDays int    `yaml:"retention_days"`
	MaxResults    int    `yaml:"max_results"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type AudioConfig struct {
	Mode            string `yaml:"mode"` // ffmpeg, mock
	Command         string `yaml:"command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	ListCommand     string `yaml:"list_command"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
	LevelWindow     int    `yaml:"level_window"`
	MaxDurationS    int    `yaml:"max_duration_s"`
}

type CompressionConfig struct {
	Mode       string `yaml:"mode"` // ffmpeg, none
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
}

type STTConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	ModelsDir string `yaml:"models_dir"`
	Device    string `yaml:"device"`
	MockText  string `yaml:"mock_text"`
}

type LLMConfig struct {
	Mode           string  `yaml:"mode"` // mock, ollama, openai, exec
	Endpoint       string  `yaml:"endpoint"`
	Command        string  `yaml:"command"`
	APIKey         string  `yaml:"api_key"`
	DefaultModel   string  `yaml:"default_model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	KeepAlive      string  `yaml:"keep_alive"`
	RequireBackend bool    `yaml:"require_backend"`
	TimeoutMS      int     `yaml:"timeout_ms"`
}

// DesktopConfig names the helper commands used to read desktop context.
type DesktopConfig struct {
	WindowCommand    string `yaml:"window_command"`
	ClipboardCommand string `yaml:"clipboard_command"`
	TimeoutMS        int    `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "localflow",
		Environment: "development",
		DataDir:     "./data",
		HTTP: HTTPConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    8089,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPInsecure:  true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "localflow",
		},
		Store: StoreConfig{
			RetentionDays: 0,
			MaxResults:    0,
		},
		Audio: AudioConfig{
			Mode:            "ffmpeg",
			Command:         "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			ListCommand:     "pactl list short sources",
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMS: 20,
			LevelWindow:     5,
			MaxDurationS:    1800,
		},
		Compression: CompressionConfig{
			Mode:       "ffmpeg",
			Command:    "ffmpeg",
			SampleRate: 16000,
		},
		STT: STTConfig{
			Mode:     "mock",
			Device:   "auto",
			MockText: "mock transcription",
		},
		LLM: LLMConfig{
			Mode:           "ollama",
			Endpoint:       "http://localhost:11434",
			DefaultModel:   "gemma3:4b",
			MaxTokens:      0,
			Temperature:    0.2,
			KeepAlive:      "5m",
			RequireBackend: true,
			TimeoutMS:      120000,
		},
		Desktop: DesktopConfig{
			TimeoutMS: 1500,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDerivedDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyDerivedDefaults fills paths that hang off data_dir and temp_dir.
func applyDerivedDefaults(cfg *Config) {
	if cfg.Store.Path == "" && cfg.DataDir != "" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "localflow.db")
	}
	if cfg.Store.ResultsDir == "" && cfg.DataDir != "" {
		cfg.Store.ResultsDir = filepath.Join(cfg.DataDir, "results")
	}
	if cfg.STT.ModelsDir == "" && cfg.DataDir != "" {
		cfg.STT.ModelsDir = filepath.Join(cfg.DataDir, "models")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "localflow")
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOCALFLOW_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOCALFLOW_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.DataDir, "LOCALFLOW_DATA_DIR")
	overrideString(&cfg.TempDir, "LOCALFLOW_TEMP_DIR")
	overrideBool(&cfg.HTTP.Enabled, "LOCALFLOW_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "LOCALFLOW_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOCALFLOW_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOCALFLOW_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFile, "LOCALFLOW_TELEMETRY_LOG_FILE")
	overrideString(&cfg.Telemetry.TraceExporter, "LOCALFLOW_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOCALFLOW_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOCALFLOW_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "LOCALFLOW_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOCALFLOW_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOCALFLOW_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOCALFLOW_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOCALFLOW_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOCALFLOW_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOCALFLOW_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOCALFLOW_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOCALFLOW_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "LOCALFLOW_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.Store.Path, "LOCALFLOW_STORE_PATH")
	overrideString(&cfg.Store.ResultsDir, "LOCALFLOW_STORE_RESULTS_DIR")
	overrideInt(&cfg.Store.RetentionDays, "LOCALFLOW_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxResults, "LOCALFLOW_STORE_MAX_RESULTS")
	overrideBool(&cfg.Store.VacuumOnStart, "LOCALFLOW_STORE_VACUUM_ON_START")
	overrideString(&cfg.Audio.Mode, "LOCALFLOW_AUDIO_MODE")
	overrideString(&cfg.Audio.Command, "LOCALFLOW_AUDIO_COMMAND")
	overrideString(&cfg.Audio.InputFormat, "LOCALFLOW_AUDIO_INPUT_FORMAT")
	overrideString(&cfg.Audio.InputDevice, "LOCALFLOW_AUDIO_INPUT_DEVICE")
	overrideString(&cfg.Audio.ListCommand, "LOCALFLOW_AUDIO_LIST_COMMAND")
	overrideInt(&cfg.Audio.SampleRate, "LOCALFLOW_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "LOCALFLOW_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.FrameDurationMS, "LOCALFLOW_AUDIO_FRAME_DURATION_MS")
	overrideInt(&cfg.Audio.LevelWindow, "LOCALFLOW_AUDIO_LEVEL_WINDOW")
	overrideInt(&cfg.Audio.MaxDurationS, "LOCALFLOW_AUDIO_MAX_DURATION_S")
	overrideString(&cfg.Compression.Mode, "LOCALFLOW_COMPRESSION_MODE")
	overrideString(&cfg.Compression.Command, "LOCALFLOW_COMPRESSION_COMMAND")
	overrideInt(&cfg.Compression.SampleRate, "LOCALFLOW_COMPRESSION_SAMPLE_RATE")
	overrideString(&cfg.STT.Mode, "LOCALFLOW_STT_MODE")
	overrideString(&cfg.STT.Command, "LOCALFLOW_STT_COMMAND")
	overrideString(&cfg.STT.ModelsDir, "LOCALFLOW_STT_MODELS_DIR")
	overrideString(&cfg.STT.Device, "LOCALFLOW_STT_DEVICE")
	overrideString(&cfg.STT.MockText, "LOCALFLOW_STT_MOCK_TEXT")
	overrideString(&cfg.LLM.Mode, "LOCALFLOW_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "LOCALFLOW_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "LOCALFLOW_LLM_COMMAND")
	overrideString(&cfg.LLM.APIKey, "LOCALFLOW_LLM_API_KEY")
	overrideString(&cfg.LLM.DefaultModel, "LOCALFLOW_LLM_DEFAULT_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "LOCALFLOW_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "LOCALFLOW_LLM_TEMPERATURE")
	overrideString(&cfg.LLM.KeepAlive, "LOCALFLOW_LLM_KEEP_ALIVE")
	overrideBool(&cfg.LLM.RequireBackend, "LOCALFLOW_LLM_REQUIRE_BACKEND")
	overrideInt(&cfg.LLM.TimeoutMS, "LOCALFLOW_LLM_TIMEOUT_MS")
	overrideString(&cfg.Desktop.WindowCommand, "LOCALFLOW_DESKTOP_WINDOW_COMMAND")
	overrideString(&cfg.Desktop.ClipboardCommand, "LOCALFLOW_DESKTOP_CLIPBOARD_COMMAND")
	overrideInt(&cfg.Desktop.TimeoutMS, "LOCALFLOW_DESKTOP_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

// Validate reports the first problem found in cfg.
func Validate(cfg Config) error {
	return validate(cfg)
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stderr":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stderr|otlp")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if cfg.Store.ResultsDir == "" {
		return errors.New("store.results_dir must not be empty")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	if cfg.Store.MaxResults < 0 {
		return errors.New("store.max_results must be >= 0")
	}
	switch cfg.Audio.Mode {
	case "mock":
	case "ffmpeg":
		if cfg.Audio.Command == "" {
			return errors.New("audio.command must be set when mode=ffmpeg")
		}
	default:
		return errors.New("audio.mode must be one of ffmpeg|mock")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.FrameDurationMS <= 0 {
		return errors.New("audio.frame_duration_ms must be positive")
	}
	if cfg.Audio.LevelWindow <= 0 {
		return errors.New("audio.level_window must be >= 1")
	}
	if cfg.Audio.MaxDurationS <= 0 {
		return errors.New("audio.max_duration_s must be positive")
	}
	switch cfg.Compression.Mode {
	case "none":
	case "ffmpeg":
		if cfg.Compression.Command == "" {
			return errors.New("compression.command must be set when mode=ffmpeg")
		}
		if cfg.Compression.SampleRate <= 0 {
			return errors.New("compression.sample_rate must be positive")
		}
	default:
		return errors.New("compression.mode must be one of ffmpeg|none")
	}
	switch cfg.STT.Mode {
	case "mock":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|exec")
	}
	switch cfg.LLM.Mode {
	case "mock":
	case "ollama":
		if cfg.LLM.Endpoint == "" {
			return errors.New("llm.endpoint must be set when mode=ollama")
		}
	case "openai":
		if cfg.LLM.APIKey == "" && cfg.LLM.Endpoint == "" {
			return errors.New("llm.api_key or llm.endpoint must be set when mode=openai")
		}
	case "exec":
		if cfg.LLM.Command == "" {
			return errors.New("llm.command must be set when mode=exec")
		}
	default:
		return errors.New("llm.mode must be one of mock|ollama|openai|exec")
	}
	if cfg.LLM.DefaultModel == "" {
		return errors.New("llm.default_model must not be empty")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if cfg.LLM.TimeoutMS <= 0 {
		return errors.New("llm.timeout_ms must be positive")
	}
	if cfg.Desktop.TimeoutMS <= 0 {
		return errors.New("desktop.timeout_ms must be positive")
	}
	return nil
}
