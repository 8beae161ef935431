package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultConfigPath = "/etc/postforge/config.ini"
	configPathEnv     = "POSTFORGE_CONFIG"
)

// VideoProvider is one async video endpoint from [video].
type VideoProvider struct {
	Name      string
	SubmitURL string
	StatusURL string
	APIKey    string
}

type Config struct {
	Hostname      string
	AppEnv        string
	OutputFolder  string
	InputFolder   string
	BaseAppFolder string

	ChunkMaxChars int
	ChunkMinChars int

	Concurrency   int
	TextProvider  string
	TemplatesFile string
	StateFile     string
	Voice         string

	OllamaHostname       string
	OllamaPort           int
	OllamaModel          string
	OllamaAPIKey         string
	OllamaTimeoutSeconds int
	GeminiAPIKey         string
	GeminiModel          string

	ImageProviders []string
	SDAPIURL       string
	ImageScript    string
	ImagePython    string

	VideoProviders      []VideoProvider
	VideoPollInterval   time.Duration
	VideoPollMaxAttempt int
	VideoPollTimeout    time.Duration

	TTSOnnxModel  string
	TTSConfig     string
	TTSVoiceDir   string
	TTSSampleRate int

	AudioEnhancement      string
	AudioDelayMs          float64
	AudioDecay            float64
	AudioMixFactor        float64
	AudioOutputSampleRate int
	AudioBitrate          string
	FFmpeg                string

	DBURL      string
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	RabbitMQHost     string
	RabbitMQPort     int
	RabbitMQUser     string
	RabbitMQPassword string
	RabbitMQVHost    string
	InputQueue       string
	OutputQueue      string
}

// Load reads the file named by POSTFORGE_CONFIG, or the default path.
func Load() (Config, error) {
	configPath := os.Getenv(configPathEnv)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	return LoadFile(configPath)
}

func LoadFile(configPath string) (Config, error) {
	ini, err := readINI(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", configPath, err)
	}

	cfg := Config{}
	cfg.Hostname = ini.get("app", "hostname")
	if cfg.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Hostname = host
		}
	}
	cfg.AppEnv = ini.getDefault("app", "env", "production")
	cfg.OutputFolder = firstNonEmpty(ini.get("app", "output_folder"), ini.get("app", "base_output_folder"))
	cfg.InputFolder = ini.get("app", "input_folder")
	cfg.BaseAppFolder = ini.get("app", "base_app_folder")

	cfg.ChunkMaxChars = ini.getIntDefault("chunker", "max_chars", 3000)
	cfg.ChunkMinChars = ini.getIntDefault("chunker", "min_chars", 200)

	cfg.Concurrency = ini.getIntDefault("pipeline", "concurrency", 0)
	cfg.TextProvider = ini.getDefault("pipeline", "text_provider", "ollama")
	cfg.TemplatesFile = ini.get("pipeline", "templates_file")
	cfg.StateFile = ini.get("pipeline", "state_file")
	if cfg.StateFile == "" && cfg.OutputFolder != "" {
		cfg.StateFile = filepath.Join(cfg.OutputFolder, ".prompt_index")
	}

	cfg.OllamaHostname = firstNonEmpty(
		ini.get("ollama", "hostname"),
		ini.get("ollama", "brain_host"),
	)
	cfg.OllamaPort = ini.getIntDefault("ollama", "port", 11434)
	cfg.OllamaModel = ini.getDefault("ollama", "model", "llama3.2")
	cfg.OllamaAPIKey = firstNonEmpty(ini.get("ollama", "api_key"), os.Getenv("OLLAMA_API_KEY"))
	cfg.OllamaTimeoutSeconds = ini.getIntDefault("ollama", "timeout_seconds", 600)
	cfg.GeminiAPIKey = firstNonEmpty(ini.get("gemini", "api_key"), os.Getenv("GEMINI_API_KEY"))
	cfg.GeminiModel = ini.getDefault("gemini", "model", "gemini-1.5-flash")

	cfg.ImageProviders = ini.getList("image", "providers", []string{"sdapi", "script"})
	cfg.SDAPIURL = ini.get("image", "sdapi_url")
	cfg.ImageScript = ini.get("image", "script")
	if cfg.ImageScript == "" && cfg.BaseAppFolder != "" {
		cfg.ImageScript = filepath.Join(cfg.BaseAppFolder, "imagegeneration", "image-flux.py")
	}
	cfg.ImagePython = firstNonEmpty(ini.get("image", "python"), pythonForProjectVenv(cfg.BaseAppFolder, "imagegeneration"))

	for _, name := range ini.getList("video", "providers", nil) {
		cfg.VideoProviders = append(cfg.VideoProviders, VideoProvider{
			Name:      name,
			SubmitURL: ini.get("video", name+"_submit_url"),
			StatusURL: ini.get("video", name+"_status_url"),
			APIKey:    ini.get("video", name+"_api_key"),
		})
	}
	cfg.VideoPollInterval = time.Duration(ini.getIntDefault("video", "poll_interval_seconds", 5)) * time.Second
	cfg.VideoPollMaxAttempt = ini.getIntDefault("video", "poll_max_attempts", 120)
	cfg.VideoPollTimeout = time.Duration(ini.getIntDefault("video", "poll_timeout_seconds", 0)) * time.Second

	cfg.TTSOnnxModel = ini.get("tts", "onnx_model")
	cfg.TTSConfig = ini.get("tts", "config_file")
	cfg.TTSVoiceDir = ini.get("tts", "voice_dir")
	cfg.Voice = ini.get("tts", "voice")
	cfg.TTSSampleRate = ini.getIntDefault("tts", "sample_rate", 22050)

	cfg.AudioEnhancement = ini.getDefault("audio", "enhancement", "none")
	cfg.AudioDelayMs = ini.getFloatDefault("audio", "delay_ms", 0)
	cfg.AudioDecay = ini.getFloatDefault("audio", "decay", 0)
	cfg.AudioMixFactor = ini.getFloatDefault("audio", "mix_factor", 0)
	cfg.AudioOutputSampleRate = ini.getIntDefault("audio", "output_sample_rate", 0)
	cfg.AudioBitrate = ini.getDefault("audio", "bitrate", "192k")
	cfg.FFmpeg = ini.getDefault("audio", "ffmpeg", "ffmpeg")

	cfg.DBURL = firstNonEmpty(ini.get("db", "url"), ini.get("db", "database_url"))
	cfg.DBHost = ini.get("db", "host")
	cfg.DBPort = ini.getIntDefault("db", "port", 5432)
	cfg.DBName = ini.getDefault("db", "name", "postforge")
	cfg.DBUser = ini.getDefault("db", "user", "postforge")
	cfg.DBPassword = ini.get("db", "password")
	cfg.DBSSLMode = ini.getDefault("db", "sslmode", "prefer")

	cfg.RabbitMQHost = ini.getDefault("rabbitmq", "host", "127.0.0.1")
	cfg.RabbitMQPort = ini.getIntDefault("rabbitmq", "port", 5672)
	cfg.RabbitMQUser = ini.getDefault("rabbitmq", "user", "guest")
	cfg.RabbitMQPassword = ini.getDefault("rabbitmq", "password", "guest")
	cfg.RabbitMQVHost = ini.getDefault("rabbitmq", "vhost", "/")
	cfg.InputQueue = ini.getDefault("rabbitmq", "input_queue", "document_scraped")
	cfg.OutputQueue = ini.getDefault("rabbitmq", "output_queue", "post_generated")

	if cfg.OutputFolder == "" {
		return cfg, errors.New("app.output_folder must be set in config.ini")
	}
	if cfg.ChunkMinChars > cfg.ChunkMaxChars {
		return cfg, fmt.Errorf("chunker.min_chars (%d) exceeds chunker.max_chars (%d)", cfg.ChunkMinChars, cfg.ChunkMaxChars)
	}

	return cfg, nil
}

// DBConfigured reports whether run persistence is enabled.
func (c Config) DBConfigured() bool {
	return c.DBURL != "" || c.DBHost != ""
}

func (c Config) DBConnString() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBUser,
		c.DBPassword,
		c.DBSSLMode,
	)
}

func (c Config) RabbitMQURL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.RabbitMQUser, c.RabbitMQPassword),
		Host:   fmt.Sprintf("%s:%d", c.RabbitMQHost, c.RabbitMQPort),
		Path:   "/" + strings.TrimPrefix(c.RabbitMQVHost, "/"),
	}
	return u.String()
}

type iniData struct {
	sections map[string]map[string]string
}

func readINI(path string) (iniData, error) {
	file, err := os.Open(path)
	if err != nil {
		return iniData{}, err
	}
	defer file.Close()

	data := iniData{sections: map[string]map[string]string{}}
	section := "default"
	data.sections[section] = map[string]string{}

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			section = strings.ToLower(section)
			if section == "" {
				return iniData{}, fmt.Errorf("invalid section header at line %d", lineNo)
			}
			if _, ok := data.sections[section]; !ok {
				data.sections[section] = map[string]string{}
			}
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return iniData{}, fmt.Errorf("invalid line %d: %q", lineNo, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return iniData{}, fmt.Errorf("empty key at line %d", lineNo)
		}
		value = strings.TrimSpace(value)
		value = trimQuotes(value)
		data.sections[section][key] = value
	}
	if err := scanner.Err(); err != nil {
		return iniData{}, err
	}
	return data, nil
}

func trimQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	if value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	if value[0] == '\'' && value[len(value)-1] == '\'' {
		return value[1 : len(value)-1]
	}
	return value
}

func (ini iniData) get(section, key string) string {
	if len(ini.sections) == 0 {
		return ""
	}
	section = strings.ToLower(section)
	key = strings.ToLower(key)
	if section == "" {
		section = "default"
	}
	if values, ok := ini.sections[section]; ok {
		return values[key]
	}
	return ""
}

func (ini iniData) getDefault(section, key, fallback string) string {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	return value
}

func (ini iniData) getIntDefault(section, key string, fallback int) int {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (ini iniData) getFloatDefault(section, key string, fallback float64) float64 {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getList splits a comma separated value, lower-casing each entry.
func (ini iniData) getList(section, key string, fallback []string) []string {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func pythonForProjectVenv(baseAppFolder, project string) string {
	// Expected layout:
	//   /deploy/postforge/current  (baseAppFolder)
	//   /deploy/postforge/venvs/<project>/bin/python
	if baseAppFolder == "" || project == "" {
		return "python"
	}
	baseDeploy := filepath.Dir(baseAppFolder)
	candidate := filepath.Join(baseDeploy, "venvs", project, "bin", "python")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return "python"
}
