package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port    int    `yaml:"port" json:"port"`
		DataDir string `yaml:"data_dir" json:"data_dir"`
	} `yaml:"app" json:"app"`

	Mailbox struct {
		Enabled      bool   `yaml:"enabled" json:"enabled"`
		IMAPHost     string `yaml:"imap_host" json:"imap_host"`
		IMAPPort     int    `yaml:"imap_port" json:"imap_port"`
		Username     string `yaml:"username" json:"username"`
		Mailbox      string `yaml:"mailbox" json:"mailbox"`
		WindowDays   int    `yaml:"window_days" json:"window_days"`
		MaxMessages  int    `yaml:"max_messages" json:"max_messages"`
		BatchSize    int    `yaml:"batch_size" json:"batch_size"`
		BatchDelayMS int    `yaml:"batch_delay_ms" json:"batch_delay_ms"`
		// mark-read | archive | mark-read-and-archive | delete
		DisposePolicy  string `yaml:"dispose_policy" json:"dispose_policy"`
		ArchiveMailbox string `yaml:"archive_mailbox" json:"archive_mailbox"`
	} `yaml:"mailbox" json:"mailbox"`

	Extractor struct {
		Endpoint       string  `yaml:"endpoint" json:"endpoint"`
		Model          string  `yaml:"model" json:"model"`
		APIKeyEnv      string  `yaml:"api_key_env" json:"api_key_env"`
		TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
		MinRelevance   float64 `yaml:"min_relevance" json:"min_relevance"`
	} `yaml:"extractor" json:"extractor"`

	Pipeline struct {
		IntervalMinutes    int     `yaml:"interval_minutes" json:"interval_minutes"`
		NotifyMinRelevance float64 `yaml:"notify_min_relevance" json:"notify_min_relevance"`
	} `yaml:"pipeline" json:"pipeline"`

	Dedup struct {
		// url | title-company-source
		Prefer string `yaml:"prefer" json:"prefer"`
	} `yaml:"dedup" json:"dedup"`

	Telegram struct {
		Enabled     bool   `yaml:"enabled" json:"enabled"`
		BotTokenEnv string `yaml:"bot_token_env" json:"bot_token_env"`
	} `yaml:"telegram" json:"telegram"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}

// Default returns the config written on first run.
func Default() Config {
	var cfg Config
	cfg.App.Port = 38472
	cfg.App.DataDir = "."
	cfg.Mailbox.IMAPPort = 993
	cfg.Mailbox.Mailbox = "INBOX"
	cfg.Mailbox.WindowDays = 7
	cfg.Mailbox.MaxMessages = 200
	cfg.Mailbox.BatchSize = 10
	cfg.Mailbox.BatchDelayMS = 1500
	cfg.Mailbox.DisposePolicy = "mark-read"
	cfg.Mailbox.ArchiveMailbox = "Archive"
	cfg.Extractor.Endpoint = "https://api.openai.com/v1/chat/completions"
	cfg.Extractor.Model = "gpt-4o-mini"
	cfg.Extractor.APIKeyEnv = "JOBDECK_EXTRACTOR_API_KEY"
	cfg.Extractor.TimeoutSeconds = 45
	cfg.Extractor.MinRelevance = 0.3
	cfg.Pipeline.IntervalMinutes = 60
	cfg.Pipeline.NotifyMinRelevance = 0.7
	cfg.Dedup.Prefer = "url"
	cfg.Telegram.BotTokenEnv = "JOBDECK_TELEGRAM_BOT_TOKEN"
	return cfg
}
