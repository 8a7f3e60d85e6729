package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config representa a configuração do draftmail
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	IMAP      IMAPConfig      `mapstructure:"imap"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig representa a configuração do banco de dados
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // "sqlite" ou "postgres"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"` // Para SQLite
}

// HTTPConfig representa a configuração da API HTTP
type HTTPConfig struct {
	Address        string   `mapstructure:"address"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SMTPConfig representa a configuração do servidor SMTP de entrada
type SMTPConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Address         string `mapstructure:"address"`
	Port            int    `mapstructure:"port"`
	Domain          string `mapstructure:"domain"`
	MaxMessageBytes int64  `mapstructure:"max_message_bytes"`
	MaxRecipients   int    `mapstructure:"max_recipients"`
}

// IMAPConfig representa a configuração do servidor IMAP de rascunhos
type IMAPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// GeneratorConfig representa a configuração do gerador de rascunhos
type GeneratorConfig struct {
	Backend     string  `mapstructure:"backend"` // "template" ou "genai"
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float32 `mapstructure:"temperature"`
}

// LogConfig representa a configuração de logs
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// EnvPrefix é o prefixo das variáveis de ambiente que sobrescrevem o arquivo
const EnvPrefix = "DRAFTMAIL"

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", filepath.Join("data", "draftmail.db"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "draftmail")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("http.address", "127.0.0.1")
	v.SetDefault("http.port", 3001)
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.address", "127.0.0.1")
	v.SetDefault("smtp.port", 2525)
	v.SetDefault("smtp.domain", "localhost")
	v.SetDefault("smtp.max_message_bytes", 1024*1024)
	v.SetDefault("smtp.max_recipients", 50)

	v.SetDefault("imap.enabled", false)
	v.SetDefault("imap.address", "127.0.0.1")
	v.SetDefault("imap.port", 1143)
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")

	v.SetDefault("generator.backend", "template")
	v.SetDefault("generator.model", "gemini-2.0-flash")
	v.SetDefault("generator.api_key", "")
	v.SetDefault("generator.temperature", 0.7)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig carrega configurações do arquivo YAML e das variáveis de ambiente.
// Com configPath vazio, usa config.yaml do diretório atual se existir.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := configPath != ""
	if !explicit {
		dir, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("erro ao ler arquivo de configuração: %w", err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("erro ao abrir arquivo de configuração: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("erro ao processar configuração: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifica combinações inválidas de configuração
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("tipo de banco de dados não suportado: %s", c.Database.Type)
	}

	switch c.Generator.Backend {
	case "template":
	case "genai":
		if c.Generator.APIKey == "" {
			return fmt.Errorf("generator.api_key é obrigatório para o backend genai")
		}
	default:
		return fmt.Errorf("backend de geração não suportado: %s", c.Generator.Backend)
	}

	return nil
}

// HTTPAddr retorna o endereço de escuta da API
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Address, c.HTTP.Port)
}

// SMTPAddr retorna o endereço de escuta do SMTP
func (c *Config) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", c.SMTP.Address, c.SMTP.Port)
}

// IMAPAddr retorna o endereço de escuta do IMAP
func (c *Config) IMAPAddr() string {
	return fmt.Sprintf("%s:%d", c.IMAP.Address, c.IMAP.Port)
}
