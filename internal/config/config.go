// Package config 从环境变量和可选的 .env 文件加载命令行工具的配置。
package config

import (
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/luhaoyun888/go-imap-part/imappart"
)

// Config 是 imappart 命令的配置。命令行标志会覆盖这里的值。
type Config struct {
	Addr               string `env:"IMAP_ADDR"`
	Username           string `env:"IMAP_USERNAME"`
	Password           string `env:"IMAP_PASSWORD"`
	TLS                bool   `env:"IMAP_TLS" envDefault:"true"`
	InsecureSkipVerify bool   `env:"IMAP_INSECURE_SKIP_VERIFY"`
	Mailbox            string `env:"IMAP_MAILBOX" envDefault:"INBOX"`
	Peek               bool   `env:"IMAP_PEEK" envDefault:"true"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"warn"`

	Part PartConfig
}

// PartConfig 对应 imappart.Options 中可以从环境变量设置的部分。
type PartConfig struct {
	FetchSize               int  `env:"IMAP_FETCH_SIZE"`
	IgnoreBodyStructureSize bool `env:"IMAP_IGNORE_BODYSTRUCTURE_SIZE"`
	DecodeFileName          bool `env:"IMAP_DECODE_FILENAME" envDefault:"true"`
}

// Options 把配置转换为 imappart.Options。Logger 和 WordDecoder 由调用方设置。
func (cfg *PartConfig) Options() *imappart.Options {
	return &imappart.Options{
		FetchSize:               cfg.FetchSize,
		IgnoreBodyStructureSize: cfg.IgnoreBodyStructureSize,
		DecodeFileName:          cfg.DecodeFileName,
	}
}

// Load 读取 files 指定的 .env 文件（默认是当前目录下的 .env），然后解析环境变量。
//
// .env 文件不存在不是错误。已经设置的环境变量不会被 .env 覆盖。
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, name := range files {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(err, "config: load %v", name)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse environment")
	}
	return cfg, nil
}
