// imappart 按部分查看 IMAP 邮箱中的邮件，不下载整封邮件。
//
//	imappart tree 1
//	imappart cat 1 2 --decode > attachment.pdf
//	imappart export 1 2 parts.mbox
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"os"
	"os/signal"

	"github.com/emersion/go-message/charset"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/luhaoyun888/go-imap-part/imapclient"
	"github.com/luhaoyun888/go-imap-part/imappart"
	"github.com/luhaoyun888/go-imap-part/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "imappart",
		Short:         "Inspect and download individual MIME parts of IMAP messages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("addr", "", "IMAP server address host:port (IMAP_ADDR)")
	flags.String("username", "", "IMAP username (IMAP_USERNAME)")
	flags.String("password", "", "IMAP password (IMAP_PASSWORD)")
	flags.Bool("tls", true, "Use implicit TLS (IMAP_TLS)")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (IMAP_INSECURE_SKIP_VERIFY)")
	flags.String("mailbox", "INBOX", "Mailbox to select (IMAP_MAILBOX)")
	flags.Int("fetch-size", 0, "Partial fetch chunk size, 0 for the default, negative to disable (IMAP_FETCH_SIZE)")
	flags.Bool("ignore-bodystructure-size", false, "Read content until the server stops returning data (IMAP_IGNORE_BODYSTRUCTURE_SIZE)")
	flags.Bool("peek", true, "Do not set the \\Seen flag while reading (IMAP_PEEK)")
	flags.String("log-level", "warn", "Logging level: debug, info, warn, error (LOG_LEVEL)")
	flags.Bool("debug-protocol", false, "Write the raw IMAP exchange to stderr")

	rootCmd.AddCommand(newTreeCmd(), newCatCmd(), newExportCmd())
	return rootCmd
}

// loadConfig 加载环境配置，然后用显式设置的标志覆盖。
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	overrides := []struct {
		name string
		fn   func() error
	}{
		{"addr", func() (err error) { cfg.Addr, err = flags.GetString("addr"); return }},
		{"username", func() (err error) { cfg.Username, err = flags.GetString("username"); return }},
		{"password", func() (err error) { cfg.Password, err = flags.GetString("password"); return }},
		{"tls", func() (err error) { cfg.TLS, err = flags.GetBool("tls"); return }},
		{"insecure-skip-verify", func() (err error) { cfg.InsecureSkipVerify, err = flags.GetBool("insecure-skip-verify"); return }},
		{"mailbox", func() (err error) { cfg.Mailbox, err = flags.GetString("mailbox"); return }},
		{"fetch-size", func() (err error) { cfg.Part.FetchSize, err = flags.GetInt("fetch-size"); return }},
		{"ignore-bodystructure-size", func() (err error) {
			cfg.Part.IgnoreBodyStructureSize, err = flags.GetBool("ignore-bodystructure-size")
			return
		}},
		{"peek", func() (err error) { cfg.Peek, err = flags.GetBool("peek"); return }},
		{"log-level", func() (err error) { cfg.LogLevel, err = flags.GetString("log-level"); return }},
	}
	for _, o := range overrides {
		if !flags.Changed(o.name) {
			continue
		}
		if err := o.fn(); err != nil {
			return nil, err
		}
	}

	if cfg.Addr == "" {
		return nil, errors.New("missing IMAP server address (--addr or IMAP_ADDR)")
	}
	if cfg.Username == "" {
		return nil, errors.New("missing IMAP username (--username or IMAP_USERNAME)")
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	zapConfig := zap.NewDevelopmentConfig()
	if lvl > zapcore.DebugLevel {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Encoding = "console"
	}
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	return zapConfig.Build()
}

// session 是一次命令执行期间打开的连接和邮箱。
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	client *imapclient.Client
	mbox   *imappart.Mailbox
}

// openSession 连接服务器、登录并选择配置的邮箱。调用方负责调用 close。
func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	debugProtocol, err := cmd.Flags().GetBool("debug-protocol")
	if err != nil {
		return nil, err
	}
	options := &imapclient.Options{
		TLSConfig:   &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		Insecure:    !cfg.TLS,
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
		ReadOnly:    true,
		Logger:      logger,
		Part:        cfg.Part.Options(),
	}
	if debugProtocol {
		options.DebugWriter = os.Stderr
	}

	client, err := imapclient.Dial(cfg.Addr, options)
	if err != nil {
		return nil, err
	}
	if err := client.Login(cfg.Username, cfg.Password); err != nil {
		client.Close()
		return nil, err
	}
	mbox, err := client.SelectMailbox(ctx, cfg.Mailbox)
	if err != nil {
		client.Close()
		return nil, err
	}
	logger.Info("mailbox selected", zap.String("mailbox", cfg.Mailbox), zap.Uint32("messages", mbox.Len()))

	return &session{cfg: cfg, logger: logger, client: client, mbox: mbox}, nil
}

func (s *session) close() {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("close failed", zap.Error(err))
	}
	_ = s.logger.Sync()
}

func (s *session) message(ctx context.Context, seqNum uint32) (*imappart.Message, error) {
	return s.client.MessageBySeqNum(ctx, s.mbox, seqNum, s.cfg.Peek)
}
