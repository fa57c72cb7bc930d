package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Config captures all options required to run the archiver. It is built once
// at process start and passed by parameter; there is no ambient state.
type Config struct {
	IMAPHost string
	IMAPPort int
	IMAPUser string
	IMAPPass string
	Mailbox  string
	All      bool

	MboxPath string

	OutputDir      string
	ExtractMain    bool
	GenerateIndex  bool
	InjectBackLink bool
	RehostRemote   bool
	FetchTimeout   time.Duration

	DryRun   bool
	LogLevel string
	LogDir   string

	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("imap-host", "", "IMAP server hostname (e.g. imap.gmail.com)")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var, .env supported)")
	flags.String("mailbox", "INBOX", "Mailbox or label to read newsletters from")
	flags.Bool("all", false, "Process every message in the mailbox instead of only unseen ones")
	flags.String("mbox", "", "Read messages from an mbox file instead of IMAP")
	flags.String("output-dir", "newsletters", "Directory archive entries and the index are written to")
	flags.Bool("extract-main", false, "Narrow each newsletter to its main content container (best effort)")
	flags.Bool("no-index", false, "Skip index.html generation")
	flags.Bool("no-back-link", false, "Do not inject the back-to-index banner into entries")
	flags.Bool("no-rehost", false, "Leave remote images at their origin (https-upgraded) instead of downloading them")
	flags.Duration("fetch-timeout", 10*time.Second, "Timeout for a single remote image download")
	flags.Bool("dry-run", false, "Extract and transform without writing any files")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (logs to stdout only when empty)")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")

	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct with
// validation. A .env file in the working directory is loaded first so
// credentials can stay out of shell history.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	_ = godotenv.Load()

	flags := cmd.Flags()

	imapHost, err := flags.GetString("imap-host")
	if err != nil {
		return Config{}, err
	}
	imapPort, err := flags.GetInt("imap-port")
	if err != nil {
		return Config{}, err
	}
	imapUser, err := flags.GetString("imap-user")
	if err != nil {
		return Config{}, err
	}
	imapPass, err := flags.GetString("imap-pass")
	if err != nil {
		return Config{}, err
	}
	mailbox, err := flags.GetString("mailbox")
	if err != nil {
		return Config{}, err
	}
	all, err := flags.GetBool("all")
	if err != nil {
		return Config{}, err
	}
	mboxPath, err := flags.GetString("mbox")
	if err != nil {
		return Config{}, err
	}
	outputDir, err := flags.GetString("output-dir")
	if err != nil {
		return Config{}, err
	}
	extractMain, err := flags.GetBool("extract-main")
	if err != nil {
		return Config{}, err
	}
	noIndex, err := flags.GetBool("no-index")
	if err != nil {
		return Config{}, err
	}
	noBackLink, err := flags.GetBool("no-back-link")
	if err != nil {
		return Config{}, err
	}
	noRehost, err := flags.GetBool("no-rehost")
	if err != nil {
		return Config{}, err
	}
	fetchTimeout, err := flags.GetDuration("fetch-timeout")
	if err != nil {
		return Config{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}
	includeHeader, err := flags.GetStringArray("include-header")
	if err != nil {
		return Config{}, err
	}
	includeBody, err := flags.GetStringArray("include-body")
	if err != nil {
		return Config{}, err
	}
	excludeHeader, err := flags.GetStringArray("exclude-header")
	if err != nil {
		return Config{}, err
	}
	excludeBody, err := flags.GetStringArray("exclude-body")
	if err != nil {
		return Config{}, err
	}

	if imapPass == "" {
		imapPass = os.Getenv("IMAP_PASS")
	}
	if imapUser == "" {
		imapUser = os.Getenv("IMAP_USER")
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		IMAPHost:       imapHost,
		IMAPPort:       imapPort,
		IMAPUser:       imapUser,
		IMAPPass:       imapPass,
		Mailbox:        mailbox,
		All:            all,
		MboxPath:       mboxPath,
		OutputDir:      outputDir,
		ExtractMain:    extractMain,
		GenerateIndex:  !noIndex,
		InjectBackLink: !noBackLink,
		RehostRemote:   !noRehost,
		FetchTimeout:   fetchTimeout,
		DryRun:         dryRun,
		LogLevel:       logLevel,
		LogDir:         logDir,
		IncludeHeader:  includeHeader,
		IncludeBody:    includeBody,
		ExcludeHeader:  excludeHeader,
		ExcludeBody:    excludeBody,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.MboxPath == "" {
		if cfg.IMAPHost == "" {
			return fmt.Errorf("either --mbox or --imap-host is required")
		}
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required (or IMAP_USER env var)")
		}
		if cfg.IMAPPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	} else if cfg.IMAPHost != "" {
		return fmt.Errorf("--mbox and --imap-host are mutually exclusive")
	}

	if cfg.OutputDir == "" {
		return fmt.Errorf("--output-dir must not be empty")
	}
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("--fetch-timeout must be positive")
	}

	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
