package global

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	yaml "gopkg.in/yaml.v3"
)

var (
	// CmonConf the loaded configuration
	CmonConf Config

	// AppName name to use for files and directories
	AppName = "cmon"

	// AppEtcPath for system wide configuration files
	AppEtcPath = filepath.Join("/etc", AppName)

	// DefaultConfigName config filename
	DefaultConfigName = "cmon.yml"

	// DefaultEnvFile dotenv file loaded into the environment when present
	DefaultEnvFile = ".env"

	// ConfigFilePriority config file locations, first existing wins
	ConfigFilePriority = defaultConfigFilePriority()

	// ValidRefreshIntervals the exporter scrape cadences the dashboard supports
	ValidRefreshIntervals = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}
)

// Defaults
var (
	DefaultCephURL         = "http://localhost:9283/metrics"
	DefaultRefreshInterval = 15 * time.Second
	DefaultMaxFailures     = 6
	DefaultMetricsAddr     = "127.0.0.1:9310"
	DefaultLogOutputs      = []string{"cmon.log"}
	DefaultAllowedHosts    = []string{"127.0.0.1", "localhost"}
)

// Parser names accepted by runtime.parser.
const (
	ParserPositional = "positional"
	ParserStrict     = "strict"
)

// Integrity policies accepted by runtime.integrity.
const (
	IntegrityPropagate = "propagate"
	IntegritySkip      = "skip"
)

// Environment variable overrides.
const (
	EnvCephURL         = "CMON_CEPH_URL"
	EnvPrometheusURL   = "CMON_PROMETHEUS_URL"
	EnvRefreshInterval = "CMON_REFRESH_INTERVAL"
	EnvLogLevel        = "CMON_LOG_LEVEL"
)

func defaultConfigFilePriority() []string {
	files := []string{DefaultConfigName}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, DefaultConfigName))
	}

	return append(files, filepath.Join(AppEtcPath, DefaultConfigName))
}

type RuntimeConfig struct {
	// MaxFailures consecutive failed scrapes before giving up.
	MaxFailures   int           `yaml:"max_failures"`
	ScrapeTimeout time.Duration `yaml:"scrape_timeout"`
	Parser        string        `yaml:"parser"`
	Integrity     string        `yaml:"integrity"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	Log           LogConfig     `yaml:"logging"`

	// AllowedHosts host header values accepted by the HTTP server.
	AllowedHosts                []string `yaml:"allowed_hosts"`
	HostHeaderValidationEnabled *bool    `yaml:"host_header_validation_enabled"`
}

type PanelConfig struct {
	IOLoad bool `yaml:"ioload"`
	Alerts bool `yaml:"alerts"`
	Pools  bool `yaml:"pools"`
	RBDs   bool `yaml:"rbds"`
	RGWs   bool `yaml:"rgws"`
}

type Config struct {
	CephURL         string        `yaml:"ceph_url"`
	PrometheusURL   string        `yaml:"prometheus_url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Runtime         RuntimeConfig `yaml:"runtime"`
	Panels          PanelConfig   `yaml:"panels"`
}

type LogConfig struct {
	Lvl     string   `yaml:"level"`
	Outputs []string `yaml:"outputs"`
}

var zapLevelMapper = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"dpanic": zapcore.DPanicLevel,
	"panic":  zapcore.PanicLevel,
	"fatal":  zapcore.FatalLevel,
}

func (l LogConfig) Level() zapcore.Level {
	return zapLevelMapper[l.Lvl]
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() Config {
	return Config{
		CephURL:         DefaultCephURL,
		RefreshInterval: DefaultRefreshInterval,
		Runtime: RuntimeConfig{
			MaxFailures: DefaultMaxFailures,
			Parser:      ParserPositional,
			Integrity:   IntegritySkip,
			MetricsAddr: DefaultMetricsAddr,
			Log:         LogConfig{Lvl: "info", Outputs: DefaultLogOutputs},

			AllowedHosts: DefaultAllowedHosts,
		},
	}
}

// LoadConfig builds CmonConf from defaults, the first config file found,
// the .env file, CMON_* environment variables and finally overrides,
// which is how command-line flags are applied. The result is validated.
func LoadConfig(overrides ...func(*Config)) error {
	conf := DefaultConfig()

	if err := loadConfigFile(&conf); err != nil {
		return err
	}

	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "invalid env file %s", DefaultEnvFile)
	}

	if err := applyEnv(&conf); err != nil {
		return err
	}

	for _, o := range overrides {
		o(&conf)
	}

	if conf.Runtime.HostHeaderValidationEnabled == nil {
		enabled := true
		conf.Runtime.HostHeaderValidationEnabled = &enabled
	}

	if conf.Runtime.ScrapeTimeout == 0 {
		conf.Runtime.ScrapeTimeout = conf.RefreshInterval
	}

	if err := conf.Validate(); err != nil {
		return err
	}

	if err := createLogFolders(conf.Runtime.Log.Outputs); err != nil {
		return err
	}
	CmonConf = conf

	return nil
}

func loadConfigFile(conf *Config) error {
	for _, fn := range ConfigFilePriority {
		content, err := os.ReadFile(fn)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "unable to read config file %s", fn)
		}

		if err := yaml.Unmarshal(content, conf); err != nil {
			return errors.Wrapf(err, "invalid yaml in %s", fn)
		}

		return nil
	}

	return nil
}

func applyEnv(conf *Config) error {
	if v := os.Getenv(EnvCephURL); v != "" {
		conf.CephURL = v
	}
	if v := os.Getenv(EnvPrometheusURL); v != "" {
		conf.PrometheusURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		conf.Runtime.Log.Lvl = strings.ToLower(v)
	}
	if v := os.Getenv(EnvRefreshInterval); v != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", EnvRefreshInterval)
		}
		conf.RefreshInterval = d
	}

	return nil
}

// ParseInterval accepts a duration ("15s") or a bare number of seconds ("15").
func ParseInterval(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	return time.ParseDuration(v)
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.CephURL == "" {
		return errors.New("ceph_url is empty. Export env var CMON_CEPH_URL=<url> or use the ceph_url config")
	}

	valid := false
	for _, d := range ValidRefreshIntervals {
		if c.RefreshInterval == d {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("refresh_interval %s is not supported, must be one of %v", c.RefreshInterval, ValidRefreshIntervals)
	}

	if c.Runtime.MaxFailures < 1 {
		return fmt.Errorf("max_failures must be at least 1, got %d", c.Runtime.MaxFailures)
	}

	if c.Runtime.ScrapeTimeout < 0 || c.Runtime.ScrapeTimeout > c.RefreshInterval {
		return fmt.Errorf("scrape_timeout %s must be between 0 and refresh_interval", c.Runtime.ScrapeTimeout)
	}

	switch c.Runtime.Parser {
	case ParserPositional, ParserStrict:
	default:
		return fmt.Errorf("unknown parser %q", c.Runtime.Parser)
	}

	switch c.Runtime.Integrity {
	case IntegrityPropagate, IntegritySkip:
	default:
		return fmt.Errorf("unknown integrity policy %q", c.Runtime.Integrity)
	}

	if _, ok := zapLevelMapper[c.Runtime.Log.Lvl]; !ok {
		return fmt.Errorf("unknown log level %q", c.Runtime.Log.Lvl)
	}

	return nil
}

func createLogFolders(outputs []string) error {
	for _, logPath := range outputs {
		if logPath == "stdout" || logPath == "stderr" {
			continue
		}
		if strings.HasSuffix(logPath, "/") {
			return fmt.Errorf("invalid log output path ending with '/': %s", logPath)
		}
		pathSplit := strings.Split(logPath, "/")
		if len(pathSplit) == 1 {
			continue
		}
		folder := strings.Join(pathSplit[:len(pathSplit)-1], "/")
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return err
		}
	}

	return nil
}
