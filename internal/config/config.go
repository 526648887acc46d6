package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"ticketwatch/pkg/domain"
	"ticketwatch/pkg/serrors"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config represents the application configuration. It is resolved once at
// startup and treated as read-only afterwards.
type Config struct {
	// Environment selects the log encoding (development or production).
	Environment string `env:"ENVIRONMENT" env-default:"production" yaml:"environment" env-description:"development (console logs) or production (JSON logs)"` //nolint: lll

	// LogDebug enables debug level logging.
	LogDebug Flag `env:"LOG_DEBUG" env-default:"no" yaml:"logDebug" env-description:"yes to log debug messages"`
	// LogFile is an optional file that receives a copy of the logs.
	LogFile string `env:"LOG_FILE" yaml:"logFile" env-description:"path of an additional log file"`

	// Target describes the monitored page and its region of interest.
	Target struct {
		// URL is the page to poll.
		URL string `env:"TICKET_URL" yaml:"url" env-description:"URL of the page to watch (mandatory)"`
		// RegionSelector locates the region of interest.
		RegionSelector string `env:"REGION_SELECTOR" env-default:"#page_outer" yaml:"regionSelector" env-description:"CSS selector of the region of interest"` //nolint: lll
		// VolatileAttributes are stripped from every element of the region.
		VolatileAttributes []string `env:"VOLATILE_ATTRIBUTES" env-separator:"," env-default:"data-refresh-id" yaml:"volatileAttributes" env-description:"comma separated attributes that change on every load"` //nolint: lll
		// VolatileSelectors are removed from the region together with their subtree.
		VolatileSelectors []string `env:"VOLATILE_SELECTORS" env-separator:"," yaml:"volatileSelectors" env-description:"comma separated selectors removed before comparison"` //nolint: lll
		// FetchTimeout bounds a single page fetch.
		FetchTimeout time.Duration `env:"FETCH_TIMEOUT" env-default:"30s" yaml:"fetchTimeout" env-description:"timeout of one page fetch"`
		// UserAgent is sent with every fetch.
		UserAgent string `env:"FETCH_USER_AGENT" env-default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36" yaml:"userAgent"` //nolint: lll
		// MaxBodyBytes caps the size of a fetched page.
		MaxBodyBytes int64 `env:"FETCH_MAX_BYTES" env-default:"10485760" yaml:"maxBodyBytes"`
	} `yaml:"target"`

	// Polling controls the loop timing.
	Polling struct {
		// IntervalSeconds is the target period between cycle starts.
		IntervalSeconds int `env:"POLLING_INTERVAL" yaml:"intervalSeconds" env-description:"seconds between checks, integer >= 1 (mandatory)"` //nolint: lll
		// MinDelay is slept when a cycle took longer than the interval.
		MinDelay time.Duration `env:"POLLING_MIN_DELAY" env-default:"11s" yaml:"minDelay" env-description:"sleep used when a check overran the interval"` //nolint: lll
		// DispatchTimeout bounds a single channel send.
		DispatchTimeout time.Duration `env:"DISPATCH_TIMEOUT" env-default:"30s" yaml:"dispatchTimeout"`
	} `yaml:"polling"`

	// Email configures the SMTP channel.
	Email struct {
		Enabled  Flag          `env:"EMAIL_NOTIFICATIONS" env-default:"no" yaml:"enabled" env-description:"yes to send email notifications"` //nolint: lll
		Host     string        `env:"SMTP_HOST" env-default:"smtp.gmail.com" yaml:"host"`
		Port     int           `env:"SMTP_PORT" env-default:"587" yaml:"port"`
		From     string        `env:"SMTP_FROMADDR" yaml:"from" env-description:"sender address"`
		To       []string      `env:"SMTP_TOADDRS" env-separator:"," yaml:"to" env-description:"comma separated recipient addresses"`
		Username string        `env:"SMTP_GMAIL_USERNAME" yaml:"username" env-description:"SMTP username"`
		Password string        `env:"SMTP_GMAIL_PASSWORD" yaml:"password" env-description:"SMTP password"`
		Timeout  time.Duration `env:"SMTP_TIMEOUT" env-default:"10s" yaml:"timeout"`
	} `yaml:"email"`

	// SMS configures the Twilio channel.
	SMS struct {
		Enabled    Flag          `env:"SMS_NOTIFICATIONS" env-default:"no" yaml:"enabled" env-description:"yes to send SMS notifications"` //nolint: lll
		AccountSID string        `env:"TWILIO_ACCTSID" yaml:"accountSid" env-description:"Twilio account SID"`
		AuthToken  string        `env:"TWILIO_ACCTTOKEN" yaml:"authToken" env-description:"Twilio auth token"`
		From       string        `env:"TWILIO_NUMBER" yaml:"from" env-description:"Twilio sender number"`
		To         []string      `env:"SMS_TOADDRS" env-separator:"," yaml:"to" env-description:"comma separated recipient numbers"`
		Timeout    time.Duration `env:"TWILIO_TIMEOUT" env-default:"15s" yaml:"timeout"`
	} `yaml:"sms"`

	// Capture configures evidence screenshots.
	Capture struct {
		Enabled    Flag          `env:"CAPTURE_ENABLED" env-default:"yes" yaml:"enabled" env-description:"yes to attach a screenshot of the region"` //nolint: lll
		Path       string        `env:"CAPTURE_PATH" env-default:"tickets_page.png" yaml:"path"`
		BrowserURL string        `env:"CAPTURE_BROWSER_URL" yaml:"browserUrl" env-description:"DevTools URL of a running browser, empty to launch one"` //nolint: lll
		Stealth    Flag          `env:"CAPTURE_STEALTH" env-default:"no" yaml:"stealth"`
		Timeout    time.Duration `env:"CAPTURE_TIMEOUT" env-default:"45s" yaml:"timeout"`
	} `yaml:"capture"`

	// HTTP configures the status server. An empty Addr disables it.
	HTTP struct {
		Addr              string        `env:"HTTP_ADDR" yaml:"addr" env-description:"listen address of the status server, empty to disable"` //nolint: lll
		ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"10s" yaml:"readTimeout"`
		ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" env-default:"5s" yaml:"readHeaderTimeout"`
		WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"1m" yaml:"writeTimeout"`
		IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"2m" yaml:"idleTimeout"`
		MetricsPath       string        `env:"HTTP_METRICS_PATH" env-default:"/metrics" yaml:"metricsPath"`
	} `yaml:"http"`

	// GracefulShutdownTimeout bounds the status server shutdown.
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"10s" yaml:"gracefulShutdownTimeout"` //nolint: lll
}

// Overrides carries command line flags that take precedence over the
// environment.
type Overrides struct {
	Debug   bool
	Email   bool
	SMS     bool
	LogFile string
}

// Load reads a .env file when present, then fills a Config from configPath
// (if not empty) and the process environment. The result is not validated.
func Load(configPath string) (*Config, error) {
	// a missing .env is the normal case in containers
	_ = godotenv.Load()

	var cfg Config
	var err error
	if configPath != "" {
		err = cleanenv.ReadConfig(configPath, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrConfig, err, "could not read config")
	}

	cfg.normalize()

	return &cfg, nil
}

// Describe returns the list of recognized environment variables.
func Describe() (string, error) {
	var cfg Config
	s, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return "", fmt.Errorf("could not describe config: %w", err)
	}

	return s, nil
}

// Apply switches on whatever the command line asked for.
func (c *Config) Apply(o Overrides) {
	if o.Debug {
		c.LogDebug = FlagYes
	}
	if o.Email {
		c.Email.Enabled = FlagYes
	}
	if o.SMS {
		c.SMS.Enabled = FlagYes
	}
	if o.LogFile != "" {
		c.LogFile = o.LogFile
	}
}

// Validate reports every missing or invalid option at once. The returned
// error is of kind serrors.ErrConfig.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Target.URL == "" {
		fail("TICKET_URL is not set")
	} else if u, err := url.ParseRequestURI(c.Target.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		fail("TICKET_URL %q is not an http(s) URL", c.Target.URL)
	}
	if c.Polling.IntervalSeconds < 1 {
		fail("POLLING_INTERVAL must be an integer >= 1, got %d", c.Polling.IntervalSeconds)
	}
	if c.Polling.MinDelay <= 0 {
		fail("POLLING_MIN_DELAY must be positive")
	}
	if c.Target.RegionSelector == "" {
		fail("REGION_SELECTOR is empty")
	}

	if c.Email.Enabled.Bool() {
		required(&errs, "SMTP_FROMADDR", c.Email.From)
		required(&errs, "SMTP_GMAIL_USERNAME", c.Email.Username)
		required(&errs, "SMTP_GMAIL_PASSWORD", c.Email.Password)
		required(&errs, "SMTP_HOST", c.Email.Host)
		if len(c.Email.To) == 0 {
			fail("SMTP_TOADDRS is not set")
		}
	}

	if c.SMS.Enabled.Bool() {
		required(&errs, "TWILIO_ACCTSID", c.SMS.AccountSID)
		required(&errs, "TWILIO_ACCTTOKEN", c.SMS.AuthToken)
		required(&errs, "TWILIO_NUMBER", c.SMS.From)
		if len(c.SMS.To) == 0 {
			fail("SMS_TOADDRS is not set")
		}
	}

	if len(errs) > 0 {
		return serrors.Wrap(serrors.ErrConfig, errors.Join(errs...), "invalid config")
	}

	return nil
}

// Interval returns the polling interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Polling.IntervalSeconds) * time.Second
}

// Channels returns the enabled notification channels.
func (c *Config) Channels() []domain.ChannelKind {
	var kinds []domain.ChannelKind
	if c.Email.Enabled.Bool() {
		kinds = append(kinds, domain.ChannelEmail)
	}
	if c.SMS.Enabled.Bool() {
		kinds = append(kinds, domain.ChannelSMS)
	}

	return kinds
}

func required(errs *[]error, name, value string) {
	if value == "" {
		*errs = append(*errs, fmt.Errorf("%s is not set", name))
	}
}

// normalize trims list entries such as "a@x.io, b@x.io".
func (c *Config) normalize() {
	c.Email.To = trimList(c.Email.To)
	c.SMS.To = trimList(c.SMS.To)
	c.Target.VolatileAttributes = trimList(c.Target.VolatileAttributes)
	c.Target.VolatileSelectors = trimList(c.Target.VolatileSelectors)
	c.Target.URL = strings.TrimSpace(c.Target.URL)
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	return out
}
