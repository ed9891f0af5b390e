package core

import (
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Storage engines
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
)

type (
	StorageConfig struct {
		Engine   string
		Dir      string // file engine
		URL      string // postgres DSN | mongo URI
		Database string // mongo database name
		Timeout  time.Duration
	}

	CompilationConfig struct {
		AutoApprove            bool
		AutoCalculatePositions bool
		AutoGeneratePDFs       bool
		NotifyOnCompletion     bool
		Delay                  time.Duration
		ScanInterval           time.Duration
		StaleAfterScans        int
	}

	Config struct {
		Env              string
		Build            string
		AppName          string
		Debug            bool
		TestMode         bool
		WorkDir          string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail string
		AdminEmails      []string

		Storage       StorageConfig
		GradingPolicy string
		Compilation   CompilationConfig
		// AccessThreshold is the share (0..1) of the required fees a student must have paid
		// before parents may see published results.
		AccessThreshold float64
	}
)

// NewConfig loads the configuration from defaults, an optional `config/.env.<env>` file and
// the environment (prefixed by the upper-cased env, e.g. `DEV_COMPILATION_AUTOAPPROVE`).
func NewConfig() (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Masomo Results")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "Masomo <noreply@localhost>")
	v.SetDefault("adminEmails", []string{})
	v.SetDefault("storage.engine", StorageMemory)
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.url", "")
	v.SetDefault("storage.database", "masomo")
	v.SetDefault("storage.timeout", 10*time.Second)
	v.SetDefault("grading.policy", "raw")
	v.SetDefault("compilation.autoApprove", true)
	v.SetDefault("compilation.autoCalculatePositions", true)
	v.SetDefault("compilation.autoGeneratePDFs", false)
	v.SetDefault("compilation.notifyOnCompletion", true)
	v.SetDefault("compilation.delayMinutes", 5.0)
	v.SetDefault("compilation.scanInterval", 30*time.Second)
	v.SetDefault("compilation.staleAfterScans", 10)
	v.SetDefault("access.threshold", 1.0)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          wd,
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		AdminEmails:      v.GetStringSlice("adminEmails"),
		Storage: StorageConfig{
			Engine:   CleanString(v.GetString("storage.engine"), true),
			Dir:      v.GetString("storage.dir"),
			URL:      v.GetString("storage.url"),
			Database: v.GetString("storage.database"),
			Timeout:  v.GetDuration("storage.timeout"),
		},
		GradingPolicy: CleanString(v.GetString("grading.policy"), true),
		Compilation: CompilationConfig{
			AutoApprove:            v.GetBool("compilation.autoApprove"),
			AutoCalculatePositions: v.GetBool("compilation.autoCalculatePositions"),
			AutoGeneratePDFs:       v.GetBool("compilation.autoGeneratePDFs"),
			NotifyOnCompletion:     v.GetBool("compilation.notifyOnCompletion"),
			Delay:                  time.Duration(v.GetFloat64("compilation.delayMinutes") * float64(time.Minute)),
			ScanInterval:           v.GetDuration("compilation.scanInterval"),
			StaleAfterScans:        v.GetInt("compilation.staleAfterScans"),
		},
		AccessThreshold: v.GetFloat64("access.threshold"),
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks the values that cannot be defaulted safely.
func (c *Config) Validate() error {
	var flds []FieldError
	switch c.Storage.Engine {
	case StorageMemory, StorageFile:
	case StoragePostgres, StorageMongo:
		if c.Storage.URL == "" {
			flds = append(flds, FieldError{Field: "storage.url", Error: "required for " + c.Storage.Engine})
		}
	default:
		flds = append(flds, FieldError{Field: "storage.engine", Error: "unknown engine " + c.Storage.Engine})
	}
	if c.GradingPolicy != "raw" && c.GradingPolicy != "weighted" {
		flds = append(flds, FieldError{Field: "grading.policy", Error: "must be one of raw, weighted"})
	}
	if c.Compilation.Delay < 0 {
		flds = append(flds, FieldError{Field: "compilation.delayMinutes", Error: "cannot be negative"})
	}
	if c.Compilation.ScanInterval <= 0 {
		flds = append(flds, FieldError{Field: "compilation.scanInterval", Error: "must be positive"})
	}
	if c.Compilation.StaleAfterScans < 1 {
		flds = append(flds, FieldError{Field: "compilation.staleAfterScans", Error: "must be at least 1"})
	}
	if c.AccessThreshold < 0 || c.AccessThreshold > 1 {
		flds = append(flds, FieldError{Field: "access.threshold", Error: "must be between 0 and 1"})
	}
	if _, err := mail.ParseAddress(c.DefaultFromEmail); err != nil {
		flds = append(flds, FieldError{Field: "defaultFromEmail", Error: err.Error()})
	}
	if len(flds) > 0 {
		return NewValidationError(errors.New("invalid configuration"), flds...)
	}
	return nil
}

// FromAddress returns the parsed DefaultFromEmail.
func (c *Config) FromAddress() mail.Address {
	addr, err := mail.ParseAddress(c.DefaultFromEmail)
	if err != nil {
		return mail.Address{Address: c.DefaultFromEmail}
	}
	return *addr
}

// AdminAddresses returns the parsable AdminEmails.
func (c *Config) AdminAddresses() []mail.Address {
	addrs := make([]mail.Address, 0, len(c.AdminEmails))
	for _, e := range c.AdminEmails {
		if addr, err := mail.ParseAddress(CleanString(e)); err == nil {
			addrs = append(addrs, *addr)
		}
	}
	return addrs
}
