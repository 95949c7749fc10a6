// Package config holds the run configuration: defaults, the optional JSON
// file and validation. Command-line overrides are layered on the same
// viper instance by the CLI.
package config

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jmgilman/go/errors"
	"github.com/spf13/viper"

	"github.com/blurfx/unnest/internal/archive"
	"github.com/blurfx/unnest/internal/formats"
	"github.com/blurfx/unnest/internal/nested"
	"github.com/blurfx/unnest/internal/walker"
)

// Config keys.
const (
	KeyBaseDir       = "base_dir"
	KeyDryRun        = "dry_run"
	KeyVerbose       = "verbose"
	KeyLogFile       = "log_file"
	KeyParallel      = "parallel_processing"
	KeyMaxWorkers    = "max_workers"
	KeyDeleteAfter   = "delete_after_extract"
	KeyVerify        = "verify_integrity"
	KeyProcessNested = "process_nested"
	KeyMaxDepth      = "max_depth"
	KeyVerifyNested  = "verify_nested"
	KeyPassword      = "password"
	KeySkipExisting  = "skip_existing"
	KeyOverwrite     = "overwrite"
	KeyEnableZip     = "enable_zip"
	KeyEnableRar     = "enable_rar"
	KeyEnable7z      = "enable_7z"
	KeyEnableTar     = "enable_tar"
	KeyEnableTarGz   = "enable_tar_gz"
	KeyEnableTarBz2  = "enable_tar_bz2"
	KeyEnableTarXz   = "enable_tar_xz"
	KeyEnableTarZst  = "enable_tar_zst"
	KeyStrictMembers = "strict_members"
	KeyNameEncoding  = "name_encoding"
	KeyRarTool       = "rar_tool"
)

// Config is the full set of run settings.
type Config struct {
	BaseDir string `mapstructure:"base_dir" json:"base_dir"`
	DryRun  bool   `mapstructure:"dry_run" json:"dry_run"`
	Verbose bool   `mapstructure:"verbose" json:"verbose"`
	LogFile string `mapstructure:"log_file" json:"log_file"`

	ParallelProcessing bool `mapstructure:"parallel_processing" json:"parallel_processing"`
	MaxWorkers         int  `mapstructure:"max_workers" json:"max_workers"`
	DeleteAfterExtract bool `mapstructure:"delete_after_extract" json:"delete_after_extract"`
	VerifyIntegrity    bool `mapstructure:"verify_integrity" json:"verify_integrity"`

	ProcessNested bool `mapstructure:"process_nested" json:"process_nested"`
	MaxDepth      int  `mapstructure:"max_depth" json:"max_depth"`
	// VerifyNested is accepted for older config files. Nested archives are
	// verified like any other when VerifyIntegrity is set.
	VerifyNested bool `mapstructure:"verify_nested" json:"verify_nested"`

	Password     string `mapstructure:"password" json:"password"`
	SkipExisting bool   `mapstructure:"skip_existing" json:"skip_existing"`
	Overwrite    bool   `mapstructure:"overwrite" json:"overwrite"`

	EnableZip    bool `mapstructure:"enable_zip" json:"enable_zip"`
	EnableRar    bool `mapstructure:"enable_rar" json:"enable_rar"`
	Enable7z     bool `mapstructure:"enable_7z" json:"enable_7z"`
	EnableTar    bool `mapstructure:"enable_tar" json:"enable_tar"`
	EnableTarGz  bool `mapstructure:"enable_tar_gz" json:"enable_tar_gz"`
	EnableTarBz2 bool `mapstructure:"enable_tar_bz2" json:"enable_tar_bz2"`
	EnableTarXz  bool `mapstructure:"enable_tar_xz" json:"enable_tar_xz"`
	EnableTarZst bool `mapstructure:"enable_tar_zst" json:"enable_tar_zst"`

	StrictMembers bool   `mapstructure:"strict_members" json:"strict_members"`
	NameEncoding  string `mapstructure:"name_encoding" json:"name_encoding"`
	RarTool       string `mapstructure:"rar_tool" json:"rar_tool"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		MaxWorkers:      walker.DefaultMaxWorkers,
		VerifyIntegrity: true,
		MaxDepth:        nested.DefaultMaxDepth,
		VerifyNested:    true,
		SkipExisting:    true,
		EnableZip:       true,
		EnableRar:       true,
		Enable7z:        true,
		EnableTar:       true,
		EnableTarGz:     true,
		EnableTarBz2:    true,
		EnableTarXz:     true,
		EnableTarZst:    true,
		NameEncoding:    archive.DefaultNameEncoding,
		RarTool:         formats.DefaultRarTool,
	}
}

// NewViper returns a viper instance seeded with the defaults.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	defaults := map[string]any{
		KeyBaseDir:       d.BaseDir,
		KeyDryRun:        d.DryRun,
		KeyVerbose:       d.Verbose,
		KeyLogFile:       d.LogFile,
		KeyParallel:      d.ParallelProcessing,
		KeyMaxWorkers:    d.MaxWorkers,
		KeyDeleteAfter:   d.DeleteAfterExtract,
		KeyVerify:        d.VerifyIntegrity,
		KeyProcessNested: d.ProcessNested,
		KeyMaxDepth:      d.MaxDepth,
		KeyVerifyNested:  d.VerifyNested,
		KeyPassword:      d.Password,
		KeySkipExisting:  d.SkipExisting,
		KeyOverwrite:     d.Overwrite,
		KeyEnableZip:     d.EnableZip,
		KeyEnableRar:     d.EnableRar,
		KeyEnable7z:      d.Enable7z,
		KeyEnableTar:     d.EnableTar,
		KeyEnableTarGz:   d.EnableTarGz,
		KeyEnableTarBz2:  d.EnableTarBz2,
		KeyEnableTarXz:   d.EnableTarXz,
		KeyEnableTarZst:  d.EnableTarZst,
		KeyStrictMembers: d.StrictMembers,
		KeyNameEncoding:  d.NameEncoding,
		KeyRarTool:       d.RarTool,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// ReadFile merges the JSON config file at path into v.
func ReadFile(v *viper.Viper, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return errors.WithContext(
			errors.Newf(errors.CodeNotFound, "config file not found: %s", path),
			"path", path,
		)
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, errors.CodeInvalidConfig, "invalid configuration file %s", path)
	}
	return nil
}

// Decode turns v into a Config. Keys that do not name a setting are
// rejected.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.CodeInvalidConfig, "invalid configuration")
	}
	return cfg, nil
}

// Load returns the defaults merged with the JSON file at path. An empty
// path yields the defaults.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		if err := ReadFile(v, path); err != nil {
			return Config{}, err
		}
	}
	return Decode(v)
}

// Validate reports the first setting that would make a run meaningless.
func (c Config) Validate() error {
	if c.MaxWorkers < 1 {
		return errors.New(errors.CodeInvalidConfig, "max_workers must be at least 1")
	}
	if c.MaxDepth < 1 {
		return errors.New(errors.CodeInvalidConfig, "max_depth must be at least 1")
	}
	if !c.Selection().Any() {
		return errors.New(errors.CodeInvalidConfig, "at least one archive format must be enabled")
	}
	if !archive.KnownEncoding(c.NameEncoding) {
		return errors.Newf(errors.CodeInvalidConfig, "unknown name encoding %q", c.NameEncoding)
	}
	if c.EnableRar && strings.TrimSpace(c.RarTool) == "" {
		return errors.New(errors.CodeInvalidConfig, "rar_tool must be set when rar is enabled")
	}
	if strings.TrimSpace(c.BaseDir) == "" {
		return errors.New(errors.CodeInvalidConfig, "base_dir is required")
	}
	if !c.DryRun {
		info, err := os.Stat(c.BaseDir)
		if err != nil {
			return errors.WithContext(
				errors.Wrapf(err, errors.CodeNotFound, "base_dir does not exist: %s", c.BaseDir),
				"path", c.BaseDir,
			)
		}
		if !info.IsDir() {
			return errors.Newf(errors.CodeInvalidConfig, "base_dir is not a directory: %s", c.BaseDir)
		}
	}
	return nil
}

// Selection returns the enabled formats.
func (c Config) Selection() formats.Selection {
	return formats.Selection{
		Zip:      c.EnableZip,
		Rar:      c.EnableRar,
		SevenZip: c.Enable7z,
		Tar:      c.EnableTar,
		TarGz:    c.EnableTarGz,
		TarBz2:   c.EnableTarBz2,
		TarXz:    c.EnableTarXz,
		TarZst:   c.EnableTarZst,
		RarTool:  c.RarTool,
	}
}

// ExtractOptions returns the per-archive options for this run.
func (c Config) ExtractOptions(logger *log.Logger) archive.ExtractOptions {
	return archive.ExtractOptions{
		Password:     c.Password,
		Overwrite:    c.Overwrite,
		SkipExisting: c.SkipExisting,
		Verify:       c.VerifyIntegrity,
		Strict:       c.StrictMembers,
		NameEncoding: c.NameEncoding,
		Logger:       logger,
	}
}

// NestedOptions returns the nested engine options for this run.
func (c Config) NestedOptions(logger *log.Logger) nested.Options {
	return nested.Options{
		MaxDepth:    c.MaxDepth,
		DryRun:      c.DryRun,
		DeleteAfter: c.DeleteAfterExtract,
		Logger:      logger,
	}
}

// WalkerOptions returns the flat walker options for this run.
func (c Config) WalkerOptions(logger *log.Logger) walker.Options {
	return walker.Options{
		Parallel:    c.ParallelProcessing,
		MaxWorkers:  c.MaxWorkers,
		DryRun:      c.DryRun,
		DeleteAfter: c.DeleteAfterExtract,
		Logger:      logger,
	}
}
