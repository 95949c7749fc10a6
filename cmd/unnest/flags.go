package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blurfx/unnest/internal/config"
)

const (
	flagConfig = "config"
	flagQuiet  = "quiet"
)

// toggle is a pair of mutually exclusive flags for one boolean setting.
type toggle struct {
	on, off string
	key     string
	usage   string
}

var toggles = []toggle{
	{"parallel", "no-parallel", config.KeyParallel, "extract the archives of a directory in parallel"},
	{"delete-after", "no-delete-after", config.KeyDeleteAfter, "delete archives after a successful extraction"},
	{"verify", "no-verify", config.KeyVerify, "test archives before extracting them"},
	{"process-nested", "no-process-nested", config.KeyProcessNested, "extract archives found inside archives"},
	{"skip-existing", "no-skip-existing", config.KeySkipExisting, "keep files that already exist"},
	{"overwrite", "no-overwrite", config.KeyOverwrite, "replace files that already exist"},
	{"strict", "no-strict", config.KeyStrictMembers, "fail archives that contain unsafe member paths"},
	{"enable-zip", "disable-zip", config.KeyEnableZip, "zip support"},
	{"enable-rar", "disable-rar", config.KeyEnableRar, "rar support"},
	{"enable-7z", "disable-7z", config.KeyEnable7z, "7z support"},
	{"enable-tar", "disable-tar", config.KeyEnableTar, "tar support"},
	{"enable-tar-gz", "disable-tar-gz", config.KeyEnableTarGz, "tar.gz support"},
	{"enable-tar-bz2", "disable-tar-bz2", config.KeyEnableTarBz2, "tar.bz2 support"},
	{"enable-tar-xz", "disable-tar-xz", config.KeyEnableTarXz, "tar.xz support"},
	{"enable-tar-zst", "disable-tar-zst", config.KeyEnableTarZst, "tar.zst support"},
}

// Single flags bound to config keys.
var boolFlags = map[string]string{
	"verbose": config.KeyVerbose,
	"dry-run": config.KeyDryRun,
}

var stringFlags = map[string]string{
	"log-file":      config.KeyLogFile,
	"password":      config.KeyPassword,
	"name-encoding": config.KeyNameEncoding,
	"rar-tool":      config.KeyRarTool,
}

var intFlags = map[string]string{
	"max-workers": config.KeyMaxWorkers,
	"max-depth":   config.KeyMaxDepth,
}

func registerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolP("verbose", "v", false, "enable debug logging")
	f.Bool("dry-run", false, "show what would be extracted without extracting")
	f.String("log-file", "", "also write the log to this file")
	f.String(flagConfig, "", "JSON configuration file")
	f.Int("max-workers", 0, "parallel workers per directory")
	f.Int("max-depth", 0, "maximum nesting depth to unwrap")
	f.String("password", "", "password for encrypted archives")
	f.String("name-encoding", "", "charset of legacy zip member names")
	f.String("rar-tool", "", "name or path of the unrar binary")
	f.BoolP(flagQuiet, "q", false, "hide progress bars")

	for _, t := range toggles {
		f.Bool(t.on, false, "enable: "+t.usage)
		f.Bool(t.off, false, "disable: "+t.usage)
		cmd.MarkFlagsMutuallyExclusive(t.on, t.off)
	}
}

// applyFlags copies the flags the user actually set onto v, so unset flags
// leave the defaults and the config file in effect.
func applyFlags(cmd *cobra.Command, v *viper.Viper) error {
	f := cmd.Flags()
	for name, key := range boolFlags {
		if f.Changed(name) {
			b, err := f.GetBool(name)
			if err != nil {
				return err
			}
			v.Set(key, b)
		}
	}
	for name, key := range stringFlags {
		if f.Changed(name) {
			s, err := f.GetString(name)
			if err != nil {
				return err
			}
			v.Set(key, s)
		}
	}
	for name, key := range intFlags {
		if f.Changed(name) {
			n, err := f.GetInt(name)
			if err != nil {
				return err
			}
			v.Set(key, n)
		}
	}
	for _, t := range toggles {
		switch {
		case f.Changed(t.on):
			b, err := f.GetBool(t.on)
			if err != nil {
				return err
			}
			v.Set(t.key, b)
		case f.Changed(t.off):
			b, err := f.GetBool(t.off)
			if err != nil {
				return err
			}
			v.Set(t.key, !b)
		}
	}
	return nil
}
