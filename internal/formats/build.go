package formats

import (
	"errors"

	"github.com/blurfx/unnest/internal/archive"
)

// Selection enables individual formats.
type Selection struct {
	Zip      bool
	Rar      bool
	SevenZip bool
	Tar      bool
	TarGz    bool
	TarBz2   bool
	TarXz    bool
	TarZst   bool

	// RarTool names the external rar decoder; empty means DefaultRarTool.
	RarTool string
}

// All enables every format.
func All() Selection {
	return Selection{
		Zip: true, Rar: true, SevenZip: true,
		Tar: true, TarGz: true, TarBz2: true, TarXz: true, TarZst: true,
	}
}

// Any reports whether at least one format is enabled.
func (s Selection) Any() bool {
	return s.Zip || s.Rar || s.SevenZip || s.Tar || s.TarGz || s.TarBz2 || s.TarXz || s.TarZst
}

// Build returns a registry holding the enabled extractors in resolution
// order: zip, rar, 7z, then the tar family. An extractor whose external
// tool is missing is logged and left out.
func Build(sel Selection, opts archive.ExtractOptions) (*archive.Registry, error) {
	opts = opts.WithDefaults()
	reg := archive.NewRegistry()

	if sel.Zip {
		z, err := NewZip(opts)
		if err != nil {
			return nil, err
		}
		reg.Register(z)
	}
	if sel.Rar {
		r, err := NewRar(sel.RarTool, opts)
		switch {
		case errors.Is(err, archive.ErrToolUnavailable):
			opts.Logger.Warn("rar support disabled", "err", err)
		case err != nil:
			return nil, err
		default:
			reg.Register(r)
		}
	}
	if sel.SevenZip {
		reg.Register(NewSevenZip(opts))
	}

	for _, tc := range []struct {
		on bool
		c  Compression
	}{
		{sel.Tar, TarPlain},
		{sel.TarGz, TarGzip},
		{sel.TarBz2, TarBzip2},
		{sel.TarXz, TarXZ},
		{sel.TarZst, TarZstd},
	} {
		if !tc.on {
			continue
		}
		t, err := NewTar(tc.c, opts)
		if err != nil {
			return nil, err
		}
		reg.Register(t)
	}
	return reg, nil
}
