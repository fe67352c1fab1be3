package profile

import (
	_ "embed"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/nalbam/lambda-s3-resize/internal/derivative"
)

//go:embed profiles.toml
var embeddedProfiles string

// Table maps each category to its ordered derivative specs.
type Table struct {
	Version  int
	Profiles map[derivative.Category][]derivative.Spec
}

// fileFormat mirrors profiles.toml.
type fileFormat struct {
	Version  int                    `toml:"version"`
	Profiles map[string][]specEntry `toml:"profiles"`
}

type specEntry struct {
	Alias     string `toml:"alias"`
	Size      string `toml:"size"`
	Mode      string `toml:"mode"`
	Quality   int    `toml:"quality"`
	Watermark bool   `toml:"watermark"`
}

// defaultTable is parsed once at process start from the embedded file.
var defaultTable = mustParse(embeddedProfiles)

// DefaultTable returns the embedded profile table.
func DefaultTable() Table {
	return defaultTable
}

func mustParse(data string) Table {
	t, err := ParseTable(data)
	if err != nil {
		panic(fmt.Sprintf("embedded profiles.toml: %v", err))
	}
	return t
}

// ParseTable decodes and validates a TOML profile table.
func ParseTable(data string) (Table, error) {
	var f fileFormat
	md, err := toml.Decode(data, &f)
	if err != nil {
		return Table{}, fmt.Errorf("decode profiles: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Table{}, fmt.Errorf("unknown profile keys: %v", undecoded)
	}
	if f.Version < 1 {
		return Table{}, fmt.Errorf("profile table version must be >= 1, got %d", f.Version)
	}

	t := Table{Version: f.Version, Profiles: make(map[derivative.Category][]derivative.Spec, len(f.Profiles))}
	for segment, entries := range f.Profiles {
		category, ok := derivative.CategoryFromSegment(segment)
		if !ok {
			return Table{}, fmt.Errorf("unknown category %q", segment)
		}
		specs := make([]derivative.Spec, 0, len(entries))
		for i, e := range entries {
			mode, err := derivative.ParseMode(e.Mode)
			if err != nil {
				return Table{}, fmt.Errorf("%s[%d]: %w", segment, i, err)
			}
			size, err := derivative.ParseSize(e.Size)
			if err != nil {
				return Table{}, fmt.Errorf("%s[%d]: %w", segment, i, err)
			}
			specs = append(specs, derivative.Spec{
				Alias:     e.Alias,
				Size:      size,
				Mode:      mode,
				Quality:   e.Quality,
				Watermark: e.Watermark,
			})
		}
		t.Profiles[category] = specs
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Validate checks the rules every category spec list must follow.
func (t Table) Validate() error {
	for category, specs := range t.Profiles {
		if len(specs) == 0 {
			return fmt.Errorf("%s: empty spec list", category)
		}
		seen := make(map[string]bool, len(specs))
		for i, s := range specs {
			if seen[s.Alias] {
				return fmt.Errorf("%s[%d]: duplicate alias %q", category, i, s.Alias)
			}
			seen[s.Alias] = true

			if s.Alias == "" && (s.Mode != derivative.ModePassthrough || len(specs) != 1) {
				return fmt.Errorf("%s[%d]: empty alias is only allowed for a single passthrough spec", category, i)
			}
			if s.Quality < 1 || s.Quality > 100 {
				return fmt.Errorf("%s[%d]: quality %d out of range 1-100", category, i, s.Quality)
			}
			if s.Mode != derivative.ModePassthrough && (s.Size.Width <= 0 || s.Size.Height <= 0) {
				return fmt.Errorf("%s[%d]: %s requires a positive size, got %s", category, i, s.Mode, s.Size)
			}
		}
	}
	return nil
}
