package background

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExampleYAML is the sample spec written by `musngr init`.
const ExampleYAML = `# Background used when a track has no artwork.
text: "Artist - Title"
style: gradient-sunset   # solid-dark, solid-light, gradient-blue, gradient-purple, gradient-sunset
font: segoe              # segoe, arial, helvetica, times, courier
font_size: 36            # points
alignment: middle        # top, middle, bottom, left, right, center
width: 1920
height: 1080
`

// LoadSpecFile reads a spec from a .json, .yaml or .yml file. Missing fields
// take their Defaults values; names are validated.
func LoadSpecFile(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read spec: %w", err)
	}

	spec := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &spec)
	default:
		err = yaml.Unmarshal(data, &spec)
	}
	if err != nil {
		return Spec{}, fmt.Errorf("parse spec %s: %w", filepath.Base(path), err)
	}

	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec.withDefaults(), nil
}

// Validate checks the enumerated fields. Zero values are allowed and mean
// "use the default".
func (s Spec) Validate() error {
	if s.Style != "" {
		if _, err := ParseStyle(string(s.Style)); err != nil {
			return err
		}
	}
	if s.Font != "" {
		if _, err := ParseFont(string(s.Font)); err != nil {
			return err
		}
	}
	if s.Alignment != "" {
		if _, err := ParseAlignment(string(s.Alignment)); err != nil {
			return err
		}
	}
	if s.FontSizePt < 0 || s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("font size and dimensions must not be negative")
	}
	return nil
}
