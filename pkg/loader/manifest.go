package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/source"
	"gopkg.in/yaml.v3"
)

var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest describes one load. YAML and JSON are both accepted. File locations are resolved
// relative to the manifest's own location unless absolute or s3:// URLs.
type Manifest struct {
	Experiment *ExperimentManifest `yaml:"experiment,omitempty"`
	Analysis   *AnalysisManifest   `yaml:"analysis,omitempty"`

	location string
}

type ExperimentManifest struct {
	Name           string       `yaml:"name"`
	Description    string       `yaml:"description"`
	ExperimentType string       `yaml:"experiment_type"`
	GenomeAssembly string       `yaml:"genome_assembly"`
	CellLine       string       `yaml:"cell_line"`
	TissueType     string       `yaml:"tissue_type"`
	Elements       ElementsFile `yaml:"elements"`
}

type ElementsFile struct {
	File        string `yaml:"file"`
	FeatureType string `yaml:"feature_type"`
	ParentType  string `yaml:"parent_type"`
}

type AnalysisManifest struct {
	Experiment    string  `yaml:"experiment"`
	Name          string  `yaml:"name"`
	Description   string  `yaml:"description"`
	PValThreshold float64 `yaml:"p_val_threshold"`
	Observations  string  `yaml:"observations"`
}

const defaultPValThreshold = 0.05

// ParseManifest decodes a manifest. location is used to resolve relative file paths.
func ParseManifest(r io.Reader, location string) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.location = location
	return &m, nil
}

// LoadManifest opens and parses the manifest at location.
func LoadManifest(ctx context.Context, opener *source.Opener, location string) (*Manifest, error) {
	rc, err := opener.Open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = rc.Close() }()
	return ParseManifest(rc, location)
}

// Resolve turns a file reference from the manifest into a location the opener understands.
func (m *Manifest) Resolve(file string) string {
	if file == "" || filepath.IsAbs(file) || strings.HasPrefix(file, "s3://") || m.location == "" {
		return file
	}
	if rest, ok := strings.CutPrefix(m.location, "s3://"); ok {
		return "s3://" + path.Join(path.Dir(rest), file)
	}
	return filepath.Join(filepath.Dir(m.location), file)
}

func (e *ExperimentManifest) validate() error {
	var missing []string
	if e.Name == "" {
		missing = append(missing, "experiment.name")
	}
	if e.GenomeAssembly == "" {
		missing = append(missing, "experiment.genome_assembly")
	}
	if e.Elements.File == "" {
		missing = append(missing, "experiment.elements.file")
	}
	if e.Elements.FeatureType == "" {
		missing = append(missing, "experiment.elements.feature_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidManifest, strings.Join(missing, ", "))
	}
	if _, err := model.ParseFeatureType(e.Elements.FeatureType); err != nil {
		return fmt.Errorf("%w: experiment.elements.feature_type: %v", ErrInvalidManifest, err)
	}
	if e.Elements.ParentType != "" {
		if _, err := model.ParseFeatureType(e.Elements.ParentType); err != nil {
			return fmt.Errorf("%w: experiment.elements.parent_type: %v", ErrInvalidManifest, err)
		}
	}
	return nil
}

func (a *AnalysisManifest) validate() error {
	var missing []string
	if a.Experiment == "" {
		missing = append(missing, "analysis.experiment")
	}
	if a.Name == "" {
		missing = append(missing, "analysis.name")
	}
	if a.Observations == "" {
		missing = append(missing, "analysis.observations")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidManifest, strings.Join(missing, ", "))
	}
	if a.PValThreshold < 0 || a.PValThreshold > 1 {
		return fmt.Errorf("%w: analysis.p_val_threshold %v outside [0, 1]", ErrInvalidManifest, a.PValThreshold)
	}
	return nil
}

// threshold is the configured p-value cutoff, 0.05 when unset.
func (a *AnalysisManifest) threshold() float64 {
	if a.PValThreshold == 0 {
		return defaultPValThreshold
	}
	return a.PValThreshold
}

// Validate checks the section needed for kind.
func (m *Manifest) Validate(kind Kind) error {
	switch kind {
	case KindExperiment:
		if m.Experiment == nil {
			return fmt.Errorf("%w: no experiment section", ErrInvalidManifest)
		}
		return m.Experiment.validate()
	case KindAnalysis:
		if m.Analysis == nil {
			return fmt.Errorf("%w: no analysis section", ErrInvalidManifest)
		}
		return m.Analysis.validate()
	}
	return fmt.Errorf("%w: unknown load kind %q", ErrInvalidManifest, kind)
}
