package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/ReddyLab/cegs-portal-sub001/pkg/accession"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/assoc"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/bulk"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/db"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/model"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/tabular"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// LoadExperiment loads the tested elements named by the manifest's experiment section and
// associates them with the cCRE catalog.
func (l *Loader) LoadExperiment(ctx context.Context, m *Manifest) (*Result, error) {
	if err := m.Validate(KindExperiment); err != nil {
		return nil, err
	}
	r, err := l.start(ctx, KindExperiment)
	if err != nil {
		return nil, err
	}
	res, err := l.loadExperiment(ctx, r, m)
	if err := r.finish(ctx, err); err != nil {
		return nil, err
	}
	res.RunID = r.record.RunID
	return res, nil
}

// experimentLoad carries the per-load state shared by the steps below.
type experimentLoad struct {
	run      *run
	manifest *ExperimentManifest
	lk       *lookups
	ids      *accession.RowIDs

	accession  string
	parentType model.FeatureType
	parents    map[string]*model.CanonicalFeature
	parentList []*model.CanonicalFeature
	children   []*model.CanonicalFeature
	pseudo     []*model.CanonicalFeature
	pairs      []assoc.Pair
}

func (l *Loader) loadExperiment(ctx context.Context, r *run, m *Manifest) (*Result, error) {
	em := m.Experiment
	featureType, err := model.ParseFeatureType(em.Elements.FeatureType)
	if err != nil {
		return nil, err
	}
	x := &experimentLoad{run: r, manifest: em, parents: make(map[string]*model.CanonicalFeature)}
	if em.Elements.ParentType != "" {
		if x.parentType, err = model.ParseFeatureType(em.Elements.ParentType); err != nil {
			return nil, err
		}
	}

	r.enter(StateParse)
	file := m.Resolve(em.Elements.File)
	rows, err := l.parseElements(ctx, file, tabular.ElementOptions{
		GenomeAssembly: em.GenomeAssembly,
		CellLine:       em.CellLine,
		FeatureType:    featureType,
		ParentType:     x.parentType,
		Delimiter:      tabular.DelimiterFor(file),
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("Parsed elements", zap.String("file", file), zap.String("rows", humanize.Comma(int64(len(rows)))))

	r.enter(StateAllocateIDs)
	if err := r.openSession(ctx, fmt.Sprintf("experiment %q from %s", em.Name, file)); err != nil {
		return nil, err
	}
	if x.ids, err = r.openRowIDs(ctx, db.DNAFeature.Name); err != nil {
		return nil, err
	}
	x.accession = r.session.Allocate(accession.Experiment)
	r.record.AccessionID = x.accession
	x.lk = newLookups(l.store, em.GenomeAssembly)
	for _, row := range rows {
		if err := x.addRow(ctx, row); err != nil {
			return nil, err
		}
	}

	r.enter(StateAssociate)
	// cCREs are catalog entries themselves, so they get no associations and are exempt from
	// the every-feature-has-an-association rule.
	if featureType == model.FeatureCCRE {
		r.log.Info("Features are cCREs, skipping association")
	} else if err := x.associate(ctx, l.store); err != nil {
		return nil, err
	}

	r.enter(StateBulkWrite)
	if err := r.writePhases(ctx, x.phases()...); err != nil {
		return nil, err
	}
	l.metrics.pseudo.Add(float64(len(x.pseudo)))

	r.enter(StateCommitMetadata)
	if err := l.store.SaveExperiment(ctx, &model.Experiment{
		AccessionID:    x.accession,
		Name:           em.Name,
		Description:    em.Description,
		ExperimentType: em.ExperimentType,
		GenomeAssembly: em.GenomeAssembly,
		CellLine:       em.CellLine,
		TissueType:     em.TissueType,
		SourceFile:     file,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	return &Result{
		Kind:        KindExperiment,
		AccessionID: x.accession,
		Rows:        r.report.Rows,
		Features:    len(x.parentList) + len(x.children),
		Pseudo:      len(x.pseudo),
	}, nil
}

func (l *Loader) parseElements(ctx context.Context, file string, opts tabular.ElementOptions) ([]*model.FeatureRow, error) {
	vocab, err := l.store.FacetVocabulary(ctx)
	if err != nil {
		return nil, err
	}
	opts.Vocabulary = vocab

	rc, err := l.open(ctx, file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	er, err := tabular.NewElementReader(rc, opts)
	if err != nil {
		return nil, err
	}
	return er.ReadAll()
}

// addRow turns a parsed element into a canonical feature, creating its parent the first time
// the parent name is seen.
func (x *experimentLoad) addRow(ctx context.Context, row *model.FeatureRow) error {
	var parent *model.CanonicalFeature
	if row.HasParent() {
		parent = x.parents[row.ParentName]
		if parent == nil {
			var err error
			parent, err = x.newFeature(ctx, row.Line, *row.Parent, row.ParentName, row.ParentType, nil, nil)
			if err != nil {
				return err
			}
			x.parents[row.ParentName] = parent
			x.parentList = append(x.parentList, parent)
		}
	}

	f, err := x.newFeature(ctx, row.Line, row.Locus, row.Name, row.FeatureType, row.Facets, row.Misc)
	if err != nil {
		return err
	}
	if parent != nil {
		f.ParentID = parent.ID
		f.ParentAccessionID = parent.AccessionID
	}
	x.children = append(x.children, f)
	return nil
}

func (x *experimentLoad) newFeature(ctx context.Context, line int, locus model.Locus, name string, ft model.FeatureType, facets []model.FacetValue, misc map[string]string) (*model.CanonicalFeature, error) {
	accType, err := accession.ForFeature(ft)
	if err != nil {
		return nil, err
	}
	gene, err := x.lk.closestGene(ctx, line, locus)
	if err != nil {
		return nil, err
	}
	return &model.CanonicalFeature{
		ID:                  x.ids.Next(),
		AccessionID:         x.run.session.Allocate(accType),
		Name:                name,
		Locus:               locus,
		GenomeAssembly:      x.manifest.GenomeAssembly,
		CellLine:            x.manifest.CellLine,
		FeatureType:         ft,
		ClosestGene:         gene,
		ExperimentAccession: x.accession,
		Facets:              facets,
		Misc:                misc,
	}, nil
}

// associate matches parents against the catalog first, then children, letting children of
// matched parents inherit the parent's catalog ids.
func (x *experimentLoad) associate(ctx context.Context, store db.Store) error {
	catalog, err := store.Catalog(ctx, x.manifest.GenomeAssembly)
	if err != nil {
		return err
	}
	x.run.log.Info("Read cCRE catalog", zap.String("entries", humanize.Comma(int64(len(catalog)))))

	mint := func(src *model.CanonicalFeature) *model.CanonicalFeature {
		return assoc.PseudoFrom(src, x.ids.Next(), x.run.session.Allocate(accession.CCRE))
	}

	var pre map[int64][]int64
	if len(x.parentList) > 0 {
		parents := append([]*model.CanonicalFeature(nil), x.parentList...)
		model.SortFeatures(parents)
		res, err := assoc.Associate(parents, catalog, nil, mint)
		if err != nil {
			return err
		}
		pre = res.Associations
		x.pseudo = append(x.pseudo, res.Pseudo...)
		x.pairs = append(x.pairs, res.Pairs...)
	}

	children := append([]*model.CanonicalFeature(nil), x.children...)
	model.SortFeatures(children)
	res, err := assoc.Associate(children, catalog, pre, mint)
	if err != nil {
		return err
	}
	x.pseudo = append(x.pseudo, res.Pseudo...)
	x.pairs = append(x.pairs, res.Pairs...)

	x.run.log.Info("Associated features",
		zap.Int("parents", len(x.parentList)),
		zap.Int("features", len(x.children)),
		zap.Int("pairs", len(x.pairs)),
		zap.Int("pseudo_ccres", len(x.pseudo)),
	)
	return nil
}

// phases builds the three element phases: features, feature facets, feature associations.
func (x *experimentLoad) phases() []bulk.Phase {
	features := db.NewFeatureBatch()
	facets := db.NewFeatureFacetBatch()
	for _, group := range [][]*model.CanonicalFeature{x.parentList, x.children, x.pseudo} {
		for _, f := range group {
			features.Add(db.FeatureFields(f)...)
			seen := make(map[int64]bool, len(f.Facets))
			for _, fv := range f.Facets {
				if seen[fv.ID] {
					continue
				}
				seen[fv.ID] = true
				facets.Add(bulk.Int(f.ID), bulk.Int(fv.ID))
			}
		}
	}

	links := db.NewFeatureCCREBatch()
	seen := make(map[assoc.Pair]bool, len(x.pairs))
	for _, p := range x.pairs {
		if seen[p] {
			continue
		}
		seen[p] = true
		links.Add(bulk.Int(p.FeatureID), bulk.Int(p.CatalogID))
	}

	return []bulk.Phase{
		{Name: "features", Batches: []*bulk.Batch{features}},
		{Name: "feature facets", Batches: []*bulk.Batch{facets}},
		{Name: "feature associations", Batches: []*bulk.Batch{links}},
	}
}
