package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/histsess/internal/hda"
)

// Fixture describes namespace and history content to load into a store.
type Fixture struct {
	Branches    []string            `yaml:"branches,omitempty"`
	Items       []FixtureItem       `yaml:"items"`
	Samples     []FixtureSample     `yaml:"samples,omitempty"`
	Annotations []FixtureAnnotation `yaml:"annotations,omitempty"`
}

// FixtureItem declares an item and, optionally, its attributes as of Since.
type FixtureItem struct {
	ID         string            `yaml:"id"`
	Since      time.Time         `yaml:"since,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// FixtureSample is one value. Quality defaults to Good|Raw.
type FixtureSample struct {
	Item    string    `yaml:"item"`
	Time    time.Time `yaml:"time"`
	Value   float64   `yaml:"value"`
	Quality uint32    `yaml:"quality,omitempty"`
}

// FixtureAnnotation is one note.
type FixtureAnnotation struct {
	Item string    `yaml:"item"`
	Time time.Time `yaml:"time"`
	Text string    `yaml:"text"`
	User string    `yaml:"user,omitempty"`
}

// Seed loads f into the store. Samples are written with insert-replace
// semantics so seeding twice is harmless.
func (s *Store) Seed(ctx context.Context, f Fixture) error {
	for _, b := range f.Branches {
		if err := s.PutBranch(ctx, b); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	for _, it := range f.Items {
		if err := s.PutItem(ctx, it.ID); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		for name, value := range it.Attributes {
			attr, ok := hda.ParseAttributeID(name)
			if !ok {
				return fmt.Errorf("seed: item %q: unknown attribute %q", it.ID, name)
			}
			if err := s.SetAttribute(ctx, hda.ItemID(it.ID), attr, it.Since, value); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
		}
	}

	for _, smp := range f.Samples {
		q := hda.Quality(smp.Quality)
		if q == 0 {
			q = hda.QualityGood | hda.QualityRaw
		}
		v := hda.Value{Timestamp: smp.Time, Data: smp.Value, Quality: q}
		if err := s.WriteSample(ctx, hda.ItemID(smp.Item), v, hda.EditInsertReplace); err != nil {
			return fmt.Errorf("seed sample %s@%s: %w", smp.Item, smp.Time.Format(time.RFC3339), err)
		}
	}

	for _, a := range f.Annotations {
		ann := hda.Annotation{Timestamp: a.Time, Text: a.Text, User: a.User, Created: a.Time}
		if err := s.AddAnnotation(ctx, hda.ItemID(a.Item), ann); err != nil {
			return fmt.Errorf("seed annotation: %w", err)
		}
	}

	return nil
}
