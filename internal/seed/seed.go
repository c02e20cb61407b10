// Package seed loads the course catalog and traveler roster from a YAML file
// into a booking store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/repository"
	"skyport/internal/bookings/validator"
	"skyport/pkg/clock"
	"skyport/pkg/logger"
	"skyport/pkg/model"
	"skyport/pkg/sanitizer"
)

type Catalog struct {
	Courses   []model.Course   `yaml:"courses"`
	Travelers []model.Traveler `yaml:"travelers"`
}

type Result struct {
	Courses          int
	TravelersCreated int
	TravelersUpdated int
	TravelersSkipped int
}

// Parse decodes a catalog and rejects unknown keys.
func Parse(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return &c, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &c, nil
}

// Normalize trims and canonicalizes identifiers, names and currencies in place.
func (c *Catalog) Normalize() {
	for i := range c.Courses {
		course := &c.Courses[i]
		course.ID = sanitizer.NormalizeIdentifier(course.ID)
		course.Name = sanitizer.NormalizeName(course.Name)
		course.Currency = sanitizer.NormalizeCurrency(course.Currency)
		course.Prerequisites = sanitizer.NormalizeIdentifiers(course.Prerequisites)
	}
	for i := range c.Travelers {
		traveler := &c.Travelers[i]
		traveler.ID = sanitizer.NormalizeIdentifier(traveler.ID)
		traveler.Name = sanitizer.NormalizeName(traveler.Name)
		traveler.CompletedTraining = sanitizer.NormalizeIdentifiers(traveler.CompletedTraining)
		if traveler.Clearance.Status == "" {
			traveler.Clearance.Status = model.ClearanceNone
		}
	}
}

// Validate checks every entry and that prerequisites name catalog courses.
func (c *Catalog) Validate(v *validator.BookingValidator) error {
	var errs []error
	known := make(map[string]struct{}, len(c.Courses))
	for i := range c.Courses {
		course := &c.Courses[i]
		if _, dup := known[course.ID]; dup {
			errs = append(errs, fmt.Errorf("course %q listed twice", course.ID))
		}
		known[course.ID] = struct{}{}
		if err := v.ValidateCourse(course); err != nil {
			errs = append(errs, fmt.Errorf("course %q: %w", course.ID, err))
		}
	}
	for _, course := range c.Courses {
		for _, p := range course.Prerequisites {
			if _, ok := known[p]; !ok {
				errs = append(errs, fmt.Errorf("course %q: unknown prerequisite %q", course.ID, p))
			}
		}
	}

	seen := make(map[string]struct{}, len(c.Travelers))
	for i := range c.Travelers {
		traveler := &c.Travelers[i]
		if _, dup := seen[traveler.ID]; dup {
			errs = append(errs, fmt.Errorf("traveler %q listed twice", traveler.ID))
		}
		seen[traveler.ID] = struct{}{}
		if err := v.ValidateTraveler(traveler); err != nil {
			errs = append(errs, fmt.Errorf("traveler %q: %w", traveler.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Apply upserts courses and writes travelers. An existing traveler is
// superseded only when its clearance or completed training differ.
func Apply(ctx context.Context, store *repository.Store, c *Catalog, clk clock.Clock, log *logger.Logger) (Result, error) {
	var res Result
	for i := range c.Courses {
		course := c.Courses[i]
		if err := store.Courses.Upsert(ctx, &course); err != nil {
			return res, fmt.Errorf("upsert course %s: %w", course.ID, err)
		}
		res.Courses++
		log.Debug("Course seeded", "course_id", course.ID, "capacity", course.Capacity)
	}

	now := clk.Now()
	for i := range c.Travelers {
		want := c.Travelers[i]
		current, err := store.Travelers.FindByID(ctx, want.ID)
		switch {
		case errors.Is(err, bookingserrors.ErrTravelerNotFound):
			want.UpdatedAt = now
			if err := store.Travelers.Save(ctx, &want, 0); err != nil {
				return res, fmt.Errorf("create traveler %s: %w", want.ID, err)
			}
			res.TravelersCreated++
			log.Debug("Traveler seeded", "traveler_id", want.ID)
		case err != nil:
			return res, fmt.Errorf("load traveler %s: %w", want.ID, err)
		case sameProfile(current, &want):
			res.TravelersSkipped++
		default:
			next := current.Clone()
			next.Name = want.Name
			next.Clearance = want.Clearance
			next.CompletedTraining = want.CompletedTraining
			next.UpdatedAt = now
			if err := store.Travelers.Save(ctx, next, current.Revision); err != nil {
				return res, fmt.Errorf("supersede traveler %s: %w", want.ID, err)
			}
			res.TravelersUpdated++
			log.Debug("Traveler superseded", "traveler_id", want.ID, "revision", next.Revision)
		}
	}
	return res, nil
}

func sameProfile(a, b *model.Traveler) bool {
	if a.Name != b.Name || a.Clearance.Status != b.Clearance.Status || !a.Clearance.ExpiresAt.Equal(b.Clearance.ExpiresAt) {
		return false
	}
	if len(a.CompletedTraining) != len(b.CompletedTraining) {
		return false
	}
	for i := range a.CompletedTraining {
		if a.CompletedTraining[i] != b.CompletedTraining[i] {
			return false
		}
	}
	return true
}
