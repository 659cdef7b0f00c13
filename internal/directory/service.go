// Package directory is the read side over the doctor and pharmacy registries.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/rams-care-platform/internal/docstore"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/identity"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

var tracer = otel.Tracer("rams.internal.directory")

const (
	doctorsKey    = "doctors"
	pharmaciesKey = "pharmacies"
)

var (
	ErrDoctorNotFound = failure.New(failure.KindNotFound, "doctor_not_found",
		"The selected doctor could not be found.")
	ErrPharmacyNotFound = failure.New(failure.KindNotFound, "pharmacy_not_found",
		"The selected pharmacy could not be found.")
)

// Specialties offered in the doctor search.
var Specialties = []string{
	"General Medicine",
	"Cardiology",
	"Neurology",
	"Orthopedics",
	"Pediatrics",
	"Ophthalmology",
	"Dermatology",
	"ENT",
	"Ayurveda",
}

// DoctorFilter narrows SearchDoctors. Empty fields match everything.
type DoctorFilter struct {
	// Query matches name or specialization, case-insensitively.
	Query string
	// City is a case-insensitive substring match.
	City string
	// Specialty must equal the doctor's specialization exactly.
	Specialty string
}

// Service answers directory queries. Registry listings may be served from a
// snapshot cache up to ttl old; single record reads always go to the store.
type Service struct {
	store  docstore.Store
	cache  Cache
	ttl    time.Duration
	logger *logging.Logger

	// generation advances on every Invalidate so loads that raced it do
	// not repopulate the cache.
	generation atomic.Uint64
}

// NewService builds the query service. cache may be nil.
func NewService(store docstore.Store, cache Cache, ttl time.Duration, logger *logging.Logger) *Service {
	if store == nil {
		panic("directory: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		cache = nil
	}
	return &Service{store: store, cache: cache, ttl: ttl, logger: logger}
}

// SearchDoctors returns every doctor matching filter, in registry order.
func (s *Service) SearchDoctors(ctx context.Context, filter DoctorFilter) ([]identity.DoctorProfile, error) {
	ctx, span := tracer.Start(ctx, "directory.search_doctors")
	defer span.End()
	span.SetAttributes(
		attribute.String("rams.filter.query", filter.Query),
		attribute.String("rams.filter.city", filter.City),
		attribute.String("rams.filter.specialty", filter.Specialty),
	)

	doctors, err := snapshot[identity.DoctorProfile](ctx, s, doctorsKey, identity.CollectionDoctors)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	city := strings.ToLower(strings.TrimSpace(filter.City))
	specialty := strings.TrimSpace(filter.Specialty)

	out := make([]identity.DoctorProfile, 0, len(doctors))
	for _, d := range doctors {
		if query != "" &&
			!strings.Contains(strings.ToLower(d.Name), query) &&
			!strings.Contains(strings.ToLower(d.Specialization), query) {
			continue
		}
		if city != "" && !strings.Contains(strings.ToLower(d.City), city) {
			continue
		}
		if specialty != "" && d.Specialization != specialty {
			continue
		}
		out = append(out, d)
	}
	span.SetAttributes(attribute.Int("rams.results", len(out)))
	return out, nil
}

// ListPharmacies returns the whole pharmacy registry.
func (s *Service) ListPharmacies(ctx context.Context) ([]identity.PharmacyProfile, error) {
	ctx, span := tracer.Start(ctx, "directory.list_pharmacies")
	defer span.End()

	pharmacies, err := snapshot[identity.PharmacyProfile](ctx, s, pharmaciesKey, identity.CollectionPharmacies)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return pharmacies, nil
}

// GetDoctor reads the doctor's current profile from the store.
func (s *Service) GetDoctor(ctx context.Context, doctorID string) (*identity.DoctorProfile, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return nil, ErrDoctorNotFound
	}
	doctor, err := docstore.GetAs[identity.DoctorProfile](ctx, s.store, identity.CollectionDoctors, doctorID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		s.logger.Error("doctor lookup failed", "doctor_id", doctorID, "error", err)
		return nil, failure.From(err)
	}
	return doctor, nil
}

// GetPharmacy reads the pharmacy's current profile from the store.
func (s *Service) GetPharmacy(ctx context.Context, pharmacyID string) (*identity.PharmacyProfile, error) {
	pharmacyID = strings.TrimSpace(pharmacyID)
	if pharmacyID == "" {
		return nil, ErrPharmacyNotFound
	}
	pharmacy, err := docstore.GetAs[identity.PharmacyProfile](ctx, s.store, identity.CollectionPharmacies, pharmacyID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrPharmacyNotFound
	}
	if err != nil {
		s.logger.Error("pharmacy lookup failed", "pharmacy_id", pharmacyID, "error", err)
		return nil, failure.From(err)
	}
	return pharmacy, nil
}

// Invalidate drops cached registry snapshots.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.generation.Add(1)
	if err := s.cache.Delete(ctx, doctorsKey, pharmaciesKey); err != nil {
		s.logger.Warn("directory cache invalidation failed", "error", err)
	}
}

// snapshot loads a whole collection, consulting the cache first. Cache
// failures are logged and fall through to the store.
func snapshot[T any](ctx context.Context, s *Service, key, collection string) ([]T, error) {
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("directory cache read failed", "key", key, "error", err)
		}
		if ok {
			var cached []T
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			s.logger.Warn("directory cache entry unreadable", "key", key)
		}
	}

	gen := s.generation.Load()
	items, err := docstore.FindAs[T](ctx, s.store, collection, docstore.Query{})
	if err != nil {
		s.logger.Error("directory load failed", "collection", collection, "error", err)
		return nil, failure.From(err)
	}

	if s.cache != nil && s.generation.Load() == gen {
		raw, err := json.Marshal(items)
		if err == nil {
			err = s.cache.Set(ctx, key, raw, s.ttl)
		}
		if err != nil {
			s.logger.Warn("directory cache write failed", "key", key, "error", err)
		}
		// An Invalidate that landed between the check and the write
		// may have deleted before our Set; drop what we wrote.
		if err == nil && s.generation.Load() != gen {
			if err := s.cache.Delete(ctx, key); err != nil {
				s.logger.Warn("directory cache invalidation failed", "key", key, "error", err)
			}
		}
	}
	return items, nil
}
