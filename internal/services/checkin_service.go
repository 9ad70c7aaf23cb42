package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fugboizz/hanet-attendance-api/internal/database"
	"github.com/fugboizz/hanet-attendance-api/internal/metrics"
	"github.com/fugboizz/hanet-attendance-api/internal/models"
	"github.com/fugboizz/hanet-attendance-api/pkg/hanet"
)

// listCacheTTL bounds how long place and device lists are served from cache.
const listCacheTTL = 5 * time.Minute

// CheckinService runs the per-tenant pipeline: plan the window, page every
// chunk through the upstream client, aggregate, and trim to the requested
// range. Chunk and page failures are recovered locally so a partially
// failing upstream still yields a best-effort result; only auth failure and
// cancellation abort a request.
type CheckinService struct {
	tenant  string
	client  *hanet.Client
	planner WindowPlanner
	agg     Aggregator
	cache   *database.CacheClient   // nil disables caching
	rec     *metrics.TenantRecorder // nil disables recording
	logger  zerolog.Logger
}

// NewCheckinService creates the pipeline service for one tenant.
func NewCheckinService(tenant string, client *hanet.Client, planner WindowPlanner, agg Aggregator, cache *database.CacheClient, rec *metrics.TenantRecorder, logger zerolog.Logger) *CheckinService {
	return &CheckinService{
		tenant:  tenant,
		client:  client,
		planner: planner,
		agg:     agg,
		cache:   cache,
		rec:     rec,
		logger:  logger.With().Str("service", "checkin").Str("tenant", tenant).Logger(),
	}
}

// GetCheckins fetches and aggregates check-ins for one place over
// [from, to] epoch milliseconds, optionally filtered to a comma-separated
// device list. The result holds exactly one summary per (person, day).
func (s *CheckinService) GetCheckins(ctx context.Context, placeID string, from, to int64, devices string) ([]models.PersonDaySummary, error) {
	started := time.Now()
	chunks := s.planner.PlanChunks(from, to)

	s.logger.Info().
		Str("placeID", placeID).
		Int64("from", from).
		Int64("to", to).
		Int("chunks", len(chunks)).
		Msg("starting checkin fetch")

	var raw []models.CheckinEvent
	fetched := 0
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := s.client.FetchCheckinRange(ctx, placeID, chunk, devices)
		if err != nil {
			var authErr *hanet.AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			s.logger.Error().Err(err).
				Str("placeID", placeID).
				Int("chunk", i+1).
				Str("kind", chunk.Kind).
				Msg("chunk skipped")
			continue
		}
		fetched++
		raw = append(raw, records...)
	}

	result := s.agg.ReduceRange(raw, from, to)

	if s.rec != nil {
		s.rec.ObservePipelineDuration(time.Since(started))
	}
	s.logger.Info().
		Str("placeID", placeID).
		Int("chunks_ok", fetched).
		Int("raw_records", len(raw)).
		Int("summaries", len(result)).
		Dur("elapsed", time.Since(started)).
		Msg("checkin fetch complete")

	return result, nil
}

// GetPlaces lists the tenant's places, served from cache when available.
func (s *CheckinService) GetPlaces(ctx context.Context) ([]models.Place, error) {
	cacheKey := fmt.Sprintf("hanet:places:%s", s.tenant)

	var places []models.Place
	if s.cacheGet(ctx, cacheKey, &places) {
		return places, nil
	}

	places, err := s.client.GetPlaces(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, cacheKey, places)
	return places, nil
}

// GetDevices lists the devices at one place, served from cache when
// available.
func (s *CheckinService) GetDevices(ctx context.Context, placeID string) ([]models.Device, error) {
	cacheKey := fmt.Sprintf("hanet:devices:%s:%s", s.tenant, placeID)

	var devices []models.Device
	if s.cacheGet(ctx, cacheKey, &devices) {
		return devices, nil
	}

	devices, err := s.client.GetDevices(ctx, placeID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, cacheKey, devices)
	return devices, nil
}

// GetTodaySnapshot aggregates today's check-ins across every place of the
// tenant. Places that fail to fetch are skipped, matching the per-chunk
// tolerance of GetCheckins.
func (s *CheckinService) GetTodaySnapshot(ctx context.Context) ([]models.PersonDaySummary, error) {
	places, err := s.GetPlaces(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().In(s.agg.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.agg.loc).UnixMilli()
	dayEnd := dayStart + millisPerDay

	var raw []models.CheckinEvent
	for _, place := range places {
		if place.ID == "" {
			s.logger.Warn().Str("name", place.Name).Msg("skipping place without id")
			continue
		}
		chunk := models.Chunk{Start: dayStart, End: dayEnd, Kind: "day"}
		records, err := s.client.FetchCheckinRange(ctx, place.ID, chunk, "")
		if err != nil {
			var authErr *hanet.AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			s.logger.Error().Err(err).Str("placeID", place.ID).Msg("place skipped in snapshot")
			continue
		}
		raw = append(raw, records...)
	}

	return s.agg.Reduce(raw), nil
}

func (s *CheckinService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	payload, err := s.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		return false
	}
	return true
}

func (s *CheckinService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, listCacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to cache upstream list")
	}
}
