// Package settings exposes the engine's tunables (per-type fees and the dispatch ratio)
// backed by the settings key-value table with an optional read-through cache.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/repository"
)

const (
	keyRatioMaintenance  = "dispatch.ratio.maintenance"
	keyRatioInstallation = "dispatch.ratio.installation"

	cacheKey = "dispatch:settings"
)

// TicketFeeKey is the settings key holding the ticket fee for a type.
func TicketFeeKey(t domain.TicketType) string { return "fee." + string(t) + ".ticket" }

// TransportFeeKey is the settings key holding the transport fee for a type.
func TransportFeeKey(t domain.TicketType) string { return "fee." + string(t) + ".transport" }

// Provider is what the engine reads on every dispatch and close.
type Provider interface {
	FeeSchedule(ctx context.Context, t domain.TicketType) (domain.FeeSchedule, error)
	DispatchRatio(ctx context.Context) (domain.DispatchRatio, error)
}

// Cache stores the serialized settings map.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Store reads settings from the repository, through cache when one is configured.
type Store struct {
	repo         repository.SettingsRepository
	cache        Cache
	ttl          time.Duration
	defaultRatio domain.DispatchRatio
	logger       *zap.Logger
}

// Options configures a Store.
type Options struct {
	Cache        Cache
	TTL          time.Duration
	DefaultRatio domain.DispatchRatio
	Logger       *zap.Logger
}

// NewStore builds a settings store.
func NewStore(repo repository.SettingsRepository, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		repo:         repo,
		cache:        opts.Cache,
		ttl:          opts.TTL,
		defaultRatio: opts.DefaultRatio,
		logger:       logger,
	}
}

// FeeSchedule returns the global fee amounts for a ticket type. Missing keys read as zero.
func (s *Store) FeeSchedule(ctx context.Context, t domain.TicketType) (domain.FeeSchedule, error) {
	values, err := s.values(ctx)
	if err != nil {
		return domain.FeeSchedule{}, err
	}
	ticketFee, err := parseMoney(values, TicketFeeKey(t))
	if err != nil {
		return domain.FeeSchedule{}, err
	}
	transportFee, err := parseMoney(values, TransportFeeKey(t))
	if err != nil {
		return domain.FeeSchedule{}, err
	}
	return domain.FeeSchedule{TicketFee: ticketFee, TransportFee: transportFee}, nil
}

// DispatchRatio returns the maintenance:installation cycle, falling back to the configured
// default when unset or unusable.
func (s *Store) DispatchRatio(ctx context.Context) (domain.DispatchRatio, error) {
	values, err := s.values(ctx)
	if err != nil {
		return domain.DispatchRatio{}, err
	}
	ratio := s.defaultRatio
	if raw, ok := values[keyRatioMaintenance]; ok {
		if ratio.Maintenance, err = strconv.Atoi(raw); err != nil {
			return domain.DispatchRatio{}, fmt.Errorf("setting %s: %w", keyRatioMaintenance, err)
		}
	}
	if raw, ok := values[keyRatioInstallation]; ok {
		if ratio.Installation, err = strconv.Atoi(raw); err != nil {
			return domain.DispatchRatio{}, fmt.Errorf("setting %s: %w", keyRatioInstallation, err)
		}
	}
	return ratio.Normalize(s.defaultRatio), nil
}

// SetFeeSchedule stores the global fees for a type.
func (s *Store) SetFeeSchedule(ctx context.Context, t domain.TicketType, fees domain.FeeSchedule) error {
	if err := s.repo.Set(ctx, TicketFeeKey(t), fees.TicketFee.String()); err != nil {
		return err
	}
	if err := s.repo.Set(ctx, TransportFeeKey(t), fees.TransportFee.String()); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

// SetDispatchRatio stores the dispatch ratio.
func (s *Store) SetDispatchRatio(ctx context.Context, ratio domain.DispatchRatio) error {
	if err := s.repo.Set(ctx, keyRatioMaintenance, strconv.Itoa(ratio.Maintenance)); err != nil {
		return err
	}
	if err := s.repo.Set(ctx, keyRatioInstallation, strconv.Itoa(ratio.Installation)); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *Store) values(ctx context.Context) (map[string]string, error) {
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, cacheKey)
		if err != nil {
			s.logger.Warn("settings cache read failed", zap.Error(err))
		} else if ok {
			var values map[string]string
			if err := json.Unmarshal([]byte(raw), &values); err == nil {
				return values, nil
			}
		}
	}

	values, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(values); err == nil {
			if err := s.cache.Set(ctx, cacheKey, string(raw), s.ttl); err != nil {
				s.logger.Warn("settings cache write failed", zap.Error(err))
			}
		}
	}
	return values, nil
}

func (s *Store) invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey)
}

func parseMoney(values map[string]string, key string) (domain.Money, error) {
	raw, ok := values[key]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := domain.ParseMoney(raw)
	if err != nil {
		return 0, fmt.Errorf("setting %s: %w", key, err)
	}
	return v, nil
}
