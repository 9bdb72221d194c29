package settings

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/fieldops/dispatch-service/internal/domain"
	"github.com/fieldops/dispatch-service/internal/repository"
)

// Seed is the YAML shape of initial settings.
//
//	fees:
//	  home_maintenance: {ticket_fee: 50000, transport_fee: 15000}
//	dispatch_ratio: {maintenance: 4, installation: 2}
type Seed struct {
	Fees          map[domain.TicketType]SeedFee `yaml:"fees"`
	DispatchRatio *SeedRatio                    `yaml:"dispatch_ratio"`
}

// SeedFee is one fee schedule entry.
type SeedFee struct {
	TicketFee    float64 `yaml:"ticket_fee"`
	TransportFee float64 `yaml:"transport_fee"`
}

// SeedRatio is the dispatch ratio entry.
type SeedRatio struct {
	Maintenance  int `yaml:"maintenance"`
	Installation int `yaml:"installation"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings seed: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes seed YAML.
func ParseSeed(raw []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse settings seed: %w", err)
	}
	for t, fee := range seed.Fees {
		if !t.Valid() {
			return nil, fmt.Errorf("settings seed: unknown ticket type %q", t)
		}
		if fee.TicketFee < 0 || fee.TransportFee < 0 {
			return nil, fmt.Errorf("settings seed: negative fee for %s", t)
		}
	}
	if r := seed.DispatchRatio; r != nil && (r.Maintenance < 0 || r.Installation < 0 || r.Maintenance+r.Installation == 0) {
		return nil, fmt.Errorf("settings seed: invalid dispatch ratio %d:%d", r.Maintenance, r.Installation)
	}
	return &seed, nil
}

// Apply writes seed values for keys that are not set yet and returns how many were written.
func (s *Seed) Apply(ctx context.Context, repo repository.SettingsRepository) (int, error) {
	existing, err := repo.All(ctx)
	if err != nil {
		return 0, err
	}
	pending := map[string]string{}
	for t, fee := range s.Fees {
		pending[TicketFeeKey(t)] = domain.MoneyFromFloat(fee.TicketFee).String()
		pending[TransportFeeKey(t)] = domain.MoneyFromFloat(fee.TransportFee).String()
	}
	if s.DispatchRatio != nil {
		pending[keyRatioMaintenance] = strconv.Itoa(s.DispatchRatio.Maintenance)
		pending[keyRatioInstallation] = strconv.Itoa(s.DispatchRatio.Installation)
	}

	written := 0
	for key, value := range pending {
		if _, ok := existing[key]; ok {
			continue
		}
		if err := repo.Set(ctx, key, value); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// ApplySeed writes missing seed values through the store and drops the cached copy.
func (s *Store) ApplySeed(ctx context.Context, seed *Seed) (int, error) {
	written, err := seed.Apply(ctx, s.repo)
	if err != nil {
		return written, err
	}
	return written, s.invalidate(ctx)
}
