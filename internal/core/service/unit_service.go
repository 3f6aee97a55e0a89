package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/port"
)

type UnitService struct {
	units port.UnitRepository
}

func NewUnitService(units port.UnitRepository) *UnitService {
	return &UnitService{units: units}
}

func (s *UnitService) ListUnits(ctx context.Context) ([]domain.UnitWithConversions, error) {
	units, err := s.units.ListUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	convs, err := s.units.ListConversions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}

	out := make([]domain.UnitWithConversions, 0, len(units))
	for _, u := range units {
		entry := domain.UnitWithConversions{
			UnitOfMeasure:   u,
			ConversionsFrom: []domain.UomConversion{},
			ConversionsTo:   []domain.UomConversion{},
		}
		for _, c := range convs {
			if c.FromUomID == u.ID {
				entry.ConversionsFrom = append(entry.ConversionsFrom, c)
			}
			if c.ToUomID == u.ID {
				entry.ConversionsTo = append(entry.ConversionsTo, c)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

type seedConversion struct {
	from, to string
	factor   string
}

var (
	seedUnits = []domain.UnitOfMeasure{
		{Name: "Kilogram", Symbol: "KG", IsBase: true},
		{Name: "Gram", Symbol: "GM", IsBase: false},
		{Name: "Litre", Symbol: "LT", IsBase: true},
		{Name: "Millilitre", Symbol: "ML", IsBase: false},
	}
	seedConversions = []seedConversion{
		{from: "GM", to: "KG", factor: "0.001"},
		{from: "ML", to: "LT", factor: "0.001"},
	}
)

// SeedDefaults installs the standard mass and volume units and their conversions. Running it
// again leaves existing units in place and resets the seeded factors.
func (s *UnitService) SeedDefaults(ctx context.Context) (map[string]domain.UnitOfMeasure, error) {
	bySymbol := make(map[string]domain.UnitOfMeasure, len(seedUnits))
	for _, u := range seedUnits {
		u.ID = uuid.NewString()
		stored, err := s.units.UpsertUnit(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("seed unit %s: %w", u.Symbol, err)
		}
		bySymbol[stored.Symbol] = stored
	}

	for _, c := range seedConversions {
		conv := domain.UomConversion{
			ID:        uuid.NewString(),
			FromUomID: bySymbol[c.from].ID,
			ToUomID:   bySymbol[c.to].ID,
			Factor:    decimal.RequireFromString(c.factor),
		}
		if err := s.units.UpsertConversion(ctx, conv); err != nil {
			return nil, fmt.Errorf("seed conversion %s->%s: %w", c.from, c.to, err)
		}
	}
	return bySymbol, nil
}
