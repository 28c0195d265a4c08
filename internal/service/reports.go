package service

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store"
)

func (s *Service) SalesSummary(ctx context.Context, from string, to string) (domain.SalesSummary, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.SalesSummary{}, err
	}

	fromT, _, err := dayRange(from)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	toStart, toEnd, err := dayRange(to)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	if toStart.Before(fromT) {
		return domain.SalesSummary{}, fmt.Errorf("%w: range end before start", store.ErrInvalidInput)
	}

	cacheKey := fmt.Sprintf("reports:sales:%s:%s", fromT.Format("2006-01-02"), toStart.Format("2006-01-02"))
	if payload, hit, err := s.reports.Get(ctx, cacheKey); err == nil && hit {
		var cached domain.SalesSummary
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	}

	summary, err := s.repo.GetSalesSummary(ctx, fromT, toEnd)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	if payload, err := json.Marshal(summary); err == nil {
		if err := s.reports.Set(ctx, cacheKey, payload, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", cacheKey).Msg("report cache write failed")
		}
	}
	return summary, nil
}

func (s *Service) InventoryValuation(ctx context.Context) (domain.InventoryValuation, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.InventoryValuation{}, err
	}
	return s.repo.GetInventoryValuation(ctx)
}

func (s *Service) LowStock(ctx context.Context) ([]domain.LowStockLine, error) {
	threshold := 0
	if settings, err := s.repo.GetSettings(ctx); err == nil {
		threshold = settings.LowStockThreshold
	}
	return s.repo.ListLowStock(ctx, threshold)
}

// Dashboard assembles the summary, valuation, low-stock, and expense
// views in parallel. The result is cached for the configured TTL and
// invalidated whenever inventory or sales change.
func (s *Service) Dashboard(ctx context.Context, date string) (domain.DashboardReport, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.DashboardReport{}, err
	}

	from, to, err := dayRange(date)
	if err != nil {
		return domain.DashboardReport{}, err
	}

	cacheKey := "reports:dashboard:" + from.Format("2006-01-02")
	if payload, hit, err := s.reports.Get(ctx, cacheKey); err == nil && hit {
		var cached domain.DashboardReport
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	}

	var report domain.DashboardReport
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, err := s.repo.GetSalesSummary(gctx, from, to)
		if err != nil {
			return err
		}
		report.Summary = summary
		return nil
	})
	g.Go(func() error {
		valuation, err := s.repo.GetInventoryValuation(gctx)
		if err != nil {
			return err
		}
		report.Valuation = valuation
		return nil
	})
	g.Go(func() error {
		threshold := 0
		if settings, err := s.repo.GetSettings(gctx); err == nil {
			threshold = settings.LowStockThreshold
		}
		lowStock, err := s.repo.ListLowStock(gctx, threshold)
		if err != nil {
			return err
		}
		report.LowStock = lowStock
		return nil
	})
	g.Go(func() error {
		expenses, err := s.repo.ListExpenses(gctx, from, to, 1000)
		if err != nil {
			return err
		}
		total := int64(0)
		for _, expense := range expenses {
			total += expense.AmountCents
		}
		report.ExpensesCents = total
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.DashboardReport{}, err
	}

	if payload, err := json.Marshal(report); err == nil {
		if err := s.reports.Set(ctx, cacheKey, payload, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", cacheKey).Msg("report cache write failed")
		}
	}
	return report, nil
}
