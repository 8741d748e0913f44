package service

import (
	"context"
	"strings"

	"billease/backend/internal/domain"
)

// ListTransactions returns transactions for a store between two inclusive
// dates, newest first.
func (s *Service) ListTransactions(ctx context.Context, storeID string, from string, to string, limit int) ([]domain.Transaction, error) {
	if strings.TrimSpace(storeID) == "" {
		storeID = s.opts.DefaultStoreID
	}
	if limit < 1 || limit > 500 {
		limit = 200
	}
	start, end, err := dayRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, storeID, start, end, limit)
}

func (s *Service) SalesSummary(ctx context.Context, storeID string, from string, to string) (domain.SalesSummary, error) {
	if strings.TrimSpace(storeID) == "" {
		storeID = s.opts.DefaultStoreID
	}
	start, end, err := dayRange(from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary, err := s.repo.GetSalesSummary(ctx, storeID, start, end)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	summary.StoreID = storeID
	summary.From = start.Format("2006-01-02")
	summary.To = end.AddDate(0, 0, -1).Format("2006-01-02")
	return summary, nil
}
