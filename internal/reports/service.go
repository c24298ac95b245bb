package reports

import (
	"context"
	"log/slog"
)

// Service keeps the donor rollups in sync with package item mutations. It
// satisfies the aggregate hooks the shipments write path calls.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// OnItemChanged recomputes the rollups touched by one package item create,
// update or delete. Items without a donor never appear in donor reports.
func (s *Service) OnItemChanged(ctx context.Context, donorID, categoryID *int64, shipmentID int64) error {
	if donorID == nil {
		return nil
	}
	if err := s.repo.RefreshDonorShipment(ctx, *donorID, shipmentID); err != nil {
		return err
	}
	if categoryID == nil {
		return nil
	}
	return s.repo.RefreshDonorCategory(ctx, *donorID, *categoryID)
}

// DeleteShipmentData drops all donor×shipment rows for a shipment being
// cascade-deleted. Donor×category rollups are recomputed afterwards by the
// caller via RefreshDonorCategory.
func (s *Service) DeleteShipmentData(ctx context.Context, shipmentID int64) error {
	return s.repo.DeleteByShipment(ctx, shipmentID)
}

// RefreshDonorCategory recomputes one donor×category rollup.
func (s *Service) RefreshDonorCategory(ctx context.Context, donorID, categoryID *int64) error {
	if donorID == nil || categoryID == nil {
		return nil
	}
	return s.repo.RefreshDonorCategory(ctx, *donorID, *categoryID)
}

func (s *Service) DonorShipments(ctx context.Context) ([]DonorShipmentData, error) {
	return s.repo.ListDonorShipments(ctx)
}

func (s *Service) DonorCategories(ctx context.Context) ([]DonorCategoryData, error) {
	return s.repo.ListDonorCategories(ctx)
}
