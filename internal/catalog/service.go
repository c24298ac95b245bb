package catalog

import (
	"context"
	"errors"
	"strings"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListDonors(ctx context.Context) ([]Donor, error) {
	return s.repo.ListDonors(ctx)
}

func (s *Service) GetDonor(ctx context.Context, id int64) (Donor, error) {
	if id <= 0 {
		return Donor{}, errors.New("invalid donor ID")
	}
	return s.repo.GetDonor(ctx, id)
}

func (s *Service) CreateDonor(ctx context.Context, d Donor) (Donor, error) {
	if strings.TrimSpace(d.Name) == "" {
		return Donor{}, errors.New("donor name is required")
	}
	return s.repo.CreateDonor(ctx, d)
}

func (s *Service) UpdateDonor(ctx context.Context, id int64, d Donor) error {
	if id <= 0 {
		return errors.New("invalid donor ID")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("donor name is required")
	}
	return s.repo.UpdateDonor(ctx, id, d)
}

func (s *Service) DeleteDonor(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid donor ID")
	}
	return s.repo.DeleteDonor(ctx, id)
}

func (s *Service) ListDonorCodes(ctx context.Context, donorID int64) ([]DonorCode, error) {
	if donorID <= 0 {
		return nil, errors.New("invalid donor ID")
	}
	return s.repo.ListDonorCodes(ctx, donorID)
}

func (s *Service) CreateDonorCode(ctx context.Context, c DonorCode) (DonorCode, error) {
	if c.DonorID <= 0 {
		return DonorCode{}, errors.New("invalid donor ID")
	}
	if strings.TrimSpace(c.Code) == "" {
		return DonorCode{}, errors.New("donor code is required")
	}
	return s.repo.CreateDonorCode(ctx, c)
}

func (s *Service) DeleteDonorCode(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid donor code ID")
	}
	return s.repo.DeleteDonorCode(ctx, id)
}

func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, sup Supplier) (Supplier, error) {
	if strings.TrimSpace(sup.Name) == "" {
		return Supplier{}, errors.New("supplier name is required")
	}
	return s.repo.CreateSupplier(ctx, sup)
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, sup Supplier) error {
	if id <= 0 {
		return errors.New("invalid supplier ID")
	}
	if strings.TrimSpace(sup.Name) == "" {
		return errors.New("supplier name is required")
	}
	return s.repo.UpdateSupplier(ctx, id, sup)
}

func (s *Service) DeleteSupplier(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid supplier ID")
	}
	return s.repo.DeleteSupplier(ctx, id)
}

func (s *Service) ListTransporters(ctx context.Context) ([]Transporter, error) {
	return s.repo.ListTransporters(ctx)
}

func (s *Service) CreateTransporter(ctx context.Context, t Transporter) (Transporter, error) {
	if strings.TrimSpace(t.Name) == "" {
		return Transporter{}, errors.New("transporter name is required")
	}
	return s.repo.CreateTransporter(ctx, t)
}

func (s *Service) UpdateTransporter(ctx context.Context, id int64, t Transporter) error {
	if id <= 0 {
		return errors.New("invalid transporter ID")
	}
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("transporter name is required")
	}
	return s.repo.UpdateTransporter(ctx, id, t)
}

func (s *Service) DeleteTransporter(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid transporter ID")
	}
	return s.repo.DeleteTransporter(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context) ([]ItemCategory, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, c ItemCategory) (ItemCategory, error) {
	if strings.TrimSpace(c.Name) == "" {
		return ItemCategory{}, errors.New("category name is required")
	}
	return s.repo.CreateCategory(ctx, c)
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, c ItemCategory) error {
	if id <= 0 {
		return errors.New("invalid category ID")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("category name is required")
	}
	return s.repo.UpdateCategory(ctx, id, c)
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid category ID")
	}
	return s.repo.DeleteCategory(ctx, id)
}

func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, errors.New("invalid item ID")
	}
	return s.repo.GetItem(ctx, id)
}

func (s *Service) CreateItem(ctx context.Context, it Item) (Item, error) {
	if err := s.validateItem(it); err != nil {
		return Item{}, err
	}
	return s.repo.CreateItem(ctx, it)
}

func (s *Service) UpdateItem(ctx context.Context, id int64, it Item) error {
	if id <= 0 {
		return errors.New("invalid item ID")
	}
	if err := s.validateItem(it); err != nil {
		return err
	}
	return s.repo.UpdateItem(ctx, id, it)
}

func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid item ID")
	}
	return s.repo.DeleteItem(ctx, id)
}

func (s *Service) validateItem(it Item) error {
	if strings.TrimSpace(it.Description) == "" {
		return errors.New("item description is required")
	}
	if it.PriceUSD < 0 || it.PriceLocal < 0 {
		return errors.New("item prices must be non-negative")
	}
	if it.Weight < 0 {
		return errors.New("item weight must be non-negative")
	}
	return nil
}
