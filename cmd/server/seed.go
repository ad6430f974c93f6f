package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// seedCatalog creates products (SKU:Name:Price) and warehouses (Name:Capacity) and logs
// the ids they were given.
func seedCatalog(ctx context.Context, db port.DatabaseRepository, products, warehouses []string, logger *zap.Logger) error {
	for _, raw := range products {
		p, err := parseProduct(raw)
		if err != nil {
			return err
		}
		if err := db.CreateProduct(ctx, p); err != nil {
			return errors.Wrapf(err, "seed product %s", p.SKU)
		}
		logger.Info("seeded product", zap.String("id", p.ID.String()), zap.String("sku", p.SKU))
	}

	for _, raw := range warehouses {
		w, err := parseWarehouse(raw)
		if err != nil {
			return err
		}
		if err := db.CreateWarehouse(ctx, w); err != nil {
			return errors.Wrapf(err, "seed warehouse %s", w.Name)
		}
		logger.Info("seeded warehouse", zap.String("id", w.ID.String()), zap.String("name", w.Name))
	}
	return nil
}

func parseProduct(raw string) (domain.Product, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return domain.Product{}, errors.Errorf("product %q: want SKU:Name:Price", raw)
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return domain.Product{}, errors.Wrapf(err, "product %q price", raw)
	}
	return domain.Product{
		ID:        uuid.New(),
		SKU:       parts[0],
		Name:      parts[1],
		UnitPrice: price,
		Version:   1,
	}, nil
}

func parseWarehouse(raw string) (domain.Warehouse, error) {
	parts := strings.SplitN(raw, ":", 2)
	w := domain.Warehouse{ID: uuid.New(), Name: parts[0], Active: true}
	if w.Name == "" {
		return domain.Warehouse{}, errors.Errorf("warehouse %q: name is required", raw)
	}
	if len(parts) == 2 {
		capacity, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return domain.Warehouse{}, errors.Wrapf(err, "warehouse %q capacity", raw)
		}
		w.Capacity = capacity
	}
	return w, nil
}
