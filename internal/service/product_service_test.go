package service

import (
	"context"
	"errors"
	"testing"

	"karyarasa/internal/domain"
	"karyarasa/internal/repository"
)

func TestProductCreate_RequiresExistingCategory(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seller, _ := f.users.Create(ctx, domain.User{Name: "S", Email: "s@example.com"})

	_, err := f.products.Create(ctx, domain.Product{
		Name: "A", CategoryID: 42, SellerID: seller.ID, Price: dec("10.00"), Stock: 1,
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for missing category, got %v", err)
	}

	cat, _ := f.products.CreateCategory(ctx, domain.Category{Name: "Batik"})
	p, err := f.products.Create(ctx, domain.Product{
		Name: "A", CategoryID: cat.ID, SellerID: seller.ID, Price: dec("10.00"), Stock: 1,
	})
	if err != nil || p.ID == 0 {
		t.Fatalf("create: %v", err)
	}
}

func TestProductCreate_InvalidInput(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	cases := []domain.Product{
		{Name: "", CategoryID: 1, SellerID: 1, Price: dec("10.00"), Stock: 1},
		{Name: "A", CategoryID: 0, SellerID: 1, Price: dec("10.00"), Stock: 1},
		{Name: "A", CategoryID: 1, SellerID: 1, Price: dec("0"), Stock: 1},
		{Name: "A", CategoryID: 1, SellerID: 1, Price: dec("-5.00"), Stock: 1},
		{Name: "A", CategoryID: 1, SellerID: 1, Price: dec("10.00"), Stock: -1},
	}
	for i, p := range cases {
		if _, err := f.products.Create(ctx, p); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestProductUpdate_Partial(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	seller, _ := f.users.Create(ctx, domain.User{Name: "S", Email: "s@example.com"})
	cat, _ := f.products.CreateCategory(ctx, domain.Category{Name: "Batik"})
	p, err := f.products.Create(ctx, domain.Product{
		Name: "A", Description: "old", CategoryID: cat.ID, SellerID: seller.ID,
		Price: dec("10.00"), Stock: 5,
	})
	if err != nil {
		t.Fatal(err)
	}

	// only price changes; the rest keeps its value
	upd, err := f.products.Update(ctx, p.ID, ProductUpdate{Price: decPtr("12.00")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Name != "A" || upd.Description != "old" || !upd.Price.Equal(dec("12.00")) || upd.Stock != 5 {
		t.Fatalf("partial update broke fields: %+v", upd)
	}

	// stock 0 is a real value, not "field omitted"
	zero := int64(0)
	upd, err = f.products.Update(ctx, p.ID, ProductUpdate{Stock: &zero})
	if err != nil || upd.Stock != 0 || !upd.Price.Equal(dec("12.00")) {
		t.Fatalf("stock update: %+v %v", upd, err)
	}

	// switching to a missing category fails
	missing := int64(99)
	if _, err := f.products.Update(ctx, p.ID, ProductUpdate{CategoryID: &missing}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCategoryCRUD(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	if _, err := f.products.CreateCategory(ctx, domain.Category{Name: ""}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty name: %v", err)
	}
	cat, err := f.products.CreateCategory(ctx, domain.Category{Name: "Home Decor"})
	if err != nil {
		t.Fatal(err)
	}
	list, _ := f.products.ListCategories(ctx)
	if len(list) != 1 {
		t.Fatalf("list: %+v", list)
	}
	if err := f.products.DeleteCategory(ctx, cat.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.products.GetCategory(ctx, cat.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
