package service

import (
	"context"
	"errors"
	"testing"

	"karyarasa/internal/repository"
)

func TestCart_AddCreatesLazily(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	buyer, pa, _ := seedCatalog(t, f)

	// no cart yet
	if _, err := f.carts.GetByUser(ctx, buyer.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected no cart, got %v", err)
	}

	item, err := f.cartSvc.AddItem(ctx, buyer.ID, pa.ID, 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if item.ID == 0 || item.Quantity != 2 {
		t.Fatalf("item: %+v", item)
	}

	// adding the same product again merges
	item, err = f.cartSvc.AddItem(ctx, buyer.ID, pa.ID, 3)
	if err != nil || item.Quantity != 5 {
		t.Fatalf("merge: %+v %v", item, err)
	}

	cart, err := f.cartSvc.GetCart(ctx, buyer.ID)
	if err != nil || len(cart.Items) != 1 || cart.Items[0].Quantity != 5 {
		t.Fatalf("cart: %+v %v", cart, err)
	}
}

func TestCart_AddUnknownProduct(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	buyer, _, _ := seedCatalog(t, f)

	if _, err := f.cartSvc.AddItem(ctx, buyer.ID, 999, 1); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.cartSvc.AddItem(ctx, buyer.ID, 1, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for qty 0, got %v", err)
	}
}

func TestCart_GetMissingIsEmpty(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	buyer, _, _ := seedCatalog(t, f)

	cart, err := f.cartSvc.GetCart(ctx, buyer.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}
}

func TestCart_RemoveItem(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	buyer, pa, pb := seedCatalog(t, f)
	fillCart(t, f, buyer.ID, map[int64]int64{pa.ID: 1, pb.ID: 1})

	if err := f.cartSvc.RemoveItem(ctx, buyer.ID, pa.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	cart, _ := f.cartSvc.GetCart(ctx, buyer.ID)
	if len(cart.Items) != 1 || cart.Items[0].ProductID != pb.ID {
		t.Fatalf("cart after remove: %+v", cart.Items)
	}

	if err := f.cartSvc.RemoveItem(ctx, buyer.ID, pa.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("removing absent item: %v", err)
	}
}
