package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Skotchmaster/shiken_shop/internal/events"
	"github.com/Skotchmaster/shiken_shop/internal/models"
	"github.com/Skotchmaster/shiken_shop/internal/notify"
	"github.com/Skotchmaster/shiken_shop/internal/pricing"
	"github.com/Skotchmaster/shiken_shop/internal/search"
	"github.com/Skotchmaster/shiken_shop/internal/util"
	"github.com/Skotchmaster/shiken_shop/pkg/logging"
)

const (
	SortName      = "name"
	SortPriceAsc  = "price-asc"
	SortPriceDesc = "price-desc"
	SortRating    = "rating"
	SortNewest    = "newest"
)

const AllCategories = "all"

type CatalogService struct {
	Deps
	Index search.Index
}

type Filter struct {
	MinPrice     *float64
	MaxPrice     *float64
	DiscountOnly bool
	Sort         string
}

type ProductView struct {
	models.Product
	FinalPrice float64 `json:"finalPrice"`
}

func viewOf(p models.Product) ProductView {
	return ProductView{Product: p, FinalPrice: pricing.ProductPrice(p)}
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type SearchResult struct {
	Total    int64         `json:"total"`
	Products []ProductView `json:"products"`
}

func sortProducts(views []ProductView, by string) error {
	var less func(a, b ProductView) bool
	switch by {
	case "":
		return nil
	case SortName:
		less = func(a, b ProductView) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case SortPriceAsc:
		less = func(a, b ProductView) bool { return a.FinalPrice < b.FinalPrice }
	case SortPriceDesc:
		less = func(a, b ProductView) bool { return a.FinalPrice > b.FinalPrice }
	case SortRating:
		less = func(a, b ProductView) bool { return a.Rating > b.Rating }
	case SortNewest:
		less = func(a, b ProductView) bool { return a.CreatedAt.After(b.CreatedAt) }
	default:
		return fmt.Errorf("unknown sort %q: %w", by, ErrValidation)
	}
	sort.SliceStable(views, func(i, j int) bool { return less(views[i], views[j]) })
	return nil
}

func (s *CatalogService) ListByCategory(ctx context.Context, category string, f Filter) ([]ProductView, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.list")

	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return nil, fmt.Errorf("min price above max price: %w", ErrValidation)
	}

	products, err := s.Repo.Products(ctx)
	if err != nil {
		l.Error("list_products_error", "status", 500, "error", err)
		return nil, err
	}

	category = normalizeCategory(category)
	out := make([]ProductView, 0, len(products))
	for _, p := range products {
		if !p.Active() {
			continue
		}
		if category != "" && category != AllCategories && p.Category != category {
			continue
		}
		v := viewOf(p)
		if f.MinPrice != nil && v.FinalPrice < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && v.FinalPrice > *f.MaxPrice {
			continue
		}
		if f.DiscountOnly && p.Discount <= 0 {
			continue
		}
		out = append(out, v)
	}

	if err := sortProducts(out, f.Sort); err != nil {
		l.Warn("list_products_error", "status", 400, "reason", err.Error())
		return nil, err
	}
	return out, nil
}

func (s *CatalogService) Categories(ctx context.Context) ([]CategoryCount, error) {
	products, err := s.Repo.Products(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, p := range products {
		if p.Active() {
			counts[p.Category]++
		}
	}
	out := make([]CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// GetProduct hides inactive products from everyone but admins.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (ProductView, error) {
	products, err := s.Repo.Products(ctx)
	if err != nil {
		return ProductView{}, err
	}
	i := findProduct(products, id)
	if i < 0 {
		return ProductView{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if !products[i].Active() {
		if u, err := s.currentUser(ctx); err != nil || u == nil || u.Role != models.RoleAdmin {
			return ProductView{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
	}
	return viewOf(products[i]), nil
}

func (s *CatalogService) Search(ctx context.Context, query string, page, size int) (SearchResult, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.search")

	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, fmt.Errorf("query required: %w", ErrValidation)
	}
	offset, limit := util.Calculate(page, size)

	products, err := s.Repo.Products(ctx)
	if err != nil {
		l.Error("search_error", "status", 500, "error", err)
		return SearchResult{}, err
	}

	if s.Index != nil {
		res, err := s.Index.Search(ctx, query, offset, limit)
		if err == nil {
			out := make([]ProductView, 0, len(res.IDs))
			for _, id := range res.IDs {
				if i := findProduct(products, id); i >= 0 && products[i].Active() {
					out = append(out, viewOf(products[i]))
				}
			}
			return SearchResult{Total: res.Total, Products: out}, nil
		}
		l.Warn("search_error", "reason", "elasticsearch unavailable, using local match", "error", err)
	}

	matched := make([]ProductView, 0)
	for _, p := range products {
		if p.Active() && search.Match(p, query) {
			matched = append(matched, viewOf(p))
		}
	}
	return SearchResult{
		Total:    int64(len(matched)),
		Products: util.Page(matched, offset, limit),
	}, nil
}

type ProductInput struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"        validate:"required,min=1,max=120"`
	Category    string  `json:"category"    validate:"required,max=40"`
	Price       float64 `json:"price"       validate:"gte=0"`
	Discount    float64 `json:"discount"    validate:"gte=0,lte=100"`
	Stock       int     `json:"stock"       validate:"gte=0"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Rating      float64 `json:"rating"      validate:"gte=0,lte=5"`
	Disabled    bool    `json:"disabled"`
}

// ProductPatch changes only the fields that are set.
type ProductPatch struct {
	Name        *string  `json:"name"`
	Category    *string  `json:"category"`
	Price       *float64 `json:"price"`
	Discount    *float64 `json:"discount"`
	Stock       *int     `json:"stock"`
	Description *string  `json:"description"`
	Image       *string  `json:"image"`
	Rating      *float64 `json:"rating"`
	Disabled    *bool    `json:"disabled"`
}

func inputOf(p models.Product) ProductInput {
	return ProductInput{
		ID: p.ID, Name: p.Name, Category: p.Category, Price: p.Price,
		Discount: p.Discount, Stock: p.Stock, Description: p.Description,
		Image: p.Image, Rating: p.Rating, Disabled: p.Disabled,
	}
}

func (in ProductInput) apply(p *models.Product) {
	p.Name = in.Name
	p.Category = in.Category
	p.Price = in.Price
	p.Discount = in.Discount
	p.Stock = in.Stock
	p.Description = in.Description
	p.Image = in.Image
	p.Rating = in.Rating
	p.Disabled = in.Disabled
}

func (pt ProductPatch) apply(in *ProductInput) {
	if pt.Name != nil {
		in.Name = strings.TrimSpace(*pt.Name)
	}
	if pt.Category != nil {
		in.Category = normalizeCategory(*pt.Category)
	}
	if pt.Price != nil {
		in.Price = *pt.Price
	}
	if pt.Discount != nil {
		in.Discount = *pt.Discount
	}
	if pt.Stock != nil {
		in.Stock = *pt.Stock
	}
	if pt.Description != nil {
		in.Description = *pt.Description
	}
	if pt.Image != nil {
		in.Image = *pt.Image
	}
	if pt.Rating != nil {
		in.Rating = *pt.Rating
	}
	if pt.Disabled != nil {
		in.Disabled = *pt.Disabled
	}
}

func productValidationError(err error) error {
	return fmt.Errorf("invalid product: %v: %w", err, ErrValidation)
}

// nextProductID returns <category>-<n> with n one above the highest n in use.
func nextProductID(products []models.Product, category string) string {
	prefix := category + "-"
	highest := 0
	for _, p := range products {
		if !strings.HasPrefix(p.ID, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(p.ID, prefix)); err == nil && n > highest {
			highest = n
		}
	}
	return prefix + strconv.Itoa(highest+1)
}

func (s *CatalogService) index(ctx context.Context, p models.Product) {
	if s.Index == nil {
		return
	}
	if err := s.Index.IndexProduct(ctx, p); err != nil {
		logging.FromContext(ctx).Error("search_index_error", "product", p.ID, "error", err)
	}
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (ProductView, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.create_product")

	if _, err := s.requireAdmin(ctx); err != nil {
		l.Warn("create_product_error", "status", 403, "reason", err.Error())
		return ProductView{}, err
	}

	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	in.Category = normalizeCategory(in.Category)
	if err := validate.Struct(in); err != nil {
		l.Warn("create_product_error", "status", 400, "error", err)
		return ProductView{}, productValidationError(err)
	}

	products, err := s.Repo.Products(ctx)
	if err != nil {
		l.Error("create_product_error", "status", 500, "error", err)
		return ProductView{}, err
	}
	if in.ID == "" {
		in.ID = nextProductID(products, in.Category)
	} else if findProduct(products, in.ID) >= 0 {
		l.Warn("create_product_error", "status", 409, "reason", "duplicate id", "id", in.ID)
		return ProductView{}, fmt.Errorf("product %s: %w", in.ID, ErrConflict)
	}

	now := s.now()
	p := models.Product{ID: in.ID, CreatedAt: now, UpdatedAt: now}
	in.apply(&p)
	products = append(products, p)
	if err := s.Repo.SaveProducts(ctx, products); err != nil {
		l.Error("create_product_error", "status", 500, "error", err)
		return ProductView{}, err
	}

	s.index(ctx, p)
	s.publish(ctx, events.TopicProduct, p.ID, map[string]any{
		"type":      "product_created",
		"productId": p.ID,
		"category":  p.Category,
		"price":     p.Price,
		"stock":     p.Stock,
	})
	s.toast(notify.Success, "Product created")
	l.Info("create_product_success", "id", p.ID)
	return viewOf(p), nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (ProductView, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.update_product", "id", id)

	if _, err := s.requireAdmin(ctx); err != nil {
		l.Warn("update_product_error", "status", 403, "reason", err.Error())
		return ProductView{}, err
	}

	products, err := s.Repo.Products(ctx)
	if err != nil {
		l.Error("update_product_error", "status", 500, "error", err)
		return ProductView{}, err
	}
	i := findProduct(products, id)
	if i < 0 {
		return ProductView{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}

	in := inputOf(products[i])
	patch.apply(&in)
	if err := validate.Struct(in); err != nil {
		l.Warn("update_product_error", "status", 400, "error", err)
		return ProductView{}, productValidationError(err)
	}
	in.apply(&products[i])
	products[i].UpdatedAt = s.now()

	if err := s.Repo.SaveProducts(ctx, products); err != nil {
		l.Error("update_product_error", "status", 500, "error", err)
		return ProductView{}, err
	}

	p := products[i]
	s.index(ctx, p)
	s.publish(ctx, events.TopicProduct, p.ID, map[string]any{
		"type":      "product_updated",
		"productId": p.ID,
		"price":     p.Price,
		"discount":  p.Discount,
		"stock":     p.Stock,
		"disabled":  p.Disabled,
	})
	s.toast(notify.Success, "Product updated")
	l.Info("update_product_success")
	return viewOf(p), nil
}

func (s *CatalogService) SetStock(ctx context.Context, id string, stock int) (ProductView, error) {
	return s.UpdateProduct(ctx, id, ProductPatch{Stock: &stock})
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	l := logging.FromContext(ctx).With("svc", "catalog.delete_product", "id", id)

	if _, err := s.requireAdmin(ctx); err != nil {
		l.Warn("delete_product_error", "status", 403, "reason", err.Error())
		return err
	}

	products, err := s.Repo.Products(ctx)
	if err != nil {
		l.Error("delete_product_error", "status", 500, "error", err)
		return err
	}
	i := findProduct(products, id)
	if i < 0 {
		return fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	products = append(products[:i], products[i+1:]...)
	if err := s.Repo.SaveProducts(ctx, products); err != nil {
		l.Error("delete_product_error", "status", 500, "error", err)
		return err
	}

	if s.Index != nil {
		if err := s.Index.DeleteProduct(ctx, id); err != nil {
			l.Error("search_delete_error", "error", err)
		}
	}
	s.publish(ctx, events.TopicProduct, id, map[string]any{
		"type":      "product_deleted",
		"productId": id,
	})
	s.toast(notify.Success, "Product deleted")
	l.Info("delete_product_success")
	return nil
}

// Reindex pushes every product to the search index.
func (s *CatalogService) Reindex(ctx context.Context) (int, error) {
	if s.Index == nil {
		return 0, nil
	}
	products, err := s.Repo.Products(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range products {
		if err := s.Index.IndexProduct(ctx, p); err != nil {
			return 0, err
		}
	}
	return len(products), nil
}
