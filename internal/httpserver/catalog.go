package httpserver

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shiken_shop/internal/app"
	"github.com/Skotchmaster/shiken_shop/internal/service"
	"github.com/Skotchmaster/shiken_shop/internal/util"
)

func queryFloat(c echo.Context, name string) (*float64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, bad(name + " must be a number")
	}
	return &f, nil
}

func pageMeta(page, limit, offset int, total int64) map[string]any {
	if page < 1 {
		page = 1
	}
	return map[string]any{
		"page":        page,
		"size":        limit,
		"total":       total,
		"total_pages": (total + int64(limit) - 1) / int64(limit),
		"has_prev":    page > 1,
		"has_next":    int64(offset+limit) < total,
	}
}

func (h *Handler) ListProducts(c echo.Context) error {
	var f service.Filter
	var err error
	if f.MinPrice, err = queryFloat(c, "min_price"); err != nil {
		return err
	}
	if f.MaxPrice, err = queryFloat(c, "max_price"); err != nil {
		return err
	}
	f.DiscountOnly, _ = strconv.ParseBool(c.QueryParam("discount_only"))
	f.Sort = c.QueryParam("sort")

	category := c.QueryParam("category")
	if category == "" {
		category = service.AllCategories
	}
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	offset, limit := util.Calculate(page, util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize))

	var items []service.ProductView
	err = h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		items, err = s.Catalog.ListByCategory(ctx, category, f)
		return err
	})
	if err != nil {
		return h.fail(c, "list_products", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": util.Page(items, offset, limit),
		"meta": pageMeta(page, limit, offset, int64(len(items))),
	})
}

func (h *Handler) SearchProducts(c echo.Context) error {
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var res service.SearchResult
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		res, err = s.Catalog.Search(ctx, c.QueryParam("q"), page, size)
		return err
	})
	if err != nil {
		return h.fail(c, "search_products", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": res.Products,
		"meta": pageMeta(page, limit, offset, res.Total),
	})
}

func (h *Handler) Categories(c echo.Context) error {
	var out []service.CategoryCount
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		out, err = s.Catalog.Categories(ctx)
		return err
	})
	if err != nil {
		return h.fail(c, "categories", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) GetProduct(c echo.Context) error {
	var p service.ProductView
	err := h.do(c, func(ctx context.Context, s *app.Session) (err error) {
		p, err = s.Catalog.GetProduct(ctx, c.Param("id"))
		return err
	})
	if err != nil {
		return h.fail(c, "get_product", err)
	}
	return c.JSON(http.StatusOK, p)
}
