package httpserver

import (
	"github.com/labstack/echo/v4"
)

// Register mounts the storefront API. Every /api/v1 route runs inside a
// session; the admin group additionally requires an admin role claim.
func Register(e *echo.Echo, h *Handler, mw ...echo.MiddlewareFunc) {
	e.GET("/health/live", h.Live)
	e.GET("/health/ready", h.ReadyCheck)

	v1 := e.Group("/api/v1", append(mw, h.Sessions.Attach)...)

	v1.GET("/notifications", h.Notifications)
	v1.DELETE("/session", h.EndSession)

	auth := v1.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/logout", h.Logout)
	auth.GET("/me", h.Me)
	auth.PATCH("/me", h.UpdateProfile)

	products := v1.Group("/products")
	products.GET("", h.ListProducts)
	products.GET("/search", h.SearchProducts)
	products.GET("/categories", h.Categories)
	products.GET("/:id", h.GetProduct)

	cart := v1.Group("/cart")
	cart.GET("", h.GetCart)
	cart.POST("", h.AddToCart)
	cart.DELETE("", h.ClearCart)
	cart.POST("/items/:index/increase", h.IncreaseQuantity())
	cart.POST("/items/:index/decrease", h.DecreaseQuantity())
	cart.DELETE("/items/:index", h.RemoveItem())

	orders := v1.Group("/orders", h.Sessions.RequireLogin)
	orders.POST("", h.Checkout)
	orders.GET("", h.MyOrders)
	orders.GET("/:id", h.GetOrder)
	orders.POST("/:id/cancel", h.CancelOrder)
	orders.POST("/:id/reorder", h.Reorder)

	admin := v1.Group("/admin", h.Sessions.RequireAdmin)
	admin.POST("/products", h.CreateProduct)
	admin.PATCH("/products/:id", h.PatchProduct)
	admin.DELETE("/products/:id", h.DeleteProduct)
	admin.GET("/orders", h.AllOrders)
	admin.PATCH("/orders/:id", h.UpdateOrderStatus)
	admin.GET("/users", h.ListUsers)
	admin.PATCH("/users/:email/role", h.ChangeRole)
	admin.GET("/sales", h.Sales)
}
