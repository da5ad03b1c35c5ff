package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MikeMC777/inventario/internal/apperr"
	"github.com/MikeMC777/inventario/internal/auth"
	"github.com/MikeMC777/inventario/internal/catalog"
	"github.com/MikeMC777/inventario/internal/httpx"
	"github.com/MikeMC777/inventario/internal/inventory"
	"github.com/MikeMC777/inventario/internal/order"
	"github.com/MikeMC777/inventario/internal/user"
)

// authService is the part of auth.Guard the handlers need.
type authService interface {
	httpx.Authenticator
	Register(ctx context.Context, caller *auth.Principal, in user.RegisterRequest) (*user.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	ChangePassword(ctx context.Context, p auth.Principal, oldPassword, newPassword string) error
}

type orderService interface {
	PlaceOrder(ctx context.Context, p auth.Principal, lines []order.CreateOrderLine) (*order.Order, error)
	ListOrders(ctx context.Context, p auth.Principal) ([]order.Order, error)
	GetOrder(ctx context.Context, p auth.Principal, id string) (*order.Order, error)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func principal(c *gin.Context) auth.Principal {
	p, _ := httpx.PrincipalFrom(c)
	return p
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		httpx.WriteError(c, apperr.Invalid("invalid json: "+err.Error()))
		return false
	}
	return true
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	return limit, offset
}

//
// ---------- auth ----------
//

// registerHandler is public; a bearer token, when sent, must be valid and
// identifies the caller creating the account.
func registerHandler(svc authService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var caller *auth.Principal
		if h := c.GetHeader("Authorization"); h != "" {
			p, err := svc.Authenticate(c.Request.Context(), h)
			if err != nil {
				c.Header("WWW-Authenticate", "Bearer")
				httpx.WriteError(c, err)
				return
			}
			caller = &p
		}
		var in user.RegisterRequest
		if !bindJSON(c, &in) {
			return
		}
		u, err := svc.Register(c.Request.Context(), caller, in)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

// loginHandler accepts a JSON body or an OAuth2 password form.
func loginHandler(svc authService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in user.LoginRequest
		if c.ContentType() == "application/x-www-form-urlencoded" {
			in.Username, in.Password = c.PostForm("username"), c.PostForm("password")
		} else if !bindJSON(c, &in) {
			return
		}
		token, err := svc.Login(c.Request.Context(), in.Username, in.Password)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
	}
}

func profileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, principal(c))
	}
}

func changePasswordHandler(svc authService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in user.PasswordChangeRequest
		if !bindJSON(c, &in) {
			return
		}
		if err := svc.ChangePassword(c.Request.Context(), principal(c), in.OldPassword, in.NewPassword); err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func adminHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome, admin " + principal(c).Username})
	}
}

//
// ---------- items ----------
//

// categoryExists turns a missing category into the item-level error.
func categoryExists(ctx context.Context, cats catalog.CategoryRepository, id string) error {
	if _, err := cats.GetByID(ctx, id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return inventory.ErrUnknownCategory
		}
		return err
	}
	return nil
}

// ownedItem loads an item and checks the caller may touch it.
func ownedItem(c *gin.Context, items inventory.Repository) (*inventory.Item, bool) {
	it, err := items.GetByID(c.Request.Context(), c.Param("id"))
	if err == nil {
		err = auth.Authorize(principal(c), it.CreatedBy)
	}
	if err != nil {
		httpx.WriteError(c, err)
		return nil, false
	}
	return it, true
}

func listItemsHandler(items inventory.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pageParams(c)
		q := inventory.Query{
			SKU:        strings.TrimSpace(c.Query("sku")),
			Name:       strings.TrimSpace(c.Query("name")),
			CategoryID: strings.TrimSpace(c.Query("category_id")),
			OwnerID:    principal(c).OwnerFilter(),
			Limit:      limit,
			Offset:     offset,
		}.Normalized()
		list, err := items.List(c.Request.Context(), q)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, inventory.ListResponse{Limit: q.Limit, Offset: q.Offset, Items: list})
	}
}

func getItemHandler(items inventory.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if it, ok := ownedItem(c, items); ok {
			c.JSON(http.StatusOK, it)
		}
	}
}

func createItemHandler(items inventory.Repository, cats catalog.CategoryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in inventory.CreateItemRequest
		if !bindJSON(c, &in) {
			return
		}
		price, err := inventory.ParsePrice(strings.TrimSpace(in.Price))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		it := &inventory.Item{
			ID:          uuid.NewString(),
			SKU:         strings.TrimSpace(in.SKU),
			Name:        strings.TrimSpace(in.Name),
			Description: in.Description,
			Quantity:    in.Quantity,
			Price:       price,
			CategoryID:  strings.TrimSpace(in.CategoryID),
			CreatedBy:   principal(c).ID,
		}
		if err := it.Validate(); err != nil {
			httpx.WriteError(c, err)
			return
		}
		if err := categoryExists(c.Request.Context(), cats, it.CategoryID); err != nil {
			httpx.WriteError(c, err)
			return
		}
		if err := items.Create(c.Request.Context(), it, in.Supplier); err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, it)
	}
}

func updateItemHandler(items inventory.Repository, cats catalog.CategoryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in inventory.UpdateItemRequest
		if !bindJSON(c, &in) {
			return
		}
		p := inventory.Patch{
			SKU:         in.SKU,
			Name:        in.Name,
			Description: in.Description,
			Quantity:    in.Quantity,
			CategoryID:  in.CategoryID,
		}
		if in.Price != nil {
			price, err := inventory.ParsePrice(strings.TrimSpace(*in.Price))
			if err != nil {
				httpx.WriteError(c, err)
				return
			}
			p.Price = &price
		}
		it, ok := ownedItem(c, items)
		if !ok {
			return
		}
		if p.CategoryID != nil && *p.CategoryID != it.CategoryID {
			if err := categoryExists(c.Request.Context(), cats, *p.CategoryID); err != nil {
				httpx.WriteError(c, err)
				return
			}
		}
		updated, err := items.Update(c.Request.Context(), it.ID, p)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func deleteItemHandler(items inventory.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		it, ok := ownedItem(c, items)
		if !ok {
			return
		}
		deleted, err := items.Delete(c.Request.Context(), it.ID)
		if err == nil && !deleted {
			err = inventory.ErrNotFound
		}
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

//
// ---------- dashboard ----------
//

func summaryHandler(items inventory.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := items.Summary(c.Request.Context(), principal(c).ID)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

func lowStockHandler(items inventory.Repository, threshold int) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := items.LowStock(c.Request.Context(), principal(c).ID, threshold)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

//
// ---------- categories & suppliers ----------
//

func catalogQuery(c *gin.Context) catalog.Query {
	limit, offset := pageParams(c)
	return catalog.Query{Search: strings.TrimSpace(c.Query("search")), Limit: limit, Offset: offset}
}

func listCategoriesHandler(repo catalog.CategoryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := repo.List(c.Request.Context(), catalogQuery(c))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func getCategoryHandler(repo catalog.CategoryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		cat, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, cat)
	}
}

func createCategoryHandler(repo catalog.CategoryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in catalog.CategoryRequest
		if !bindJSON(c, &in) {
			return
		}
		cat, err := in.NewCategory()
		if err == nil {
			err = repo.Create(c.Request.Context(), cat)
		}
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cat)
	}
}

func updateCategoryHandler(repo catalog.CategoryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in catalog.CategoryRequest
		if !bindJSON(c, &in) {
			return
		}
		cat, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err == nil {
			err = in.Apply(cat)
		}
		if err == nil {
			err = repo.Update(c.Request.Context(), cat)
		}
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, cat)
	}
}

func deleteCategoryHandler(repo catalog.CategoryRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := repo.Delete(c.Request.Context(), c.Param("id"))
		if err == nil && !deleted {
			err = catalog.ErrNotFound
		}
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listSuppliersHandler(repo catalog.SupplierRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := repo.List(c.Request.Context(), catalogQuery(c))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func getSupplierHandler(repo catalog.SupplierRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

func createSupplierHandler(repo catalog.SupplierRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in catalog.SupplierRequest
		if !bindJSON(c, &in) {
			return
		}
		s, err := in.NewSupplier()
		if err == nil {
			err = repo.Create(c.Request.Context(), s)
		}
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, s)
	}
}

func updateSupplierHandler(repo catalog.SupplierRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in catalog.SupplierRequest
		if !bindJSON(c, &in) {
			return
		}
		s, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err == nil {
			err = in.Apply(s)
		}
		if err == nil {
			err = repo.Update(c.Request.Context(), s)
		}
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

func deleteSupplierHandler(repo catalog.SupplierRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := repo.Delete(c.Request.Context(), c.Param("id"))
		if err == nil && !deleted {
			err = catalog.ErrNotFound
		}
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

//
// ---------- orders ----------
//

func createOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in order.CreateOrderRequest
		if !bindJSON(c, &in) {
			return
		}
		o, err := svc.PlaceOrder(c.Request.Context(), principal(c), in.Items)
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.Header("Location", fmt.Sprintf("/orders/%s", o.ID))
		c.JSON(http.StatusCreated, o)
	}
}

func listOrdersHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListOrders(c.Request.Context(), principal(c))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, order.ListResponse{Orders: list})
	}
}

func getOrderHandler(svc orderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.GetOrder(c.Request.Context(), principal(c), c.Param("id"))
		if err != nil {
			httpx.WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}
