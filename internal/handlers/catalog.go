package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopfront/api/internal/domain"
	"github.com/shopfront/api/internal/catalog"
	"github.com/shopfront/api/internal/services"
)

// CatalogHandlers serves the public product browsing endpoints. They proxy
// the upstream catalog and never require a session.
type CatalogHandlers struct {
	catalogSvc services.CatalogService
}

// NewCatalogHandlers constructs the catalog read endpoints.
func NewCatalogHandlers(catalogSvc services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalogSvc: catalogSvc}
}

// Routes wires the catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.getProducts)
	r.Get("/categories", h.getCategories)
}

type productPayload struct {
	ID          int64                `json:"id"`
	Title       string               `json:"title"`
	Price       float64              `json:"price"`
	Description string               `json:"description"`
	Category    string               `json:"category"`
	Image       string               `json:"image"`
	Rating      productRatingPayload `json:"rating"`
}

type productRatingPayload struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Title:       product.Title,
		Price:       product.Price,
		Description: product.Description,
		Category:    product.Category,
		Image:       product.Image,
		Rating: productRatingPayload{
			Rate:  product.Rating.Rate,
			Count: product.Rating.Count,
		},
	}
}

type productsErrorPayload struct {
	Error      string           `json:"error"`
	Products   []productPayload `json:"products"`
	Status     int              `json:"status,omitempty"`
	StatusText string           `json:"statusText,omitempty"`
}

func (h *CatalogHandlers) getProducts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	products, err := h.catalogSvc.Products(r.Context(), category)
	if err != nil {
		h.writeProductsError(w, err)
		return
	}

	payload := make([]productPayload, 0, len(products))
	for _, product := range products {
		payload = append(payload, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// writeProductsError mirrors the upstream failure shape: the body always
// carries an empty products array so clients can render without branching.
func (h *CatalogHandlers) writeProductsError(w http.ResponseWriter, err error) {
	var statusErr *catalog.StatusError
	if errors.As(err, &statusErr) {
		writeJSONResponse(w, http.StatusInternalServerError, productsErrorPayload{
			Error:      "Failed to fetch products",
			Products:   []productPayload{},
			Status:     statusErr.StatusCode,
			StatusText: statusErr.Status,
		})
		return
	}
	if errors.Is(err, catalog.ErrUpstreamFormat) {
		writeJSONResponse(w, http.StatusInternalServerError, productsErrorPayload{
			Error:    "Invalid data format",
			Products: []productPayload{},
		})
		return
	}
	writeJSONResponse(w, http.StatusInternalServerError, productsErrorPayload{
		Error:    "Failed to fetch products",
		Products: []productPayload{},
	})
}

type categoriesErrorPayload struct {
	Error      string   `json:"error"`
	Categories []string `json:"categories"`
}

func (h *CatalogHandlers) getCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalogSvc.Categories(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, categoriesErrorPayload{
			Error:      "Failed to fetch categories",
			Categories: []string{},
		})
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSONResponse(w, http.StatusOK, categories)
}
