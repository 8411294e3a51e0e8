package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/middleware"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// FoodHandler serves the catalog.
type FoodHandler struct {
	catalog   store.Catalog
	jwtSecret string
}

// NewFoodHandler creates a new FoodHandler.
func NewFoodHandler(catalog store.Catalog, jwtSecret string) *FoodHandler {
	return &FoodHandler{catalog: catalog, jwtSecret: jwtSecret}
}

// RegisterRoutes registers catalog endpoints. Expected to be mounted at /foods.
// Browsing is public; adding items is staff only.
func (h *FoodHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.With(middleware.Authenticate(h.jwtSecret), middleware.RequireRole(enum.UserRoleStaff)).Post("/", h.Create)
}

// --- Request / Response types ---

type createFoodRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Category    string `json:"category"`
	Available   *bool  `json:"available"`
}

type foodListResponse struct {
	Foods []order.Food `json:"foods"`
}

// --- Handlers ---

// List returns the menu. ?category= filters, ?available=true hides sold-out items.
func (h *FoodHandler) List(w http.ResponseWriter, r *http.Request) {
	foods, err := h.catalog.ListFoods(r.Context())
	if err != nil {
		writeCatalogError(w, "list foods", err)
		return
	}

	category := r.URL.Query().Get("category")
	onlyAvailable := r.URL.Query().Get("available") == "true"
	resp := make([]order.Food, 0, len(foods))
	for _, f := range foods {
		if category != "" && !strings.EqualFold(f.Category, category) {
			continue
		}
		if onlyAvailable && !f.Available {
			continue
		}
		resp = append(resp, f)
	}
	writeJSON(w, http.StatusOK, foodListResponse{Foods: resp})
}

// Get returns one catalog entry.
func (h *FoodHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := h.catalog.GetFood(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCatalogError(w, "get food", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Create adds a catalog entry.
func (h *FoodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFoodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price"})
		return
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}

	f, err := h.catalog.CreateFood(r.Context(), order.Food{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       price.Round(2),
		Category:    req.Category,
		Available:   available,
	})
	if err != nil {
		writeCatalogError(w, "create food", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func writeCatalogError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "food not found"})
	case errors.Is(err, order.ErrStoreUnavailable):
		log.Warn().Err(err).Str("op", op).Msg("store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service temporarily unavailable, please retry"})
	default:
		log.Error().Err(err).Str("op", op).Msg("catalog request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
