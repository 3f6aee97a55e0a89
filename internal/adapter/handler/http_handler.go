package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/core/service"
)

const idempotencyHeader = "Idempotency-Key"

// Services groups the use cases exposed over HTTP.
type Services struct {
	Auth    *service.AuthService
	Catalog *service.CatalogService
	Orders  *service.OrderService
	Units   *service.UnitService
}

type HTTPHandler struct {
	svc            Services
	ws             http.Handler
	logger         *zap.Logger
	production     bool
	allowedOrigins []string
}

// NewHTTPHandler builds the REST surface. ws serves the realtime channel and may be nil. An empty
// allowedOrigins list accepts cross-origin requests from anywhere.
func NewHTTPHandler(svc Services, ws http.Handler, logger *zap.Logger, production bool, allowedOrigins []string) *HTTPHandler {
	return &HTTPHandler{svc: svc, ws: ws, logger: logger, production: production, allowedOrigins: allowedOrigins}
}

type placeOrderRequest struct {
	Items []service.PlaceOrderItem `json:"items"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changeStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

type dataResponse struct {
	Data any `json:"data"`
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", idempotencyHeader},
		MaxAge:         300,
	}))

	r.Get("/", h.Welcome)
	r.Get("/health", h.HealthCheck)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/products", h.ListProducts)
	r.Get("/units", h.ListUnits)
	if h.ws != nil {
		r.Handle("/ws", h.ws)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/products", h.UpsertProduct)
		r.Patch("/products/{id}/stock", h.UpdateStock)

		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.ListOrders)
		r.Patch("/orders/{id}/status", h.ChangeStatus)
		r.Get("/orders/admin/analytics", h.Analytics)
		r.Get("/admin/analytics", h.Analytics)
	})

	return r
}

func (h *HTTPHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Mini OMS API!"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Auth.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Query:      q.Get("q"),
		SupplierID: q.Get("supplierId"),
	}

	var err error
	if filter.Skip, err = queryInt(q.Get("skip")); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: skip must be an integer", service.ErrValidation))
		return
	}
	if filter.Take, err = queryInt(q.Get("take")); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: take must be an integer", service.ErrValidation))
		return
	}

	products, err := h.svc.Catalog.ListProducts(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: products})
}

func (h *HTTPHandler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, domain.CapManageCatalog)
	if !ok {
		return
	}

	var req service.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	product, created, err := h.svc.Catalog.UpsertProduct(r.Context(), principal, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"product": product})
}

func (h *HTTPHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, domain.CapManageCatalog)
	if !ok {
		return
	}

	var req service.StockUpdate
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	inventory, err := h.svc.Catalog.UpdateStock(r.Context(), principal, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": inventory})
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, domain.CapPlaceOrder)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.svc.Orders.PlaceOrder(r.Context(), principal.UserID, req.Items, r.Header.Get(idempotencyHeader))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, domain.CapListOrders)
	if !ok {
		return
	}

	orders, err := h.svc.Orders.ListOrdersFor(r.Context(), principal, r.URL.Query().Get("supplier_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: orders})
}

func (h *HTTPHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authorize(w, r, domain.CapChangeOrderStatus)
	if !ok {
		return
	}

	var req changeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.svc.Orders.ChangeStatus(r.Context(), chi.URLParam(r, "id"), req.Status, principal.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *HTTPHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, domain.CapViewAnalytics); !ok {
		return
	}

	analytics, err := h.svc.Orders.Analytics(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: analytics})
}

func (h *HTTPHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.svc.Units.ListUnits(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: units})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", service.ErrValidation)
	}
	return nil
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
