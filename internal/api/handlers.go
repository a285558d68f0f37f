package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"coinex/internal/auth"
	"coinex/internal/engine"
	"coinex/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const userIDKey contextKey = "user_id"

// defaultTradesLimit caps the trade tape returned when no limit is given
const defaultTradesLimit = 50

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Engine      *engine.Engine
	AuthService *auth.AuthService
}

// NewHandler creates a new handler
func NewHandler(eng *engine.Engine, authService *auth.AuthService) *Handler {
	return &Handler{Engine: eng, AuthService: authService}
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error": "Username and password required"}`, http.StatusBadRequest)
		return
	}

	user, err := h.AuthService.Register(req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Failed to register user"}`, http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := h.AuthService.Login(req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlaceOrder handles order submission. Validation happens here: the engine
// trusts amounts and prices it is handed.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(userIDKey).(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Side   string  `json:"side"`
		Kind   string  `json:"kind"`
		Amount float64 `json:"amount"`
		Price  float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	side := models.Side(req.Side)
	if side != models.SideBuy && side != models.SideSell {
		http.Error(w, `{"error": "Side must be 'buy' or 'sell'"}`, http.StatusBadRequest)
		return
	}
	kind := models.OrderKind(req.Kind)
	if kind == "" {
		kind = models.KindLimit
	}
	if kind != models.KindMarket && kind != models.KindLimit {
		http.Error(w, `{"error": "Kind must be 'market' or 'limit'"}`, http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, `{"error": "Amount must be positive"}`, http.StatusBadRequest)
		return
	}
	if kind == models.KindLimit && req.Price <= 0 {
		http.Error(w, `{"error": "Limit orders require a positive price"}`, http.StatusBadRequest)
		return
	}
	if req.Price < 0 {
		http.Error(w, `{"error": "Price must be positive"}`, http.StatusBadRequest)
		return
	}

	order := h.Engine.SubmitOrder(userID, side, kind, req.Amount, req.Price)

	log.Info().
		Str("order_id", order.ID).
		Str("side", string(order.Side)).
		Str("status", string(order.Status)).
		Float64("amount", order.Amount).
		Float64("price", order.Price).
		Msg("order placed")

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

// CancelOrder cancels an open order owned by the caller
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(userIDKey).(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orderID := chi.URLParam(r, "id")
	if !h.Engine.CancelOrder(orderID, userID) {
		http.Error(w, `{"error": "Order not found or not open"}`, http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Order cancelled"})
}

// GetUserOrders retrieves the caller's orders, newest first
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(userIDKey).(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orders := h.Engine.UserOrders(userID)
	if orders == nil {
		orders = []models.Order{}
	}
	json.NewEncoder(w).Encode(orders)
}

// GetOrderBook retrieves the aggregated order book
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.Engine.OrderBook())
}

// GetRecentTrades retrieves the latest trades, newest first
func (h *Handler) GetRecentTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, `{"error": "Invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	trades := h.Engine.RecentTrades(limit)
	if trades == nil {
		trades = []models.Trade{}
	}
	json.NewEncoder(w).Encode(trades)
}

// GetTicker retrieves the current market price
func (h *Handler) GetTicker(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]float64{"price": h.Engine.CurrentPrice()})
}
