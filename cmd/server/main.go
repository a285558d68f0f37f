package main

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"coinex/internal/api"
	"coinex/internal/auth"
	"coinex/internal/config"
	"coinex/internal/engine"
	"coinex/internal/models"
	"coinex/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]bool)}
}

// marketSnapshot is the payload pushed to websocket clients
type marketSnapshot struct {
	OrderBook models.OrderBook `json:"order_book"`
	Price     float64          `json:"price"`
	Trades    []models.Trade   `json:"trades"`
}

func (h *hub) broadcast(eng *engine.Engine) {
	snapshot := marketSnapshot{
		OrderBook: eng.OrderBook(),
		Price:     eng.CurrentPrice(),
		Trades:    eng.RecentTrades(20),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal market snapshot")
		return
	}

	var dead []*wsClient
	h.mu.RLock()
	for client := range h.clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Msg("dropping websocket client")
			dead = append(dead, client)
		}
	}
	h.mu.RUnlock()

	if len(dead) > 0 {
		h.mu.Lock()
		for _, client := range dead {
			delete(h.clients, client)
		}
		h.mu.Unlock()
	}
}

func (h *hub) handleWebSocket(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("failed to upgrade connection")
			return
		}

		client := &wsClient{conn: conn}
		h.mu.Lock()
		h.clients[client] = true
		h.mu.Unlock()

		// Send initial snapshot
		h.broadcast(eng)

		// Keep connection alive and handle disconnection
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				delete(h.clients, client)
				h.mu.Unlock()
				break
			}
		}
	}
}

// Main entry point: wires config, engine, auth and the HTTP server
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()

	// The engine owns all order and trade state
	eng := engine.New(cfg.InitialPrice, log.With().Str("component", "engine").Logger())

	users := store.New()
	authService := auth.NewAuthService(users, cfg.JWTSecret)
	handler := api.NewHandler(eng, authService)
	marketHub := newHub()

	r := chi.NewRouter()

	// Enable CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Serve static files
	r.Handle("/*", http.FileServer(http.Dir("frontend")))

	// WebSocket market-data stream
	r.Get("/ws", marketHub.handleWebSocket(eng))

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Get("/orderbook", handler.GetOrderBook)
	r.Get("/trades", handler.GetRecentTrades)
	r.Get("/ticker", handler.GetTicker)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Post("/orders", handler.PlaceOrder)
		r.Get("/orders", handler.GetUserOrders)
		r.Delete("/orders/{id}", handler.CancelOrder)
	})

	// Periodic market-data broadcast
	go func() {
		ticker := time.NewTicker(cfg.BroadcastInterval)
		for range ticker.C {
			marketHub.broadcast(eng)
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Float64("initial_price", cfg.InitialPrice).Msg("starting server")
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
