package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Seeds a running server with demo traders and orders so the book, trade
// tape and ticker have data. State is in-memory, so this is safe to re-run
// after every restart.

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) post(path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", c.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: unexpected status %d", "POST", path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// login registers the user (ignoring "already exists" failures) and stores
// the session token on the client.
func (c *client) login(username, password string) error {
	_ = c.post("/auth/register", map[string]string{"username": username, "password": password}, nil)

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post("/auth/login", map[string]string{"username": username, "password": password}, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

func (c *client) placeOrder(side string, amount, price float64) error {
	return c.post("/orders", map[string]interface{}{
		"side":   side,
		"kind":   "limit",
		"amount": amount,
		"price":  price,
	}, nil)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	base := flag.String("addr", "http://localhost:8080", "server base URL")
	mid := flag.Float64("price", 50000, "mid price to seed around")
	flag.Parse()

	httpClient := &http.Client{Timeout: 5 * time.Second}
	maker := &client{base: *base, http: httpClient}
	taker := &client{base: *base, http: httpClient}

	if err := maker.login("trader1", "password1"); err != nil {
		log.Fatal().Err(err).Msg("failed to log in trader1")
	}
	if err := taker.login("trader2", "password2"); err != nil {
		log.Fatal().Err(err).Msg("failed to log in trader2")
	}

	// A ladder of resting bids below and asks above the mid price.
	for i := 1; i <= 5; i++ {
		step := float64(i) * 100
		if err := maker.placeOrder("buy", 0.1*float64(i), *mid-step); err != nil {
			log.Fatal().Err(err).Msg("failed to place bid")
		}
		if err := maker.placeOrder("sell", 0.1*float64(i), *mid+step); err != nil {
			log.Fatal().Err(err).Msg("failed to place ask")
		}
	}

	// Cross the spread a few times to print trades and move the ticker.
	if err := taker.placeOrder("buy", 0.15, *mid+100); err != nil {
		log.Fatal().Err(err).Msg("failed to cross ask")
	}
	if err := taker.placeOrder("sell", 0.15, *mid-100); err != nil {
		log.Fatal().Err(err).Msg("failed to cross bid")
	}

	log.Info().Msg("seeded demo book and trades")
}
