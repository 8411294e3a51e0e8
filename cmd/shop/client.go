package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/shopspring/decimal"
)

// apiClient talks to the ordering HTTP API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int
	Message string
	Field   string
}

func (e *apiError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("server returned %d: %s (field %s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type checkoutRequest struct {
	GuestInfo       *order.GuestInfo      `json:"guest_info,omitempty"`
	Items           []checkoutItem        `json:"items"`
	DeliveryAddress order.DeliveryAddress `json:"delivery_address"`
	ContactNumber   string                `json:"contact_number"`
	PaymentMethod   string                `json:"payment_method"`
	Notes           string                `json:"notes,omitempty"`
	ExpectedTotal   string                `json:"expected_total,omitempty"`
}

type checkoutItem struct {
	FoodID              string `json:"food_id"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

func (c *apiClient) menu(ctx context.Context, category string) ([]order.Food, error) {
	path := "/foods?available=true"
	if category != "" {
		path += "&category=" + url.QueryEscape(category)
	}
	var resp struct {
		Foods []order.Food `json:"foods"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Foods, nil
}

func (c *apiClient) food(ctx context.Context, id string) (order.Food, error) {
	var f order.Food
	err := c.do(ctx, http.MethodGet, "/foods/"+url.PathEscape(id), nil, &f)
	return f, err
}

// checkout places the order. expected is the total the customer saw; the
// server refuses the order if its own total differs.
func (c *apiClient) checkout(ctx context.Context, req checkoutRequest, expected decimal.Decimal) (order.Order, error) {
	req.ExpectedTotal = expected.StringFixed(2)
	var o order.Order
	err := c.do(ctx, http.MethodPost, "/orders", req, &o)
	return o, err
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: e.Error, Field: e.Field}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
