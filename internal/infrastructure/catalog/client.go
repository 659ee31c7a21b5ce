package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"healthstack/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client resolves a product id to the name and price an order line needs.
// It does not retry or cache; that policy belongs to the caller.
type Client interface {
	Resolve(ctx context.Context, productID uuid.UUID) (domain.Product, error)
}

const maxBodyBytes = 1 << 20

type httpClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// productResponse is the subset of the catalog's product document we read.
type productResponse struct {
	ID    uuid.UUID        `json:"id"`
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
}

func (c *httpClient) Resolve(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	const op = "catalog resolve"

	url := fmt.Sprintf("%s/api/product/%s", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Product{}, domain.NewError(domain.KindUpstream, op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Product{}, domain.NewError(domain.KindUpstream, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return domain.Product{}, domain.NewError(domain.KindNotFound, op,
			fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID))
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return domain.Product{}, domain.NewError(domain.KindUpstream, op,
			fmt.Errorf("catalog returned status %d for product %s", resp.StatusCode, productID))
	}

	var body productResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return domain.Product{}, domain.NewError(domain.KindUpstream, op, fmt.Errorf("decode product %s: %w", productID, err))
	}
	if body.Price == nil {
		return domain.Product{}, domain.NewError(domain.KindUpstream, op, fmt.Errorf("product %s has no price", productID))
	}
	if body.ID != uuid.Nil && body.ID != productID {
		return domain.Product{}, domain.NewError(domain.KindUpstream, op,
			fmt.Errorf("asked for product %s, catalog answered %s", productID, body.ID))
	}

	return domain.Product{
		ID:    productID,
		Name:  body.Name,
		Price: *body.Price,
	}, nil
}
