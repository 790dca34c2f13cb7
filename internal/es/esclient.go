package es

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
)

type Config struct {
	URL      string
	User     string
	Password string

	// Transport overrides the HTTP transport; tests point it at httptest.
	Transport http.RoundTripper
}

// NewClient connects and checks the cluster answers before returning.
func NewClient(cfg Config, logger *slog.Logger) (*elasticsearch.Client, error) {
	logger.Info("es_connecting", "url", cfg.URL, "user", cfg.User)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.User,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("es: new client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("es: info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		logger.Error("es_info_failed", "status", res.Status(), "body", string(body))
		return nil, fmt.Errorf("es: info: %s", res.Status())
	}

	logger.Info("es_connected", "url", cfg.URL)
	return client, nil
}
