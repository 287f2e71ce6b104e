package crawler

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"web3-digest-bot/internal/infra/metrics"
)

// Fetcher — общий HTTP-клиент краулеров с повторами и распаковкой ответа.
type Fetcher struct {
	client    *http.Client
	userAgent string
	retries   int
}

// NewFetcher создаёт клиент с таймаутом и числом повторов.
func NewFetcher(timeout time.Duration, retries int, userAgent string) *Fetcher {
	if retries < 1 {
		retries = 1
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		retries:   retries,
	}
}

// FetchPage загружает страницу с повторами и фиксированной паузой между ними.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	return f.fetch(ctx, pageURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
}

// FetchJSON загружает и декодирует JSON-ответ API.
func (f *Fetcher) FetchJSON(ctx context.Context, apiURL string, params url.Values) (map[string]any, error) {
	target := apiURL
	if len(params) > 0 {
		parsed, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("разбор URL: %w", err)
		}
		query := parsed.Query()
		for key, values := range params {
			for _, value := range values {
				query.Set(key, value)
			}
		}
		parsed.RawQuery = query.Encode()
		target = parsed.String()
	}

	body, err := f.fetch(ctx, target, "application/json")
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("декодирование JSON: %w", err)
	}
	return data, nil
}

func (f *Fetcher) fetch(ctx context.Context, target, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt)*2*time.Second + time.Duration(rand.Int63n(int64(time.Second)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		body, err := f.doRequest(ctx, target, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("запрос %s: %w", target, lastErr)
}

func (f *Fetcher) doRequest(ctx context.Context, target, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.ObserveNetworkRequest("crawler", "get", req.URL.Host, start, err)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("статус %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodeBody(raw, resp.Header.Get("Content-Encoding"))
}

// decodeBody разворачивает gzip/deflate транспортные кодировки.
func decodeBody(raw []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("распаковка gzip: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case "deflate":
		if reader, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer reader.Close()
			return io.ReadAll(reader)
		}
		reader := flate.NewReader(bytes.NewReader(raw))
		defer reader.Close()
		return io.ReadAll(reader)
	default:
		return raw, nil
	}
}
