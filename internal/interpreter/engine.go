// Package interpreter calls the external natural-language command service and
// turns its reply into a loosely-typed draft. The caller validates and
// resolves the draft against the ledgers; a failure here must surface as "no
// draft", never as a ledger error.
package interpreter

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shopmaster/backend/internal/cache"
	"shopmaster/backend/internal/domain"
)

var (
	ErrNotConfigured = errors.New("interpreter not configured")
	ErrUpstream      = errors.New("interpreter upstream error")
)

// ProductSnapshot and CustomerSnapshot are the trimmed catalog views sent to
// the interpreter so it can ground extraction in known entities.
type ProductSnapshot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type CustomerSnapshot struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type interpretPayload struct {
	Command   string             `json:"command"`
	Inventory []ProductSnapshot  `json:"inventory"`
	Customers []CustomerSnapshot `json:"customers"`
}

type Engine struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	cache    cache.DraftCache
	cacheTTL time.Duration
}

func NewEngine(baseURL string, apiKey string, cacheStore cache.DraftCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopDraftCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		client:   &http.Client{Timeout: 15 * time.Second},
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (e *Engine) Enabled() bool {
	return e.baseURL != ""
}

// Interpret sends the raw command plus catalog snapshots to the upstream
// service. Identical commands for the same shop are served from cache within
// the TTL window.
func (e *Engine) Interpret(
	ctx context.Context,
	shopID string,
	command string,
	inventory []ProductSnapshot,
	customers []CustomerSnapshot,
) (*domain.AIDraft, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("%w: empty command", ErrUpstream)
	}
	if !e.Enabled() {
		return nil, ErrNotConfigured
	}

	cacheKey := buildCacheKey(shopID, command)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return cached, nil
	}

	payload, err := json.Marshal(interpretPayload{
		Command:   command,
		Inventory: inventory,
		Customers: customers,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/interpret", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var draft domain.AIDraft
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&draft); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUpstream, err)
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	_ = e.cache.Set(ctx, cacheKey, &draft, e.cacheTTL)
	return &draft, nil
}

func validateDraft(draft domain.AIDraft) error {
	switch draft.Intent {
	case domain.IntentSale, domain.IntentPurchase, domain.IntentReturn, domain.IntentOpeningCash:
	default:
		return fmt.Errorf("%w: unknown intent %q", ErrUpstream, draft.Intent)
	}
	if draft.Quantity != nil && *draft.Quantity <= 0 {
		return fmt.Errorf("%w: non-positive quantity", ErrUpstream)
	}
	if draft.Price != nil && *draft.Price < 0 {
		return fmt.Errorf("%w: negative price", ErrUpstream)
	}
	if draft.TotalAmount != nil && *draft.TotalAmount < 0 {
		return fmt.Errorf("%w: negative amount", ErrUpstream)
	}
	return nil
}

func buildCacheKey(shopID string, command string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(command), " "))
	hash := sha1.Sum([]byte(shopID + "|" + normalized))
	return "pos:draft:" + hex.EncodeToString(hash[:])
}
