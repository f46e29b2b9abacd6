// Package legacy reads ownership from a prior-generation day registry so that
// its holders can claim the matching day without paying the mint price.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNoOwner is returned when the legacy registry has no holder for the id.
var ErrNoOwner = errors.New("legacy token has no owner")

// Token is the legacy ownership oracle.
type Token interface {
	OwnerOf(ctx context.Context, id int) (string, error)
}

// StaticToken is a fixed id → owner table, used for snapshots and tests.
type StaticToken map[int]string

func (s StaticToken) OwnerOf(_ context.Context, id int) (string, error) {
	owner, ok := s[id]
	if !ok || owner == "" {
		return "", fmt.Errorf("%w: %d", ErrNoOwner, id)
	}
	return strings.ToLower(owner), nil
}

const requestTimeout = 5 * time.Second

// HTTPToken reads a prior deployment of this service over its public API.
type HTTPToken struct {
	client  *http.Client
	baseURL string
}

// NewHTTPToken creates a client for the deployment at baseURL.
func NewHTTPToken(baseURL string, client *http.Client) *HTTPToken {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &HTTPToken{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type parcelEnvelope struct {
	Parcel struct {
		Owner string `json:"owner"`
		Owned bool   `json:"owned"`
	} `json:"parcel"`
}

func (h *HTTPToken) OwnerOf(ctx context.Context, id int) (string, error) {
	url := h.baseURL + "/api/v1/parcels/" + strconv.Itoa(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build legacy request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query legacy token %d: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %d", ErrNoOwner, id)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("legacy registry returned status %d for token %d", resp.StatusCode, id)
	}

	var env parcelEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("failed to decode legacy token %d: %w", id, err)
	}
	if !env.Parcel.Owned || env.Parcel.Owner == "" {
		return "", fmt.Errorf("%w: %d", ErrNoOwner, id)
	}
	return strings.ToLower(env.Parcel.Owner), nil
}

// Resolve turns a configured legacy source into a Token. An empty source
// means no legacy registry is configured.
func Resolve(source string) (Token, error) {
	switch {
	case source == "":
		return nil, errors.New("no legacy token configured")
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return NewHTTPToken(source, nil), nil
	default:
		return nil, fmt.Errorf("unsupported legacy token source %q", source)
	}
}
