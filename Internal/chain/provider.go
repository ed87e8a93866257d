package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/fazecat/optionsmith/Internal/types"
)

// Provider fetches the option chain for one underlying within an expiration
// window. A failed fetch surfaces as *ProviderError and is treated by the
// pipeline as "no contracts found", never as a fatal error.
type Provider interface {
	FetchChain(ctx context.Context, instrument string, from, to time.Time) ([]types.Contract, error)
}

const (
	ErrKindTransport = "transport"
	ErrKindAuth      = "auth"
)

type ProviderError struct {
	Kind       string // transport or auth
	Instrument string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("chain provider %s failure for %s: %v", e.Kind, e.Instrument, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
