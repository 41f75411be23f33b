// Package keys resolves which credential backs a provider call based on the
// configured billing tier.
package keys

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Tier is the billing mode.
type Tier string

const (
	// TierFree uses caller-supplied per-provider credentials.
	TierFree Tier = "free"
	// TierPaid routes every provider through one proxy-issued token.
	TierPaid Tier = "paid"
)

// Source tags where key material came from.
type Source string

const (
	SourceUser  Source = "user"
	SourceProxy Source = "proxy"
)

var (
	// ErrProxyTokenMissing is fatal on the paid tier: without the proxy
	// token no provider can be reached at all.
	ErrProxyTokenMissing = errors.New("paid tier requires a proxy token")
	// ErrNoCredentials indicates the free tier has no usable provider.
	ErrNoCredentials = errors.New("no provider credentials configured")
	// ErrInvalidTier indicates an unrecognized tier value.
	ErrInvalidTier = errors.New("invalid tier")
)

// Key is a resolved credential for one provider.
type Key struct {
	Provider string
	Value    string
	Source   Source
	Tier     Tier
}

// Config supplies the manager's inputs. Credentials maps provider name to
// key material; blank values count as absent.
type Config struct {
	Tier        Tier
	Credentials map[string]string
	ProxyToken  string
}

// Manager answers credential lookups for a fixed tier snapshot.
type Manager struct {
	tier        Tier
	credentials map[string]string
	proxyToken  string
}

// New builds a manager. The tier defaults to free when unset.
func New(cfg Config) (*Manager, error) {
	tier := cfg.Tier
	if tier == "" {
		tier = TierFree
	}
	if tier != TierFree && tier != TierPaid {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, cfg.Tier)
	}

	credentials := make(map[string]string, len(cfg.Credentials))
	for provider, value := range cfg.Credentials {
		if v := strings.TrimSpace(value); v != "" {
			credentials[provider] = v
		}
	}

	return &Manager{
		tier:        tier,
		credentials: credentials,
		proxyToken:  strings.TrimSpace(cfg.ProxyToken),
	}, nil
}

// Resolve returns the credential to use for provider. On the free tier a
// missing credential means the provider is simply unavailable (ok=false, no
// error). On the paid tier a missing proxy token is a configuration error.
func (m *Manager) Resolve(provider string) (Key, bool, error) {
	switch m.tier {
	case TierPaid:
		if m.proxyToken == "" {
			return Key{}, false, ErrProxyTokenMissing
		}
		return Key{Provider: provider, Value: m.proxyToken, Source: SourceProxy, Tier: TierPaid}, true, nil
	default:
		value, ok := m.credentials[provider]
		if !ok {
			return Key{}, false, nil
		}
		return Key{Provider: provider, Value: value, Source: SourceUser, Tier: TierFree}, true, nil
	}
}

// Available reports whether provider can be dispatched to right now.
func (m *Manager) Available(provider string) bool {
	key, ok, err := m.Resolve(provider)
	return err == nil && ok && key.Value != ""
}

// Providers lists providers with locally-configured credentials, sorted for
// stable output. It is meaningful only on the free tier: the paid tier
// reaches every provider through the proxy token, so the manager has no
// provider universe to enumerate and returns nil. Callers wanting the
// reachable set on the paid tier should consult their registry instead.
func (m *Manager) Providers() []string {
	if m.tier == TierPaid {
		return nil
	}
	names := make([]string, 0, len(m.credentials))
	for provider := range m.credentials {
		names = append(names, provider)
	}
	sort.Strings(names)
	return names
}

// Tier reports the configured billing mode.
func (m *Manager) Tier() Tier { return m.tier }

// Validate checks the tier's minimum configuration: the free tier needs at
// least one credential, the paid tier needs the proxy token.
func (m *Manager) Validate() error {
	switch m.tier {
	case TierPaid:
		if m.proxyToken == "" {
			return ErrProxyTokenMissing
		}
	default:
		if len(m.credentials) == 0 {
			return ErrNoCredentials
		}
	}
	return nil
}
