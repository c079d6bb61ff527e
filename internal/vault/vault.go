// Package vault implements C4, the Credential Vault: it maps an abstract
// LLM-provider identifier to the environment variables an assistant
// container needs, without ever letting the orchestrator read secret
// material directly.
package vault

import (
	"fmt"
	"sync"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/keymanager"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/logging"
	"github.com/jordanhubbard/codeopen-orchestrator/pkg/models"
)

// Vault is C4. It registers ProviderRecords and serves get_env_vars /
// get_setting against the encrypted keymanager store.
type Vault struct {
	km      *keymanager.KeyManager
	log     *logging.Manager
	mu      sync.RWMutex
	records map[string]models.ProviderRecord // provider_id -> record metadata (kind/is_default only; material lives in km)
	settings map[string]string
}

// New wraps an unlocked keymanager as a Vault.
func New(km *keymanager.KeyManager, log *logging.Manager) *Vault {
	return &Vault{km: km, log: log, records: make(map[string]models.ProviderRecord), settings: make(map[string]string)}
}

// RegisterProvider stores a provider's credential material (opaque to every
// caller but the vault) along with any non-secret hints.
func (v *Vault) RegisterProvider(providerID, kind, authJSON string, hints map[string]string, isDefault bool) error {
	if err := v.km.Store(providerID, providerID, kind, authJSON, hints); err != nil {
		return fmt.Errorf("storing provider credential: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if isDefault {
		for id, rec := range v.records {
			rec.IsDefault = false
			v.records[id] = rec
		}
	}
	v.records[providerID] = models.ProviderRecord{ProviderID: providerID, Kind: kind, IsDefault: isDefault}
	return nil
}

// SetSetting stores an opaque configuration value (e.g. the default
// provider id).
func (v *Vault) SetSetting(key, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.settings[key] = value
}

// GetSetting performs an opaque configuration lookup.
func (v *Vault) GetSetting(key string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.settings[key]
	return val, ok
}

// GetEnvVars returns the environment variables the assistant container
// needs for providerID. providerID == "" returns the union of all
// configured providers' env vars, used by credential-sync broadcast.
// Never returns an error for "no providers configured" — it returns an
// empty map and logs a structured warning instead.
func (v *Vault) GetEnvVars(providerID string) map[string]string {
	v.mu.RLock()
	ids := v.providerIDs(providerID)
	v.mu.RUnlock()

	if len(ids) == 0 {
		if v.log != nil {
			v.log.Warn("vault", "no providers configured", map[string]interface{}{"requested_provider_id": providerID})
		}
		return map[string]string{}
	}

	out := make(map[string]string)
	for _, id := range ids {
		authJSON, hints, err := v.km.Get(id)
		if err != nil {
			if v.log != nil {
				v.log.Warn("vault", "provider credential unavailable", map[string]interface{}{"provider_id": id})
			}
			continue
		}
		if authJSON != "" {
			out["OPENCODE_AUTH_JSON"] = authJSON
		}
		for k, val := range hints {
			out[k] = val
		}
	}
	return out
}

// providerIDs resolves providerID ("" meaning "all") to a concrete list
// under the read lock's caller-provided protection.
func (v *Vault) providerIDs(providerID string) []string {
	if providerID != "" {
		if _, ok := v.records[providerID]; !ok {
			return nil
		}
		return []string{providerID}
	}
	ids := make([]string, 0, len(v.records))
	for id := range v.records {
		ids = append(ids, id)
	}
	return ids
}

// DefaultProviderID returns the provider marked IsDefault, if any.
func (v *Vault) DefaultProviderID() (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for id, rec := range v.records {
		if rec.IsDefault {
			return id, true
		}
	}
	return "", false
}
