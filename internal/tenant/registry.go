package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// AppConfig is one registered app. AttachmentsEnabled defaults to true when
// the key is absent from apps.json.
type AppConfig struct {
	AppID              string `json:"app_id"`
	AppName            string `json:"app_name"`
	AttachmentsEnabled *bool  `json:"attachments_enabled,omitempty"`
}

type AppsFile struct {
	Apps []AppConfig `json:"apps"`
}

type Registry struct {
	mu   sync.RWMutex
	apps map[string]*AppConfig
}

func NewRegistry() *Registry {
	return &Registry{
		apps: make(map[string]*AppConfig),
	}
}

func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read apps config: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from the apps.json document.
func Parse(data []byte) (*Registry, error) {
	var file AppsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse apps config: %w", err)
	}

	registry := NewRegistry()
	for i := range file.Apps {
		if file.Apps[i].AppID == "" {
			return nil, fmt.Errorf("apps config entry %d has no app_id", i)
		}
		registry.Register(&file.Apps[i])
	}
	return registry, nil
}

func (r *Registry) Register(cfg *AppConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[cfg.AppID] = cfg
}

func (r *Registry) Get(appID string) *AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.apps[appID]
}

func (r *Registry) Exists(appID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.apps[appID]
	return ok
}

// AttachmentsEnabled reports whether images submitted for appID are stored.
func (r *Registry) AttachmentsEnabled(appID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.apps[appID]
	if !ok {
		return false
	}
	return cfg.AttachmentsEnabled == nil || *cfg.AttachmentsEnabled
}

// All returns the registered apps ordered by app_id.
func (r *Registry) All() []*AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*AppConfig, 0, len(r.apps))
	for _, cfg := range r.apps {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AppID < result[j].AppID })
	return result
}
