// Package store provee el registry de adaptadores de almacenamiento.
//
// Cada adapter se registra en su init(); los mains los habilitan con un
// blank import. El server recibe una Connection ya construida (inyección
// explícita, sin handles globales de stores).
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dropDatabas3/littlejohn/internal/domain/repository"
)

// Adapter representa un backend de almacenamiento capaz de crear repositorios.
type Adapter interface {
	// Name retorna el nombre del adapter (ej: "fs", "pg", "memory").
	Name() string

	// Connect establece conexión con el almacenamiento.
	Connect(ctx context.Context, cfg AdapterConfig) (Connection, error)
}

// Connection representa una conexión activa.
// Provee acceso a las tres colecciones del servicio.
type Connection interface {
	// Name retorna el nombre del adapter.
	Name() string

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error

	// ─── Repositorios ───

	Users() repository.UserRepository
	Secrets() repository.SecretRepository
	Sessions() repository.SessionRepository
}

// AdapterConfig configuración para conectar a un almacenamiento.
type AdapterConfig struct {
	// Name del adapter: "fs", "pg", "memory"
	Name string

	// DSN connection string (para pg)
	DSN string

	// FSRoot path al directorio de datos (para fs)
	FSRoot string
}

// ─── Registry Global ───

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// RegisterAdapter registra un adapter en el registry global.
// Llamar en init() de cada adapter.
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("adapter: %q already registered", name))
	}
	adapters[name] = a
}

// GetAdapter obtiene un adapter por nombre.
func GetAdapter(name string) (Adapter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := adapters[name]
	return a, ok
}

// Open abre una conexión usando el adapter especificado en la config.
func Open(ctx context.Context, cfg AdapterConfig) (Connection, error) {
	a, ok := GetAdapter(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("store: adapter %q not registered", cfg.Name)
	}
	return a.Connect(ctx, cfg)
}
