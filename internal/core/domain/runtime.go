package domain

import "sync"

// RuntimeConfig tracks which backends and services are available at
// runtime. Backend choices are fixed at startup; the collaborator flag
// changes when settings swap the provider. Safe for concurrent use.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Chosen at startup, read-only afterwards.
	QueueBackend   string // "redis" or "postgres"
	LockBackend    string // "redis" or "postgres"
	ContentBackend string // "filesystem" or "minio"

	// Dynamic capability flags
	collaboratorAvailable bool
	collaboratorProvider  CollaboratorProvider
}

// NewRuntimeConfig records the backend choices made at startup.
func NewRuntimeConfig(queueBackend, lockBackend, contentBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		QueueBackend:   queueBackend,
		LockBackend:    lockBackend,
		ContentBackend: contentBackend,
	}
}

// CollaboratorAvailable returns whether a model collaborator is wired in
func (c *RuntimeConfig) CollaboratorAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collaboratorAvailable
}

// CollaboratorProvider returns the provider currently wired in
func (c *RuntimeConfig) CollaboratorProvider() CollaboratorProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collaboratorProvider
}

// SetCollaborator updates the collaborator availability flags
func (c *RuntimeConfig) SetCollaborator(provider CollaboratorProvider, available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collaboratorProvider = provider
	c.collaboratorAvailable = available
}
