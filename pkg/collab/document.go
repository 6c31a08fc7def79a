package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

var (
	ErrConflict       = errors.New("document was modified by another writer")
	ErrReloadRequired = errors.New("document must be reloaded before saving")
	ErrNotLoaded      = errors.New("document not loaded")
)

// DocumentStore reads and conditionally writes a document. SaveDocument
// must return an error wrapping ErrConflict when known is too old.
type DocumentStore interface {
	GetDocument(ctx context.Context, roomID string) (protocol.Document, error)
	SaveDocument(ctx context.Context, roomID, content string, known time.Time) (protocol.Document, error)
}

// DocumentEditor is the client side of the conflict guard for a single
// document room. After a conflict every Save fails until Reload succeeds.
type DocumentEditor struct {
	store  DocumentStore
	roomID string

	mu         sync.Mutex
	doc        protocol.Document
	loaded     bool
	conflicted bool
	stale      bool
}

// NewDocumentEditor creates an editor for roomID. Call Load before Save.
func NewDocumentEditor(store DocumentStore, roomID string) *DocumentEditor {
	return &DocumentEditor{store: store, roomID: roomID}
}

// Load fetches the authoritative snapshot and clears the conflict flag.
func (e *DocumentEditor) Load(ctx context.Context) (protocol.Document, error) {
	doc, err := e.store.GetDocument(ctx, e.roomID)
	if err != nil {
		return protocol.Document{}, fmt.Errorf("load document: %w", err)
	}

	e.mu.Lock()
	e.doc = doc
	e.loaded = true
	e.conflicted = false
	e.stale = false
	e.mu.Unlock()
	return doc, nil
}

// Reload is Load after a conflict or a staleness hint.
func (e *DocumentEditor) Reload(ctx context.Context) (protocol.Document, error) {
	return e.Load(ctx)
}

// Save writes content presenting the cached last-modified timestamp.
func (e *DocumentEditor) Save(ctx context.Context, content string) (protocol.Document, error) {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return protocol.Document{}, ErrNotLoaded
	}
	if e.conflicted {
		e.mu.Unlock()
		return protocol.Document{}, ErrReloadRequired
	}
	known := e.doc.LastModified
	e.mu.Unlock()

	saved, err := e.store.SaveDocument(ctx, e.roomID, content, known)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.mu.Lock()
			e.conflicted = true
			e.mu.Unlock()
			return protocol.Document{}, err
		}
		return protocol.Document{}, fmt.Errorf("save document: %w", err)
	}

	e.mu.Lock()
	e.doc = saved
	e.stale = false
	e.mu.Unlock()
	return saved, nil
}

// Document returns the cached snapshot.
func (e *DocumentEditor) Document() protocol.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc
}

// Conflicted reports whether a Reload is required.
func (e *DocumentEditor) Conflicted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conflicted
}

// MarkStale records that another writer moved the baseline.
func (e *DocumentEditor) MarkStale() {
	e.mu.Lock()
	if e.loaded {
		e.stale = true
	}
	e.mu.Unlock()
}

// Stale reports whether a newer version is known to exist.
func (e *DocumentEditor) Stale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stale
}
