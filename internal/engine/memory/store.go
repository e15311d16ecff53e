package memory

import (
	"slices"
	"sync"
	"time"

	"github.com/sedirimou/Gameva-sub003/internal/domain"
	"github.com/sedirimou/Gameva-sub003/internal/relevance"
)

// entry is a stored document with its normalized fields cached for scoring.
type entry struct {
	doc    domain.SearchableDocument
	fields relevance.Fields
}

// Store is an in-process document collection keyed by id. It is safe for
// concurrent use; writes to the same id are last-writer-wins.
type Store struct {
	mu        sync.RWMutex
	name      string
	createdAt time.Time
	docs      map[string]*entry
}

// NewStore creates an empty store.
func NewStore(name string) *Store {
	return &Store{
		name:      name,
		createdAt: time.Now().UTC(),
		docs:      make(map[string]*entry),
	}
}

// Put inserts or fully replaces doc.
func (s *Store) Put(doc domain.SearchableDocument) {
	e := &entry{doc: cloneDoc(doc), fields: relevance.Prepare(&doc)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = e
}

// Remove deletes id; a missing id is ignored.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
}

// Reset removes every document.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]*entry)
}

// Get returns a copy of the document stored under id.
func (s *Store) Get(id string) (domain.SearchableDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	if !ok {
		return domain.SearchableDocument{}, false
	}
	return cloneDoc(e.doc), true
}

// Len returns the number of documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// snapshot returns the current entries. Entries are never mutated after
// insertion, so callers may read them without the lock.
func (s *Store) snapshot() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.docs))
	for _, e := range s.docs {
		out = append(out, e)
	}
	return out
}

func cloneDoc(d domain.SearchableDocument) domain.SearchableDocument {
	d.Genres = slices.Clone(d.Genres)
	if d.SalePrice != nil {
		v := *d.SalePrice
		d.SalePrice = &v
	}
	return d
}
