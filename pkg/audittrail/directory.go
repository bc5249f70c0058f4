package audittrail

import (
	"strings"
	"sync/atomic"
)

// Domain is a category of foreign-key identifier.
type Domain string

const (
	DomainUser   Domain = "user"
	DomainClient Domain = "client"
	DomainHub    Domain = "hub"
	DomainZone   Domain = "zone"
)

// Domains lists every reference domain in a stable order.
var Domains = []Domain{DomainUser, DomainClient, DomainHub, DomainZone}

// ReferenceItem is one externally supplied entity used to resolve ids.
type ReferenceItem struct {
	ID       *int64  `json:"id"`
	Name     *string `json:"name,omitempty"`
	FullName *string `json:"fullName,omitempty"`
}

// Label returns the trimmed display label. FullName wins whenever it is set,
// even when empty, and Name is only consulted when FullName is nil.
func (i ReferenceItem) Label() string {
	switch {
	case i.FullName != nil:
		return strings.TrimSpace(*i.FullName)
	case i.Name != nil:
		return strings.TrimSpace(*i.Name)
	}
	return ""
}

// Directory maps ids to labels per domain. A built directory is never mutated.
type Directory struct {
	tables map[Domain]map[int64]string
}

// BuildDirectory builds fresh lookup tables. Items without an id or with an
// empty label are skipped.
func BuildDirectory(lists map[Domain][]ReferenceItem) *Directory {
	tables := make(map[Domain]map[int64]string, len(lists))
	for domain, items := range lists {
		table := make(map[int64]string, len(items))
		for _, item := range items {
			if item.ID == nil {
				continue
			}
			label := item.Label()
			if label == "" {
				continue
			}
			table[*item.ID] = label
		}
		tables[domain] = table
	}
	return &Directory{tables: tables}
}

// Lookup resolves id within domain.
func (d *Directory) Lookup(domain Domain, id int64) (string, bool) {
	if d == nil {
		return "", false
	}
	label, ok := d.tables[domain][id]
	return label, ok
}

// Size returns the number of resolvable ids in domain.
func (d *Directory) Size(domain Domain) int {
	if d == nil {
		return 0
	}
	return len(d.tables[domain])
}

// Sizes returns entry counts for every known domain.
func (d *Directory) Sizes() map[Domain]int {
	sizes := make(map[Domain]int, len(Domains))
	for _, domain := range Domains {
		sizes[domain] = d.Size(domain)
	}
	return sizes
}

// DirectoryHolder publishes the current directory. Rebuilds construct a new
// directory and swap it in, so readers see either the old or the new tables.
type DirectoryHolder struct {
	current atomic.Pointer[Directory]
}

// NewDirectoryHolder returns a holder with an empty directory.
func NewDirectoryHolder() *DirectoryHolder {
	h := &DirectoryHolder{}
	h.current.Store(BuildDirectory(nil))
	return h
}

// Current returns the published directory.
func (h *DirectoryHolder) Current() *Directory {
	return h.current.Load()
}

// Rebuild replaces the directory wholesale and returns the new one.
func (h *DirectoryHolder) Rebuild(lists map[Domain][]ReferenceItem) *Directory {
	dir := BuildDirectory(lists)
	h.current.Store(dir)
	return dir
}

// Lookup resolves against the published directory.
func (h *DirectoryHolder) Lookup(domain Domain, id int64) (string, bool) {
	return h.Current().Lookup(domain, id)
}
