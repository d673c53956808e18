// Package portfolio keeps named ticker sets with a single active portfolio.
package portfolio

import (
	"sort"
	"strings"
)

// Registry maps portfolio names to ticker sets. It is not safe for
// concurrent use; callers serialise access.
type Registry struct {
	order  []string
	sets   map[string]map[string]struct{}
	active string
}

func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]map[string]struct{})}
}

func normTicker(t string) string { return strings.ToUpper(strings.TrimSpace(t)) }

// Create adds name if absent and always makes it active.
func (r *Registry) Create(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if _, ok := r.sets[name]; !ok {
		r.sets[name] = make(map[string]struct{})
		r.order = append(r.order, name)
	}
	r.active = name
}

// SetActive switches the active portfolio. Unknown names are ignored.
func (r *Registry) SetActive(name string) bool {
	name = strings.TrimSpace(name)
	if _, ok := r.sets[name]; !ok {
		return false
	}
	r.active = name
	return true
}

// Active returns the active portfolio name, if any.
func (r *Registry) Active() (string, bool) {
	return r.active, r.active != ""
}

// AddStock adds ticker to the active portfolio; no-op without one.
func (r *Registry) AddStock(ticker string) bool {
	set, ok := r.sets[r.active]
	t := normTicker(ticker)
	if !ok || t == "" {
		return false
	}
	set[t] = struct{}{}
	return true
}

// RemoveStock removes ticker from the active portfolio; no-op without one.
func (r *Registry) RemoveStock(ticker string) bool {
	set, ok := r.sets[r.active]
	if !ok {
		return false
	}
	t := normTicker(ticker)
	if _, present := set[t]; !present {
		return false
	}
	delete(set, t)
	return true
}

// ListNames returns portfolio names in creation order.
func (r *Registry) ListNames() []string {
	return append([]string(nil), r.order...)
}

// GetStocks returns the tickers of name, sorted. Unknown names yield nil.
func (r *Registry) GetStocks(name string) []string {
	set, ok := r.sets[strings.TrimSpace(name)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.sets[strings.TrimSpace(name)]
	return ok
}
