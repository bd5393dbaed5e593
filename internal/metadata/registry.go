package metadata

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registry holds every registered entity and table config and resolves
// them into the list of browsable tables. Registration happens at
// startup; reads dominate afterwards.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	configs  map[string]*TableConfig
	order    []string // entity registration order
	cfgOrder []string // config registration order
	showAll  bool

	tables  []*Entity // inheritance-resolved, in display order
	byTable map[string]*Entity

	log *zap.Logger
}

// NewRegistry creates an empty registry. When showAll is false and at
// least one table config is registered, only configured entities are
// listed.
func NewRegistry(log *zap.Logger, showAll bool) *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
		configs:  make(map[string]*TableConfig),
		byTable:  make(map[string]*Entity),
		showAll:  showAll,
		log:      log,
	}
}

// Register adds one entity. Later registrations replace earlier ones of
// the same name but keep the original position.
func (r *Registry) Register(e *Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[e.Name]; !ok {
		r.order = append(r.order, e.Name)
	}
	r.entities[e.Name] = e
	r.resolveLocked()
}

// RegisterTable adds one table config and compiles its expression
// columns.
func (r *Registry) RegisterTable(cfg *TableConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg.compilePrograms(r.log)
	if _, ok := r.configs[cfg.Entity]; !ok {
		r.cfgOrder = append(r.cfgOrder, cfg.Entity)
	}
	r.configs[cfg.Entity] = cfg
	r.resolveLocked()
}

// Load replaces all entities and configs at once.
func (r *Registry) Load(entities []*Entity, configs []*TableConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = make(map[string]*Entity, len(entities))
	r.order = r.order[:0]
	for _, e := range entities {
		if _, ok := r.entities[e.Name]; !ok {
			r.order = append(r.order, e.Name)
		}
		r.entities[e.Name] = e
	}
	r.configs = make(map[string]*TableConfig, len(configs))
	r.cfgOrder = r.cfgOrder[:0]
	for _, cfg := range configs {
		cfg.compilePrograms(r.log)
		if _, ok := r.configs[cfg.Entity]; !ok {
			r.cfgOrder = append(r.cfgOrder, cfg.Entity)
		}
		r.configs[cfg.Entity] = cfg
	}
	r.resolveLocked()
}

// Tables returns the browsable tables in display order.
func (r *Registry) Tables() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entity, len(r.tables))
	copy(out, r.tables)
	return out
}

// Table returns the resolved entity served under the given table name,
// or nil.
func (r *Registry) Table(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byTable[name]
}

// Entity returns the raw registered entity by name, or nil. Resolved
// tables may differ from raw entities when inheritance merges them.
func (r *Registry) Entity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// Config returns the table config registered for the entity, or nil.
func (r *Registry) Config(entityName string) *TableConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[entityName]
}

// TableNameFor returns the table name links to the given entity should
// use. Unregistered targets fall back to the lowercased entity name.
func (r *Registry) TableNameFor(entityName string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entities[entityName]; ok {
		for _, t := range r.tables {
			if t.Name == e.Name {
				return t.Table
			}
		}
		// Listed under a hierarchy root or filtered out; its own table
		// name still identifies it.
		return e.Table
	}
	return strings.ToLower(entityName)
}

// resolveLocked rebuilds the browsable table list. Hierarchy roots are
// processed first so their subclasses never show up as standalone
// tables; remaining entities follow in registration order.
func (r *Registry) resolveLocked() {
	processed := make(map[string]bool, len(r.entities))
	tables := make([]*Entity, 0, len(r.entities))

	for _, name := range r.order {
		e := r.entities[name]
		if e.Inheritance == "" || e.Parent != "" {
			continue
		}
		subs := r.subclassesLocked(name)
		switch e.Inheritance {
		case InheritanceJoined:
			tables = append(tables, mergeJoined(e, subs))
			processed[name] = true
			for _, s := range subs {
				processed[s.Name] = true
			}
		case InheritanceSingleTable:
			// Subclasses share the base table; the base alone is listed.
			tables = append(tables, e)
			processed[name] = true
			for _, s := range subs {
				processed[s.Name] = true
			}
		case InheritanceTablePerClass:
			tables = append(tables, e)
			processed[name] = true
			for _, s := range subs {
				tables = append(tables, r.withInheritedAttributes(s))
				processed[s.Name] = true
			}
		default:
			r.log.Warn("unknown inheritance strategy, listing base only",
				zap.String("entity", name),
				zap.String("strategy", e.Inheritance))
			tables = append(tables, e)
			processed[name] = true
		}
	}

	for _, name := range r.order {
		if processed[name] {
			continue
		}
		e := r.entities[name]
		if e.Parent != "" {
			if _, ok := r.entities[e.Parent]; !ok {
				r.log.Warn("skipping entity with unknown parent",
					zap.String("entity", name),
					zap.String("parent", e.Parent))
				continue
			}
			tables = append(tables, r.withInheritedAttributes(e))
			continue
		}
		tables = append(tables, e)
	}

	if !r.showAll && len(r.configs) > 0 {
		byName := make(map[string]*Entity, len(tables))
		for _, t := range tables {
			byName[t.Name] = t
		}
		filtered := make([]*Entity, 0, len(r.cfgOrder))
		for _, entityName := range r.cfgOrder {
			t, ok := byName[entityName]
			if !ok {
				r.log.Warn("table config names unknown entity",
					zap.String("entity", entityName))
				continue
			}
			filtered = append(filtered, t)
		}
		tables = filtered
	}

	r.tables = tables
	r.byTable = make(map[string]*Entity, len(tables))
	for _, t := range tables {
		r.byTable[t.Table] = t
	}
}

// subclassesLocked returns every entity whose parent chain reaches
// root, in registration order.
func (r *Registry) subclassesLocked(root string) []*Entity {
	var subs []*Entity
	for _, name := range r.order {
		e := r.entities[name]
		if e.Parent == "" {
			continue
		}
		for p := e.Parent; p != ""; {
			if p == root {
				subs = append(subs, e)
				break
			}
			next, ok := r.entities[p]
			if !ok {
				break
			}
			p = next.Parent
		}
	}
	return subs
}

// withInheritedAttributes returns a copy of e whose attribute list is
// completed from its ancestors: the identifier first, the entity's own
// attributes, then each ancestor's attributes that are not shadowed.
func (r *Registry) withInheritedAttributes(e *Entity) *Entity {
	merged := &Entity{Name: e.Name, Table: e.Table}
	seen := make(map[string]bool)

	appendAttrs := func(attrs []Attribute) {
		for _, a := range attrs {
			if seen[a.Name] {
				continue
			}
			seen[a.Name] = true
			if a.ID {
				merged.Attributes = append([]Attribute{a}, merged.Attributes...)
				continue
			}
			merged.Attributes = append(merged.Attributes, a)
		}
	}

	appendAttrs(e.Attributes)
	for p := e.Parent; p != ""; {
		parent, ok := r.entities[p]
		if !ok {
			break
		}
		appendAttrs(parent.Attributes)
		p = parent.Parent
	}
	return merged
}

// mergeJoined builds the synthetic entity for a joined hierarchy: one
// table whose name comma-joins every participating table, attributes
// merged base first with the identifier leading, and each subclass
// attribute tagged with its owning table for SQL generation.
func mergeJoined(base *Entity, subs []*Entity) *Entity {
	tableNames := []string{base.Table}
	merged := &Entity{Name: base.Name}
	seen := make(map[string]bool)

	for _, a := range base.Attributes {
		if seen[a.Name] {
			continue
		}
		seen[a.Name] = true
		if a.ID {
			merged.Attributes = append([]Attribute{a}, merged.Attributes...)
			continue
		}
		merged.Attributes = append(merged.Attributes, a)
	}

	for _, s := range subs {
		tableNames = append(tableNames, s.Table)
		merged.joinedTables = append(merged.joinedTables, s.Table)
		for _, a := range s.Attributes {
			if seen[a.Name] {
				continue
			}
			seen[a.Name] = true
			a.table = s.Table
			merged.Attributes = append(merged.Attributes, a)
		}
	}

	merged.Table = strings.Join(tableNames, ",")
	return merged
}
