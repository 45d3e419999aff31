package models

import (
	"fmt"
	"regexp"
)

// DataSource selects the backing store an intent reads from.
type DataSource string

const (
	DataSourceTransactional DataSource = "transactional"
	DataSourceKnowledge     DataSource = "knowledge"
)

// SlotType drives the informal validation applied to extracted slot values.
type SlotType string

const (
	SlotTypeString     SlotType = "string"
	SlotTypeIdentifier SlotType = "identifier"
	SlotTypeEnum       SlotType = "enum"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// SlotDefinition describes one named piece of information an intent may need.
type SlotDefinition struct {
	Name           string   `json:"name" mapstructure:"name"`
	Type           SlotType `json:"type" mapstructure:"type"`
	Enum           []string `json:"enum,omitempty" mapstructure:"enum"`
	ExtractionHint string   `json:"extractionHint,omitempty" mapstructure:"extraction_hint"`
}

// Accepts reports whether a candidate value passes the slot's informal type
// check. Empty values never fill a slot.
func (d SlotDefinition) Accepts(value string) bool {
	if value == "" {
		return false
	}
	switch d.Type {
	case SlotTypeIdentifier:
		return identifierPattern.MatchString(value)
	case SlotTypeEnum:
		for _, allowed := range d.Enum {
			if value == allowed {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// QueryTemplate parameterizes the data-source read for an intent.
type QueryTemplate struct {
	Index    string `json:"index,omitempty" mapstructure:"index"`
	KeyField string `json:"keyField" mapstructure:"key_field"`
	KeySlot  string `json:"keySlot" mapstructure:"key_slot"`
}

// IntentDefinition is configuration data, loaded once at process start and
// read-only during request handling.
type IntentDefinition struct {
	Name          string            `json:"name" mapstructure:"name"`
	Description   string            `json:"description,omitempty" mapstructure:"description"`
	RequiredSlots []string          `json:"requiredSlots" mapstructure:"required_slots"`
	DataSource    DataSource        `json:"dataSource" mapstructure:"data_source"`
	Query         QueryTemplate     `json:"query" mapstructure:"query"`
	DerivedSlots  map[string]string `json:"derivedSlots,omitempty" mapstructure:"derived_slots"`
}

// RelevantSlots is the full set of slot names this intent can make use of:
// required slots, the query key slot, and derived-slot targets. Slot values
// outside this set are dropped when the active intent changes.
func (d *IntentDefinition) RelevantSlots() map[string]bool {
	relevant := make(map[string]bool, len(d.RequiredSlots)+len(d.DerivedSlots)+1)
	for _, name := range d.RequiredSlots {
		relevant[name] = true
	}
	if d.Query.KeySlot != "" {
		relevant[d.Query.KeySlot] = true
	}
	for _, target := range d.DerivedSlots {
		relevant[target] = true
	}
	return relevant
}

// Registry holds all intent and slot definitions for the process lifetime.
type Registry struct {
	intents []IntentDefinition
	byName  map[string]*IntentDefinition
	slots   map[string]SlotDefinition
}

// NewRegistry validates cross-references between intents and slots.
func NewRegistry(intents []IntentDefinition, slots []SlotDefinition) (*Registry, error) {
	r := &Registry{
		intents: intents,
		byName:  make(map[string]*IntentDefinition, len(intents)),
		slots:   make(map[string]SlotDefinition, len(slots)),
	}

	for _, s := range slots {
		if s.Name == "" {
			return nil, fmt.Errorf("slot definition with empty name")
		}
		if _, dup := r.slots[s.Name]; dup {
			return nil, fmt.Errorf("duplicate slot definition %q", s.Name)
		}
		r.slots[s.Name] = s
	}

	for i := range r.intents {
		def := &r.intents[i]
		if def.Name == "" {
			return nil, fmt.Errorf("intent definition with empty name")
		}
		if _, dup := r.byName[def.Name]; dup {
			return nil, fmt.Errorf("duplicate intent definition %q", def.Name)
		}
		if def.DataSource != DataSourceTransactional && def.DataSource != DataSourceKnowledge {
			return nil, fmt.Errorf("intent %q: unknown data source %q", def.Name, def.DataSource)
		}
		for _, slot := range def.RequiredSlots {
			if _, ok := r.slots[slot]; !ok {
				return nil, fmt.Errorf("intent %q references undefined slot %q", def.Name, slot)
			}
		}
		if def.Query.KeySlot != "" {
			if _, ok := r.slots[def.Query.KeySlot]; !ok {
				return nil, fmt.Errorf("intent %q query references undefined slot %q", def.Name, def.Query.KeySlot)
			}
		}
		r.byName[def.Name] = def
	}

	return r, nil
}

// Intent looks up an intent definition by name.
func (r *Registry) Intent(name string) (*IntentDefinition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Slot looks up a slot definition by name.
func (r *Registry) Slot(name string) (SlotDefinition, bool) {
	def, ok := r.slots[name]
	return def, ok
}

// Definitions returns all intents in declaration order.
func (r *Registry) Definitions() []IntentDefinition {
	return r.intents
}
