package importer

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/schollz/closestmatch"
	"gopkg.in/yaml.v3"

	"github.com/fleetify/api/internal/textnorm"
)

//go:embed kinds.yaml
var defaultCatalog []byte

type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
	FieldAmount FieldType = "amount"
	FieldDate   FieldType = "date"
	FieldPhone  FieldType = "phone"
	FieldEmail  FieldType = "email"
	FieldEnum   FieldType = "enum"
)

type DateOrder string

const (
	DayFirst   DateOrder = "dmy"
	MonthFirst DateOrder = "mdy"
)

type Field struct {
	Name        string    `yaml:"name" json:"name"`
	Type        FieldType `yaml:"type" json:"type"`
	Required    bool      `yaml:"required" json:"required"`
	Enum        string    `yaml:"enum" json:"enum,omitempty"`
	Aliases     []string  `yaml:"aliases" json:"aliases,omitempty"`
	Example     string    `yaml:"example" json:"example,omitempty"`
	Description string    `yaml:"description" json:"description,omitempty"`
}

type Sequence struct {
	Prefix string `yaml:"prefix" json:"prefix"`
	Width  int    `yaml:"width" json:"width"`
}

// Reference links a row to a record of another kind. Its columns are
// <name>_id, <name>_code, <name>_name and <name>_phone; the last two only
// exist when the target kind has a name or phone field. The resolved ID is
// stored in <name>_id.
type Reference struct {
	Name       string              `yaml:"name" json:"name"`
	Kind       string              `yaml:"kind" json:"kind"`
	Required   bool                `yaml:"required" json:"required"`
	AutoCreate bool                `yaml:"auto_create" json:"autoCreate"`
	Aliases    map[string][]string `yaml:"aliases" json:"-"`

	target *Kind
}

func (r *Reference) Field() string       { return r.Name + "_id" }
func (r *Reference) IDColumn() string    { return r.Name + "_id" }
func (r *Reference) CodeColumn() string  { return r.Name + "_code" }
func (r *Reference) NameColumn() string  { return r.Name + "_name" }
func (r *Reference) PhoneColumn() string { return r.Name + "_phone" }

// Target is the kind the reference points at.
func (r *Reference) Target() *Kind { return r.target }

// Columns lists the input columns of the reference in template order.
func (r *Reference) Columns() []string {
	cols := []string{r.IDColumn(), r.CodeColumn()}
	if r.target != nil && r.target.NameField != "" {
		cols = append(cols, r.NameColumn())
	}
	if r.target != nil && r.target.PhoneField != "" {
		cols = append(cols, r.PhoneColumn())
	}
	return cols
}

type Kind struct {
	Name        string            `yaml:"name" json:"name"`
	Label       string            `yaml:"label" json:"label"`
	LabelAr     string            `yaml:"label_ar" json:"labelAr"`
	Entity      string            `yaml:"entity" json:"entity"`
	NaturalKey  string            `yaml:"natural_key" json:"naturalKey"`
	NameField   string            `yaml:"name_field" json:"nameField,omitempty"`
	PhoneField  string            `yaml:"phone_field" json:"phoneField,omitempty"`
	Sequence    *Sequence         `yaml:"sequence" json:"sequence,omitempty"`
	LinkInvoice bool              `yaml:"link_invoice" json:"linkInvoice"`
	Initial     map[string]string `yaml:"initial" json:"-"`
	Fields      []Field           `yaml:"fields" json:"fields"`
	References  []Reference       `yaml:"references" json:"references,omitempty"`

	// headers maps a compacted header or alias to its column name.
	headers map[string]string
	fields  map[string]*Field
}

// Field returns the field definition with the given name.
func (k *Kind) Field(name string) (*Field, bool) {
	f, ok := k.fields[name]
	return f, ok
}

// Column maps a raw spreadsheet header to the kind's column name.
func (k *Kind) Column(header string) (string, bool) {
	col, ok := k.headers[textnorm.Compact(header)]
	return col, ok
}

// Columns lists every input column: fields first, then reference columns.
func (k *Kind) Columns() []string {
	cols := make([]string, 0, len(k.Fields)+4*len(k.References))
	for _, f := range k.Fields {
		cols = append(cols, f.Name)
	}
	for i := range k.References {
		cols = append(cols, k.References[i].Columns()...)
	}
	return cols
}

type Enum struct {
	Default string              `yaml:"default"`
	Values  map[string][]string `yaml:"values"`

	lookup  map[string]string
	matcher *closestmatch.ClosestMatch
}

// Match maps a raw value to its canonical code.
func (e *Enum) Match(raw string) (string, bool) {
	code, ok := e.lookup[textnorm.Fold(raw)]
	return code, ok
}

// Suggest returns the canonical code closest to raw, or "".
func (e *Enum) Suggest(raw string) string {
	folded := textnorm.Fold(raw)
	if folded == "" || e.matcher == nil {
		return ""
	}
	return e.lookup[e.matcher.Closest(folded)]
}

// Codes returns the canonical codes in sorted order.
func (e *Enum) Codes() []string {
	codes := make([]string, 0, len(e.Values))
	for code := range e.Values {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

type Catalog struct {
	DateOrder DateOrder        `yaml:"date_order"`
	Enums     map[string]*Enum `yaml:"enums"`
	Kinds     []*Kind          `yaml:"kinds"`

	byName map[string]*Kind
}

// DefaultCatalog parses the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Kind looks a kind up by name.
func (c *Catalog) Kind(name string) (*Kind, bool) {
	k, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// Enum looks an enum up by name.
func (c *Catalog) Enum(name string) (*Enum, bool) {
	e, ok := c.Enums[name]
	return e, ok
}

func (c *Catalog) index() error {
	switch c.DateOrder {
	case "":
		c.DateOrder = DayFirst
	case DayFirst, MonthFirst:
	default:
		return fmt.Errorf("catalog: unknown date_order %q", c.DateOrder)
	}

	for name, e := range c.Enums {
		if err := e.index(name); err != nil {
			return err
		}
	}

	c.byName = make(map[string]*Kind, len(c.Kinds))
	for _, k := range c.Kinds {
		if k.Name == "" {
			return fmt.Errorf("catalog: kind without a name")
		}
		if _, dup := c.byName[k.Name]; dup {
			return fmt.Errorf("catalog: duplicate kind %q", k.Name)
		}
		if k.Entity == "" {
			k.Entity = k.Name
		}
		c.byName[k.Name] = k
	}

	for _, k := range c.Kinds {
		if err := c.indexKind(k); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enum) index(name string) error {
	e.lookup = map[string]string{}
	var words []string
	for code, synonyms := range e.Values {
		for _, word := range append([]string{code, strings.ReplaceAll(code, "_", " ")}, synonyms...) {
			folded := textnorm.Fold(word)
			if folded == "" {
				continue
			}
			if existing, ok := e.lookup[folded]; ok && existing != code {
				return fmt.Errorf("catalog: enum %s: %q maps to both %s and %s", name, word, existing, code)
			}
			if _, ok := e.lookup[folded]; !ok {
				words = append(words, folded)
			}
			e.lookup[folded] = code
		}
	}
	if e.Default != "" {
		if _, ok := e.Values[e.Default]; !ok {
			return fmt.Errorf("catalog: enum %s: default %q is not a value", name, e.Default)
		}
	}
	sort.Strings(words)
	if len(words) > 0 {
		e.matcher = closestmatch.New(words, []int{2, 3})
	}
	return nil
}

func (c *Catalog) indexKind(k *Kind) error {
	k.headers = map[string]string{}
	k.fields = make(map[string]*Field, len(k.Fields))

	add := func(column string, aliases ...string) error {
		for _, header := range append([]string{column}, aliases...) {
			key := textnorm.Compact(header)
			if key == "" {
				continue
			}
			if existing, ok := k.headers[key]; ok && existing != column {
				return fmt.Errorf("catalog: kind %s: header %q maps to both %s and %s", k.Name, header, existing, column)
			}
			k.headers[key] = column
		}
		return nil
	}

	for i := range k.Fields {
		f := &k.Fields[i]
		switch f.Type {
		case FieldText, FieldNumber, FieldAmount, FieldDate, FieldPhone, FieldEmail:
		case FieldEnum:
			if _, ok := c.Enums[f.Enum]; !ok {
				return fmt.Errorf("catalog: kind %s: field %s uses unknown enum %q", k.Name, f.Name, f.Enum)
			}
		default:
			return fmt.Errorf("catalog: kind %s: field %s has unknown type %q", k.Name, f.Name, f.Type)
		}
		k.fields[f.Name] = f
		if err := add(f.Name, f.Aliases...); err != nil {
			return err
		}
	}

	if k.NaturalKey != "" {
		if _, ok := k.fields[k.NaturalKey]; !ok {
			return fmt.Errorf("catalog: kind %s: natural key %s is not a field", k.Name, k.NaturalKey)
		}
	}
	if k.Sequence != nil && (k.Sequence.Prefix == "" || k.Sequence.Width <= 0) {
		return fmt.Errorf("catalog: kind %s: sequence needs a prefix and a positive width", k.Name)
	}
	for _, name := range []string{k.NameField, k.PhoneField} {
		if _, ok := k.fields[name]; name != "" && !ok {
			return fmt.Errorf("catalog: kind %s: %s is not a field", k.Name, name)
		}
	}

	for i := range k.References {
		ref := &k.References[i]
		target, ok := c.byName[ref.Kind]
		if !ok {
			return fmt.Errorf("catalog: kind %s: reference %s targets unknown kind %q", k.Name, ref.Name, ref.Kind)
		}
		ref.target = target
		if ref.AutoCreate && target.NameField == "" {
			return fmt.Errorf("catalog: kind %s: reference %s cannot auto-create %s without a name field", k.Name, ref.Name, target.Name)
		}
		for _, part := range []struct {
			column string
			alias  string
		}{
			{ref.IDColumn(), "id"},
			{ref.CodeColumn(), "code"},
			{ref.NameColumn(), "name"},
			{ref.PhoneColumn(), "phone"},
		} {
			if !containsString(ref.Columns(), part.column) {
				continue
			}
			if err := add(part.column, ref.Aliases[part.alias]...); err != nil {
				return err
			}
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
