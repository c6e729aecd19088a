// Package styles provides the theme variable table consumed by window
// components. Variables are parsed from `$NAME: value;` declarations into an
// explicit, ordered table of (name, kind, raw value) entries; the kind is
// decided by name prefix at load time, never by runtime reflection.
package styles

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/envdesk/envdesk/errors"
)

// Kind classifies a theme variable
type Kind int

const (
	// KindNumber is a plain numeric value (padding, radius, width)
	KindNumber Kind = iota
	// KindColor is a hex color (#rgb or #rrggbb)
	KindColor
	// KindIcon is a path to an icon asset
	KindIcon
	// KindSize is a WxH pair
	KindSize
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindColor:
		return "color"
	case KindIcon:
		return "icon"
	case KindSize:
		return "size"
	default:
		return "unknown"
	}
}

// kindForName decides a variable's kind from its name prefix
func kindForName(name string) Kind {
	switch {
	case strings.HasPrefix(name, "ICON_"):
		return KindIcon
	case strings.HasPrefix(name, "COLOR_"):
		return KindColor
	case strings.HasPrefix(name, "SIZE_"):
		return KindSize
	default:
		return KindNumber
	}
}

// Variable is one entry of the theme table
type Variable struct {
	Name string
	Kind Kind
	Raw  string
}

// Size is a parsed SIZE_ value
type Size struct {
	Width  int
	Height int
}

// Color is a parsed COLOR_ value
type Color struct {
	R, G, B uint8
}

// Table holds theme variables in declaration order
type Table struct {
	mu      sync.RWMutex
	entries []Variable
	index   map[string]int
}

// declPattern matches `$NAME: value;` declarations
var declPattern = regexp.MustCompile(`\$([A-Z][A-Z0-9_]*)\s*:\s*([^;]+);`)

// defaultDecls seeds the table with values used before any theme file loads
const defaultDecls = `
$SHADOW_BLUR_RADIUS: 7;
$WIDGET_CONTENT_PADDING: 5;
$WIDGET_CONTENT_MARGIN: 5;
$WIDGET_APPLICATION_TOTAL_WIDTH: 200;
$WIDGET_APPLICATION_TOTAL_HEIGHT: 220;
$WIDGET_ENVIRONMENT_TOTAL_HEIGHT: 40;
$WIDGET_ENVIRONMENT_TOTAL_WIDTH: 25;
$COLOR_FOREGROUND_NOT_INSTALLED: #666;
$COLOR_FOREGROUND_UPGRADE: #00A3E0;
$SIZE_ICONS: 24x24;
`

// Default returns a table seeded with the built-in declarations
func Default() *Table {
	table, err := Parse(defaultDecls)
	if err != nil {
		// Built-in declarations are constant; a parse failure is a bug
		panic(err)
	}
	return table
}

// Parse builds a table from theme source text.
// Later declarations of the same name override earlier ones in place, so a
// theme file can be layered over the defaults with Merge.
func Parse(data string) (*Table, error) {
	table := &Table{index: make(map[string]int)}

	for _, match := range declPattern.FindAllStringSubmatch(data, -1) {
		name := match[1]
		raw := strings.TrimSpace(match[2])
		if raw == "" {
			return nil, errors.WrapInvalid(
				fmt.Errorf("variable %s has empty value", name),
				"Table", "Parse", "declaration validation")
		}
		table.put(Variable{Name: name, Kind: kindForName(name), Raw: raw})
	}

	return table, nil
}

// put inserts or overrides an entry, preserving first-seen order
func (t *Table) put(v Variable) {
	if i, ok := t.index[v.Name]; ok {
		t.entries[i] = v
		return
	}
	t.index[v.Name] = len(t.entries)
	t.entries = append(t.entries, v)
}

// Merge layers declarations from another table over this one
func (t *Table) Merge(other *Table) {
	other.mu.RLock()
	defer other.mu.RUnlock()
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, v := range other.entries {
		t.put(v)
	}
}

// Entries returns the table contents in declaration order
func (t *Table) Entries() []Variable {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Variable, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup returns the entry for name
func (t *Table) Lookup(name string) (Variable, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i, ok := t.index[name]
	if !ok {
		return Variable{}, false
	}
	return t.entries[i], true
}

// Number returns a numeric variable, or def when missing or malformed
func (t *Table) Number(name string, def float64) float64 {
	v, ok := t.Lookup(name)
	if !ok || v.Kind != KindNumber {
		return def
	}
	n, err := strconv.ParseFloat(v.Raw, 64)
	if err != nil {
		return def
	}
	return n
}

// Icon returns an icon path variable, or def when missing
func (t *Table) Icon(name, def string) string {
	v, ok := t.Lookup(name)
	if !ok || v.Kind != KindIcon {
		return def
	}
	return v.Raw
}

// ParseColor parses a #rgb or #rrggbb hex color
func ParseColor(raw string) (Color, error) {
	raw = strings.TrimPrefix(raw, "#")
	switch len(raw) {
	case 3:
		raw = string([]byte{raw[0], raw[0], raw[1], raw[1], raw[2], raw[2]})
	case 6:
	default:
		return Color{}, fmt.Errorf("invalid color length %d", len(raw))
	}

	n, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color: %w", err)
	}
	return Color{R: uint8(n >> 16), G: uint8(n >> 8 & 0xff), B: uint8(n & 0xff)}, nil
}

// ParseSize parses a WxH pair
func ParseSize(raw string) (Size, error) {
	parts := strings.SplitN(raw, "x", 2)
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("invalid size %q", raw)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Size{}, fmt.Errorf("invalid size width: %w", err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Size{}, fmt.Errorf("invalid size height: %w", err)
	}
	return Size{Width: w, Height: h}, nil
}

// Palette holds the typed values handed to components on style updates
type Palette struct {
	Colors  map[string]Color
	Icons   map[string]string
	Sizes   map[string]Size
	Numbers map[string]float64
}

// Palette converts the table to typed values, skipping malformed entries
func (t *Table) Palette() Palette {
	palette := Palette{
		Colors:  make(map[string]Color),
		Icons:   make(map[string]string),
		Sizes:   make(map[string]Size),
		Numbers: make(map[string]float64),
	}

	for _, v := range t.Entries() {
		switch v.Kind {
		case KindColor:
			if c, err := ParseColor(v.Raw); err == nil {
				palette.Colors[v.Name] = c
			}
		case KindIcon:
			palette.Icons[v.Name] = v.Raw
		case KindSize:
			if s, err := ParseSize(v.Raw); err == nil {
				palette.Sizes[v.Name] = s
			}
		case KindNumber:
			if n, err := strconv.ParseFloat(v.Raw, 64); err == nil {
				palette.Numbers[v.Name] = n
			}
		}
	}

	return palette
}
