package topology

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// nsfLinks is the 14-node, 21-link NSFNET with link lengths in km.
var nsfLinks = []LinkSpec{
	{From: 0, To: 1, Length: 1050},
	{From: 0, To: 2, Length: 1500},
	{From: 0, To: 7, Length: 2400},
	{From: 1, To: 2, Length: 600},
	{From: 1, To: 3, Length: 750},
	{From: 2, To: 5, Length: 1800},
	{From: 3, To: 4, Length: 600},
	{From: 3, To: 10, Length: 1950},
	{From: 4, To: 5, Length: 1200},
	{From: 4, To: 6, Length: 600},
	{From: 5, To: 9, Length: 1050},
	{From: 5, To: 13, Length: 1800},
	{From: 6, To: 7, Length: 750},
	{From: 7, To: 8, Length: 750},
	{From: 8, To: 9, Length: 750},
	{From: 8, To: 11, Length: 300},
	{From: 8, To: 12, Length: 300},
	{From: 10, To: 11, Length: 600},
	{From: 10, To: 12, Length: 750},
	{From: 11, To: 13, Length: 300},
	{From: 12, To: 13, Length: 150},
}

type builtinSpec struct {
	nodes int
	links []LinkSpec
}

var builtins = map[string]builtinSpec{
	"nsf":         {nodes: 14, links: nsfLinks},
	"single-link": {nodes: 2, links: []LinkSpec{{From: 0, To: 1}}},
}

// IsValidBuiltin reports whether name is a built-in topology.
func IsValidBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// BuiltinNames returns the sorted built-in topology names.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builtin builds a named built-in topology with slots per link and k candidate paths.
func Builtin(name string, slots, k int) (*Topology, error) {
	b, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown topology %q; valid: %v", name, BuiltinNames())
	}
	return New(name, b.nodes, b.links, slots, k)
}

// File is the YAML layout of a topology file.
type File struct {
	Name  string     `yaml:"name"`
	Nodes int        `yaml:"nodes"`
	Slots int        `yaml:"slots"`
	Links []LinkSpec `yaml:"links"`
}

// Load reads a YAML topology file. Unknown keys are rejected.
// slots overrides the file's default slot count when positive.
func Load(path string, slots, k int) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing topology file: %w", err)
	}
	if slots > 0 {
		f.Slots = slots
	}
	name := f.Name
	if name == "" {
		name = path
	}
	return New(name, f.Nodes, f.Links, f.Slots, k)
}
