// Package schema holds the SWC+ type library: the named morphological object
// types, their attributes and defaults, and the rules that map decoded
// objects onto numeric type ids.
//
// Types form a single-inheritance hierarchy through an explicit extends link.
// [Resolve] walks that chain and merges attributes so that the most specific
// type's declaration wins. Every attribute carries a default and a value type:
//
//   - A required attribute has no default and is never inserted.
//   - A fixed attribute (empty value type) belongs to the type itself and is
//     never part of a custom type key.
//   - Any other attribute may vary between objects of the same type. Decoders
//     absorb such values into the key of a file-local custom type (see
//     [Registry]).
//
// The table is static and immutable; the package has no mutable globals.
package schema

// Attr describes one attribute of a type.
type Attr struct {
	// Default is inserted by InsertDefaults when the attribute is absent.
	// It is nil for required attributes and for attributes without a default.
	Default any
	// Required marks an attribute that must be provided by the object.
	Required bool
	// ValueType names the attribute's value domain. Empty means fixed.
	ValueType string
}

// Fixed reports whether the attribute value is fixed by the type.
func (a Attr) Fixed() bool { return a.ValueType == "" }

// Def is the declaration of one named type.
type Def struct {
	Name    string
	Extends string
	Doc     string
	Attrs   map[string]Attr
}

// Spec is the merged attribute set of a type and all its ancestors.
type Spec map[string]Attr

// Standard SWC type ids.
const (
	TypeUndefined = 0
	TypeSoma      = 1
	TypeAxon      = 2
	TypeDendrite  = 3
	TypeApical    = 4

	// FirstCustomID is the first id handed out to file-local custom types.
	FirstCustomID = 16
)

// Version is the SWC+ format version written by the encoders.
const Version = "0.3"

// KeyType is the attribute under which resolved type entries record their
// type name.
const KeyType = "__type__"

func def(name, extends string, attrs map[string]Attr, doc string) Def {
	return Def{Name: name, Extends: extends, Attrs: attrs, Doc: doc}
}

func val(v any, valueType string) Attr { return Attr{Default: v, ValueType: valueType} }
func fixed(v any) Attr                 { return Attr{Default: v} }
func required(valueType string) Attr   { return Attr{Required: true, ValueType: valueType} }

var library = map[string]Def{
	"base": def("base", "", map[string]Attr{
		"id":       {ValueType: "idType"},
		"name":     required("nameType"),
		"group":    val("", "groupType"),
		"geometry": val("tree", "geomType"),
		"cellPart": val("", "partType"),
	}, "Base type that provides attributes that all types have."),

	// geometry classes
	"tree": def("tree", "base", map[string]Attr{
		"geometry": fixed("tree"),
	}, "Tree of connected points (x,y,z) with radius r, as used in regular SWC files."),
	"border": def("border", "base", map[string]Attr{
		"group":    val("borders", "groupType"),
		"geometry": fixed("border"),
	}, "Border, formed by a non-branching list of connected points. r is the wall thickness."),
	"contour": def("contour", "base", map[string]Attr{
		"group":    val("contours", "groupType"),
		"fill":     val("", "fillType"),
		"geometry": fixed("contour"),
	}, "Closed contour, formed by a non-branching list of connected points. r is the wall thickness."),
	"marker": def("marker", "base", map[string]Attr{
		"group":    val("markers", "groupType"),
		"symbol":   val("o", "symbolType"),
		"geometry": fixed("marker"),
	}, "Marker located at the point (x,y,z). r is the marker size."),
	"image": def("image", "base", map[string]Attr{
		"group":    val("images", "groupType"),
		"src":      required("imageSourceType"),
		"geometry": fixed("image"),
	}, "Image anchor, treated as a volume with a single point in the y-dimension."),
	"volume": def("volume", "base", map[string]Attr{
		"group":    val("volumes", "groupType"),
		"src":      required("volumeSourceType"),
		"geometry": fixed("volume"),
	}, "Volume anchor."),
	"surface": def("surface", "base", map[string]Attr{
		"group":    val("surfaces", "groupType"),
		"src":      required("surfaceSourceType"),
		"geometry": fixed("surface"),
	}, "Surface anchor; vertices and faces live in the file referenced by src."),

	// standard SWC types
	"undefined": def("undefined", "base", map[string]Attr{
		"id":   fixed(TypeUndefined),
		"name": fixed("undefined"),
	}, "Undefined type; SWC type 0."),
	"soma": def("soma", "tree", map[string]Attr{
		"id":       fixed(TypeSoma),
		"name":     fixed("Soma"),
		"cellPart": fixed("soma"),
	}, "Soma as a tree; SWC type 1."),
	"axon": def("axon", "tree", map[string]Attr{
		"id":       fixed(TypeAxon),
		"name":     fixed("Axon"),
		"cellPart": fixed("axon"),
		"group":    val("axons", "groupType"),
	}, "Axon; SWC type 2."),
	"dendrite": def("dendrite", "tree", map[string]Attr{
		"id":       fixed(TypeDendrite),
		"name":     fixed("(basal) Dendrite"),
		"cellPart": fixed("dendrite"),
		"group":    val("dendrites", "groupType"),
	}, "(basal) Dendrite; SWC type 3."),
	"apical": def("apical", "tree", map[string]Attr{
		"id":       fixed(TypeApical),
		"name":     fixed("Apical dendrite"),
		"cellPart": fixed("apical dendrite"),
		"group":    val("dendrites", "groupType"),
	}, "Apical dendrite; SWC type 4."),

	// specialized types
	"unknown": def("unknown", "base", nil,
		"Unknown type; a proper type could not be assigned."),
	"somaContour": def("somaContour", "contour", map[string]Attr{
		"name":     fixed("Soma (contour)"),
		"cellPart": fixed("soma"),
		"group":    val("soma contours", "groupType"),
	}, "Soma as a contour."),
	"layerBorder": def("layerBorder", "border", map[string]Attr{
		"name":         fixed("Border between layers {atlas:layerA} and {atlas:layerB}"),
		"group":        val("layer borders", "groupType"),
		"atlas:layerA": required("atlas:layerType"),
		"atlas:layerB": required("atlas:layerType"),
	}, "Border between two cortical layers."),
	"regionContour": def("regionContour", "contour", map[string]Attr{
		"name":         fixed("Region {atlas:region} contour"),
		"group":        val("region contours", "groupType"),
		"atlas:region": required("atlas:regionType"),
	}, "Contour of a brain region."),
	"regionBorder": def("regionBorder", "border", map[string]Attr{
		"name":          fixed("Region {atlas:regionA}|{atlas:regionB} border"),
		"group":         val("region borders", "groupType"),
		"atlas:regionA": required("atlas:regionType"),
		"atlas:regionB": required("atlas:regionType"),
	}, "Border between two brain regions."),
	"sectionContour": def("sectionContour", "contour", map[string]Attr{
		"name":  fixed("Slice level {level}"),
		"group": val("region borders", "groupType"),
		"level": required("levelType"),
	}, "Outer contour of a brain section."),
	"spine": def("spine", "marker", map[string]Attr{
		"name":     val("Spine", "nameType"),
		"cellPart": fixed("spine"),
		"group":    val("spines", "groupType"),
	}, "Marker that represents a spine."),
}

// standardNames lists the standard SWC types by id.
var standardNames = [...]string{"undefined", "soma", "axon", "dendrite", "apical"}

// Lookup returns the declaration of a named type.
func Lookup(name string) (Def, bool) {
	d, ok := library[name]
	return d, ok
}

// StandardName returns the type name of a standard SWC id (0-4).
func StandardName(id int) (string, bool) {
	if id < 0 || id >= len(standardNames) {
		return "", false
	}
	return standardNames[id], true
}

// StandardTypes returns fresh resolved entries for the standard ids 0-4.
func StandardTypes() map[int]Attrs {
	out := make(map[int]Attrs, len(standardNames))
	for id, name := range standardNames {
		out[id] = InsertDefaults(name, Attrs{})
	}
	return out
}
