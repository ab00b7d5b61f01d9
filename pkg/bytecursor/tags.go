package bytecursor

import "fmt"

// Tag identifies a block in the Neurolucida binary format.
type Tag uint16

// Registered block tags.
const (
	TagString       Tag = 0x0001
	TagThumbnail    Tag = 0x0040
	TagSample       Tag = 0x0101
	Tag0102         Tag = 0x0102
	TagSampleList   Tag = 0x0103
	TagProperty     Tag = 0x0104
	TagPropertyList Tag = 0x0105
	TagContour      Tag = 0x0201
	TagTree         Tag = 0x0202
	TagBranch       Tag = 0x0203
	TagMarker       Tag = 0x0204
	TagMarkerList   Tag = 0x0205
	TagSpine        Tag = 0x0206
	TagSpineList    Tag = 0x0207
	TagText         Tag = 0x0208
	TagSubtree      Tag = 0x0209
	TagScalebar     Tag = 0x020D
	Tag0210         Tag = 0x0210
	TagDescription  Tag = 0x0402
	TagImageData    Tag = 0x0403
)

// EndSentinel marks the end of the block stream.
const EndSentinel uint32 = 0xAABBCCDD

var tagNames = map[Tag]string{
	TagString:       "string",
	TagThumbnail:    "thumbnail",
	TagSample:       "sample",
	Tag0102:         "0x0102",
	TagSampleList:   "sampleList",
	TagProperty:     "property",
	TagPropertyList: "propertyList",
	TagContour:      "contour",
	TagTree:         "tree",
	TagBranch:       "branch",
	TagMarker:       "marker",
	TagMarkerList:   "markerList",
	TagSpine:        "spine",
	TagSpineList:    "spineList",
	TagText:         "text",
	TagSubtree:      "subtree",
	TagScalebar:     "scalebar",
	Tag0210:         "0x0210",
	TagDescription:  "description",
	TagImageData:    "thumbnail",
}

// String returns the registered name of t, or its hex value.
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", uint16(t))
}

// Known reports whether t is a registered tag.
func (t Tag) Known() bool {
	_, ok := tagNames[t]
	return ok
}

// TagName returns the registered name of a raw tag value.
func TagName(v uint16) string { return Tag(v).String() }
