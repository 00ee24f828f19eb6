package device

import (
	"fmt"
	"strings"
)

// Features is a set of optional GPU capabilities. It describes both what a
// kernel requires and what a device offers.
type Features uint32

const (
	INT8    Features = 1 << 0
	INT16   Features = 1 << 1
	INT64   Features = 1 << 2
	FLOAT16 Features = 1 << 3
	FLOAT64 Features = 1 << 4

	BUFFER8         Features = 1 << 8
	BUFFER16        Features = 1 << 9
	PUSH_CONSTANT8  Features = 1 << 10
	PUSH_CONSTANT16 Features = 1 << 11

	SUBGROUP_BASIC            Features = 1 << 16
	SUBGROUP_VOTE             Features = 1 << 17
	SUBGROUP_ARITHMETIC       Features = 1 << 18
	SUBGROUP_BALLOT           Features = 1 << 19
	SUBGROUP_SHUFFLE          Features = 1 << 20
	SUBGROUP_SHUFFLE_RELATIVE Features = 1 << 21
	SUBGROUP_CLUSTERED        Features = 1 << 22
	SUBGROUP_QUAD             Features = 1 << 23
)

var featureNames = []struct {
	flag Features
	name string
}{
	{INT8, "INT8"},
	{INT16, "INT16"},
	{INT64, "INT64"},
	{FLOAT16, "FLOAT16"},
	{FLOAT64, "FLOAT64"},
	{BUFFER8, "BUFFER8"},
	{BUFFER16, "BUFFER16"},
	{PUSH_CONSTANT8, "PUSH_CONSTANT8"},
	{PUSH_CONSTANT16, "PUSH_CONSTANT16"},
	{SUBGROUP_BASIC, "SUBGROUP_BASIC"},
	{SUBGROUP_VOTE, "SUBGROUP_VOTE"},
	{SUBGROUP_ARITHMETIC, "SUBGROUP_ARITHMETIC"},
	{SUBGROUP_BALLOT, "SUBGROUP_BALLOT"},
	{SUBGROUP_SHUFFLE, "SUBGROUP_SHUFFLE"},
	{SUBGROUP_SHUFFLE_RELATIVE, "SUBGROUP_SHUFFLE_RELATIVE"},
	{SUBGROUP_CLUSTERED, "SUBGROUP_CLUSTERED"},
	{SUBGROUP_QUAD, "SUBGROUP_QUAD"},
}

// Contains reports whether every flag of other is also set in f.
func (f Features) Contains(other Features) bool {
	return f|other == f
}

func (f Features) Union(other Features) Features {
	return f | other
}

// Difference returns the flags of f that are not in other.
func (f Features) Difference(other Features) Features {
	return f &^ other
}

func (f Features) IsEmpty() bool { return f == 0 }

// Names returns the names of the set flags in bit order.
func (f Features) Names() []string {
	var names []string
	for _, fn := range featureNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f Features) String() string {
	if f == 0 {
		return "NONE"
	}
	return strings.Join(f.Names(), "|")
}

// ParseFeature returns the flag with the given name. The SUBGROUP_ prefix may
// be omitted for the subgroup operation classes ("VOTE", "BALLOT", ...).
func ParseFeature(name string) (Features, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, fn := range featureNames {
		if fn.name == upper || fn.name == "SUBGROUP_"+upper {
			return fn.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown feature %q", name)
}

// ParseFeatures parses a "|" or "," separated list of feature names.
func ParseFeatures(s string) (Features, error) {
	var f Features
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		if strings.TrimSpace(part) == "NONE" {
			continue
		}
		flag, err := ParseFeature(part)
		if err != nil {
			return 0, err
		}
		f |= flag
	}
	return f, nil
}
