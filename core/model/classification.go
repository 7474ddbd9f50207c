package model

import "fmt"

// ClassificationLevel orders security markings from least to most restrictive.
// The zero value means no marking was supplied.
type ClassificationLevel int

const (
	ClassificationNone ClassificationLevel = iota
	ClassificationUnclassified
	ClassificationConfidential
	ClassificationSecret
	ClassificationTopSecret
)

var classificationNames = map[ClassificationLevel]string{
	ClassificationNone:         "",
	ClassificationUnclassified: "UNCLASSIFIED",
	ClassificationConfidential: "CONFIDENTIAL",
	ClassificationSecret:       "SECRET",
	ClassificationTopSecret:    "TOP SECRET",
}

func (c ClassificationLevel) String() string {
	if s, ok := classificationNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ClassificationLevel(%d)", int(c))
}

// ParseClassification maps a marking string to its level. An empty string is
// accepted and means unmarked.
func ParseClassification(s string) (ClassificationLevel, error) {
	switch s {
	case "":
		return ClassificationNone, nil
	case "UNCLASSIFIED", "U":
		return ClassificationUnclassified, nil
	case "CONFIDENTIAL", "C":
		return ClassificationConfidential, nil
	case "SECRET", "S":
		return ClassificationSecret, nil
	case "TOP SECRET", "TS":
		return ClassificationTopSecret, nil
	}
	return ClassificationNone, fmt.Errorf("unknown classification marking %q", s)
}

// MarshalJSON encodes the level as its marking string.
func (c ClassificationLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON decodes a marking string into a level.
func (c *ClassificationLevel) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	lvl, err := ParseClassification(s)
	if err != nil {
		return err
	}
	*c = lvl
	return nil
}
