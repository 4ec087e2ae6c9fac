// Package version implements the version chain manager and the pure
// delta engine: snapshot/delta storage, version ordering, dedup, and
// rollback over a badger-backed resource store.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/floridify/floridify/pkg/resource"
)

var semverPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

var versionValidator = validator.New()

// versionString carries the struct tag validator.Struct needs to produce a
// field-level ValidationErrors surface for ParseVersion's input, ahead of
// the stricter MAJOR.MINOR.PATCH-only extraction below (the "semver" tag
// alone would also accept prerelease/build metadata this chain scheme
// doesn't support).
type versionString struct {
	Value string `validate:"required,semver"`
}

// Parts holds the structured components of a semantic version string.
type Parts struct {
	Major, Minor, Patch int
}

func (p Parts) String() string {
	return fmt.Sprintf("%d.%d.%d", p.Major, p.Minor, p.Patch)
}

// ParseVersion parses a "MAJOR.MINOR.PATCH" string. Pure and deterministic.
func ParseVersion(v string) (Parts, error) {
	if err := versionValidator.Struct(versionString{Value: v}); err != nil {
		return Parts{}, validationErrorFor(v, err)
	}
	m := semverPattern.FindStringSubmatch(v)
	if m == nil {
		return Parts{}, resource.NewError(resource.KindValidation,
			fmt.Sprintf("invalid version string %q, expected MAJOR.MINOR.PATCH", v))
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Parts{Major: major, Minor: minor, Patch: patch}, nil
}

// validationErrorFor turns a validator.ValidationErrors into the module's
// resource.StoreError taxonomy, naming the failing tag for each field.
func validationErrorFor(v string, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return resource.NewError(resource.KindValidation, err.Error())
	}
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		reasons = append(reasons, fmt.Sprintf("version %q failed %q", v, fe.Tag()))
	}
	return resource.NewError(resource.KindValidation, strings.Join(reasons, "; "))
}

// Level names which component IncrementVersion bumps.
type Level string

const (
	LevelMajor Level = "major"
	LevelMinor Level = "minor"
	LevelPatch Level = "patch"
)

// IncrementVersion bumps a version string at the given level. Incrementing
// minor or major truncates the lower components to zero.
func IncrementVersion(v string, level Level) (string, error) {
	parts, err := ParseVersion(v)
	if err != nil {
		return "", err
	}
	switch level {
	case LevelPatch, "":
		parts.Patch++
	case LevelMinor:
		parts.Minor++
		parts.Patch = 0
	case LevelMajor:
		parts.Major++
		parts.Minor = 0
		parts.Patch = 0
	default:
		return "", resource.NewError(resource.KindValidation, fmt.Sprintf("invalid level %q", level))
	}
	return parts.String(), nil
}

// CompareVersions returns -1, 0, or 1 as v1 is less than, equal to, or
// greater than v2, by semver total order.
func CompareVersions(v1, v2 string) (int, error) {
	p1, err := ParseVersion(v1)
	if err != nil {
		return 0, err
	}
	p2, err := ParseVersion(v2)
	if err != nil {
		return 0, err
	}
	if p1.Major != p2.Major {
		return cmp(p1.Major, p2.Major), nil
	}
	if p1.Minor != p2.Minor {
		return cmp(p1.Minor, p2.Minor), nil
	}
	return cmp(p1.Patch, p2.Patch), nil
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
