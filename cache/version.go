package cache

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Compatible reports whether a cache produced by krnlc version producer can
// be consumed by krnl version consumer.
//
// Pre-release versions must match exactly. Otherwise 0.0.x versions must be
// equal, 0.x versions must share the minor version, and later versions must
// share major and minor versions.
func Compatible(producer, consumer string) (bool, error) {
	p, err := semver.StrictNewVersion(producer)
	if err != nil {
		return false, fmt.Errorf("invalid producer version %q: %w", producer, err)
	}
	v, err := semver.StrictNewVersion(consumer)
	if err != nil {
		return false, fmt.Errorf("invalid consumer version %q: %w", consumer, err)
	}
	if p.Prerelease() != "" || v.Prerelease() != "" {
		return producer == consumer, nil
	}
	switch {
	case v.Major() == 0 && v.Minor() == 0:
		return p.Major() == 0 && p.Minor() == 0 && p.Patch() == v.Patch(), nil
	case v.Major() == 0:
		return p.Major() == 0 && p.Minor() == v.Minor(), nil
	default:
		return p.Major() == v.Major() && p.Minor() == v.Minor(), nil
	}
}

// CheckVersion returns a *VersionIncompatibleError when producer and
// consumer are not compatible.
func CheckVersion(producer, consumer string) error {
	ok, err := Compatible(producer, consumer)
	if err != nil {
		return formatError(err, "checking cache version")
	}
	if !ok {
		return &VersionIncompatibleError{Producer: producer, Consumer: consumer}
	}
	return nil
}
