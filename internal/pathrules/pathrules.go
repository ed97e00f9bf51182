// Package pathrules holds the key-naming scheme of the asset bucket.
//
// Three zones exist, each with exactly four non-empty slash-separated
// segments, none of them "." or "..":
//
//	assets/uploads/<asset>/<file>     staging
//	assets/<asset>/w_<width>/<file>   derivative
//	assets/<asset>/originals/<file>   original
//
// The layout is the only durable index of which derivatives exist, so the
// functions here are pure and must stay byte-compatible with existing keys.
package pathrules

import (
	"path"
	"strconv"
	"strings"

	"github.com/koustreak/derivr/internal/errs"
)

const (
	rootSegment      = "assets"
	stagingSegment   = "uploads"
	originalsSegment = "originals"
	widthPrefix      = "w_"
)

// ZoneKind identifies which part of the naming scheme a key belongs to.
type ZoneKind int

const (
	ZoneNone ZoneKind = iota
	ZoneStaging
	ZoneDerivative
	ZoneOriginal
)

func (k ZoneKind) String() string {
	switch k {
	case ZoneStaging:
		return "staging"
	case ZoneDerivative:
		return "derivative"
	case ZoneOriginal:
		return "original"
	default:
		return "none"
	}
}

// Zone is the classification of a key. Width is set only for ZoneDerivative.
type Zone struct {
	Kind  ZoneKind
	Width int
}

// Derivative returns the Zone of a derivative key at width w.
func Derivative(w int) Zone { return Zone{Kind: ZoneDerivative, Width: w} }

func (z Zone) String() string {
	if z.Kind == ZoneDerivative {
		return z.Kind.String() + "(" + strconv.Itoa(z.Width) + ")"
	}
	return z.Kind.String()
}

// parts is a key split on "/" that has the four-segment assets/ shape.
type parts [4]string

func split(key string) (parts, bool) {
	var p parts
	segs := strings.Split(key, "/")
	if len(segs) != len(p) || segs[0] != rootSegment {
		return p, false
	}
	for i, s := range segs {
		if s == "" || s == "." || s == ".." {
			return p, false
		}
		p[i] = s
	}
	return p, true
}

// parseWidth returns the width encoded in a w_<digits> segment.
func parseWidth(seg string) (int, bool) {
	digits, ok := strings.CutPrefix(seg, widthPrefix)
	if !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	w, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return w, true
}

// Classify maps key to exactly one Zone. Patterns are tried in the order
// staging, derivative, original; anything else is ZoneNone.
//
// An asset literally named "uploads" is never valid in the staging zone,
// since its published keys would land back in assets/uploads/.
func Classify(key string) Zone {
	p, ok := split(key)
	if !ok {
		return Zone{}
	}
	if p[1] == stagingSegment {
		if p[2] == stagingSegment {
			return Zone{}
		}
		return Zone{Kind: ZoneStaging}
	}
	if w, ok := parseWidth(p[2]); ok {
		return Derivative(w)
	}
	if p[2] == originalsSegment {
		return Zone{Kind: ZoneOriginal}
	}
	return Zone{}
}

// join concatenates segments literally; path.Join would clean them.
func join(segs ...string) string {
	return strings.Join(segs, "/")
}

func stagingParts(key string) (asset, file string, err error) {
	if Classify(key).Kind != ZoneStaging {
		return "", "", errs.Newf(errs.ErrKindMalformedKey, "%q is not a staging key", key)
	}
	p, _ := split(key)
	return p[2], p[3], nil
}

// DerivativeKey rewrites assets/uploads/<asset>/<file> to
// assets/<asset>/w_<width>/<file>.
func DerivativeKey(stagingKey string, width int) (string, error) {
	if width <= 0 {
		return "", errs.Newf(errs.ErrKindInvalidInput, "width must be positive, got %d", width)
	}
	asset, file, err := stagingParts(stagingKey)
	if err != nil {
		return "", err
	}
	return join(rootSegment, asset, widthPrefix+strconv.Itoa(width), file), nil
}

// OriginalKey rewrites assets/uploads/<asset>/<file> to
// assets/<asset>/originals/<file>.
func OriginalKey(stagingKey string) (string, error) {
	asset, file, err := stagingParts(stagingKey)
	if err != nil {
		return "", err
	}
	return join(rootSegment, asset, originalsSegment, file), nil
}

// SearchPrefix returns assets/<asset> for an original key.
func SearchPrefix(originalKey string) (string, error) {
	if Classify(originalKey).Kind != ZoneOriginal {
		return "", errs.Newf(errs.ErrKindMalformedKey, "%q is not an original key", originalKey)
	}
	p, _ := split(originalKey)
	return join(rootSegment, p[1]), nil
}

// IsDerivativeOf reports whether candidate is assets/<any>/w_<digits>/<filename>.
// The final segment must equal filename exactly: test.jpg does not match
// subtest.jpg.
func IsDerivativeOf(candidate, filename string) bool {
	p, ok := split(candidate)
	if !ok {
		return false
	}
	if _, ok := parseWidth(p[2]); !ok {
		return false
	}
	return p[3] == filename
}

// AssetName returns the <asset> segment of a staging, derivative or
// original key, and false for anything else.
func AssetName(key string) (string, bool) {
	p, ok := split(key)
	if !ok {
		return "", false
	}
	switch Classify(key).Kind {
	case ZoneStaging:
		return p[2], true
	case ZoneDerivative, ZoneOriginal:
		return p[1], true
	}
	return "", false
}

// Filename returns the last path segment of key.
func Filename(key string) string {
	return path.Base(key)
}

// Ext returns the lower-cased extension of key's filename, including the dot.
func Ext(key string) string {
	return strings.ToLower(path.Ext(key))
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsImage reports whether the key has a recognised image extension after
// a non-empty base name.
func IsImage(key string) bool {
	ext := Ext(key)
	return imageExts[ext] && len(Filename(key)) > len(ext)
}
