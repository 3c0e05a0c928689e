// Package sidecar decodes and re-encodes placement descriptors carried in
// HLS manifests as EXT-X-DATERANGE tags. Only dateranges carrying the
// X-INSCENIUM-SURFACE-ID attribute belong to the renderer; all other
// dateranges pass through untouched.
package sidecar

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/inscenium-media/scene.render/internal/render"
)

const tagPrefix = "#EXT-X-DATERANGE:"

// Attribute names. The X-INSCENIUM- namespace is reserved for the renderer.
const (
	attrID            = "ID"
	attrStartDate     = "START-DATE"
	attrDuration      = "DURATION"
	attrSurfaceID     = "X-INSCENIUM-SURFACE-ID"
	attrPRS           = "X-INSCENIUM-PRS"
	attrPlacementType = "X-INSCENIUM-PLACEMENT-TYPE"
	attrCreativeDepth = "X-INSCENIUM-CREATIVE-DEPTH"
)

// MalformedDescriptorError reports a daterange tag that carries the renderer
// marker attribute but cannot be decoded into a valid descriptor.
type MalformedDescriptorError struct {
	Line   int
	Attr   string
	Reason string
}

func (e *MalformedDescriptorError) Error() string {
	if e.Attr == "" {
		return fmt.Sprintf("malformed placement descriptor at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed placement descriptor at line %d: attribute %s: %s", e.Line, e.Attr, e.Reason)
}

type attr struct {
	key    string
	value  string
	quoted bool
}

// splitAttributes splits an EXT-X-DATERANGE attribute list, honouring commas
// inside quoted values.
func splitAttributes(s string) ([]attr, error) {
	var out []attr
	for len(s) > 0 {
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("missing '=' in %q", s)
		}
		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]
		var a attr
		a.key = key
		if len(s) > 0 && s[0] == '"' {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote in value of %s", key)
			}
			a.value = s[1 : 1+end]
			a.quoted = true
			s = s[end+2:]
			s = strings.TrimPrefix(s, ",")
		} else {
			end := strings.IndexByte(s, ',')
			if end < 0 {
				a.value = s
				s = ""
			} else {
				a.value = s[:end]
				s = s[end+1:]
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// ParsePlacementTag decodes one manifest line. The second return value is
// false when the line is not a renderer daterange (either not a daterange at
// all, or one without the X-INSCENIUM-SURFACE-ID marker); such lines are not
// an error.
func ParsePlacementTag(line string, lineNo int) (*render.PlacementDescriptor, bool, error) {
	if !strings.HasPrefix(line, tagPrefix) {
		return nil, false, nil
	}
	attrs, err := splitAttributes(line[len(tagPrefix):])
	if err != nil {
		// Cannot tell whose daterange it is; only claim it if the
		// marker appears in the raw text.
		if !strings.Contains(line, attrSurfaceID) {
			return nil, false, nil
		}
		return nil, false, &MalformedDescriptorError{Line: lineNo, Reason: err.Error()}
	}

	byKey := make(map[string]attr, len(attrs))
	for _, a := range attrs {
		byKey[a.key] = a
	}
	if _, ok := byKey[attrSurfaceID]; !ok {
		return nil, false, nil
	}

	fail := func(key, reason string) (*render.PlacementDescriptor, bool, error) {
		return nil, false, &MalformedDescriptorError{Line: lineNo, Attr: key, Reason: reason}
	}

	p := &render.PlacementDescriptor{}
	if a, ok := byKey[attrID]; ok && a.value != "" {
		p.ID = a.value
	} else {
		return fail(attrID, "required attribute missing or empty")
	}
	p.SurfaceID = byKey[attrSurfaceID].value
	if p.SurfaceID == "" {
		return fail(attrSurfaceID, "empty surface id")
	}

	a, ok := byKey[attrStartDate]
	if !ok {
		return fail(attrStartDate, "required attribute missing")
	}
	p.StartDate, err = time.Parse(time.RFC3339, a.value)
	if err != nil {
		return fail(attrStartDate, err.Error())
	}

	// Malformed or absent numeric fields decode as zero; only a missing
	// ID or surface id, or a bad START-DATE, fails the record.
	p.Duration = lenientFloat(byKey, attrDuration)
	if p.Duration < 0 {
		p.Duration = 0
	}
	p.PRSHint = lenientFloat(byKey, attrPRS)
	if p.PRSHint < 0 || p.PRSHint > 100 {
		p.PRSHint = 0
	}
	p.CreativeDepth = lenientFloat(byKey, attrCreativeDepth)
	if a, ok := byKey[attrPlacementType]; ok {
		p.Placement = a.value
	}

	for _, a := range attrs {
		switch a.key {
		case attrID, attrStartDate, attrDuration, attrSurfaceID, attrPRS,
			attrPlacementType, attrCreativeDepth:
		default:
			if p.Attrs == nil {
				p.Attrs = map[string]string{}
			}
			p.Attrs[a.key] = a.value
		}
	}
	return p, true, nil
}

// lenientFloat decodes a numeric attribute, returning 0 when the attribute
// is absent or unparseable.
func lenientFloat(byKey map[string]attr, key string) float64 {
	a, ok := byKey[key]
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(a.value, 64)
	if err != nil {
		return 0
	}
	return v
}

// ExtractPlacements scans a manifest and returns all renderer placement
// descriptors in document order. Descriptors whose window does not intersect
// [windowStart, windowStart+windowDur) are returned with OutOfRange set
// rather than dropped, so a re-encode preserves them.
func ExtractPlacements(r io.Reader, windowStart time.Time, windowDur float64) ([]*render.PlacementDescriptor, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var out []*render.PlacementDescriptor
	lineNo := 0
	for sc.Scan() {
		lineNo++
		p, ok, err := ParsePlacementTag(strings.TrimRight(sc.Text(), "\r"), lineNo)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !p.OverlapsWindow(windowStart, windowDur) {
			p.OutOfRange = true
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return out, nil
}

// formatSeconds renders a duration or depth with millisecond precision and
// trailing zeros stripped, matching what the packager emits.
func formatSeconds(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// formatScore renders a quality score to one decimal with trailing zeros
// stripped. Scores are emitted quoted, unlike durations.
func formatScore(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// FormatPlacementTag encodes a descriptor back to one manifest line.
// Unrecognised attributes are re-emitted sorted by key after the known set.
func FormatPlacementTag(p *render.PlacementDescriptor) string {
	var b strings.Builder
	b.WriteString(tagPrefix)
	fmt.Fprintf(&b, "%s=%q", attrID, p.ID)
	fmt.Fprintf(&b, ",%s=%q", attrStartDate, p.StartDate.UTC().Format(time.RFC3339))
	if p.Duration > 0 {
		fmt.Fprintf(&b, ",%s=%s", attrDuration, formatSeconds(p.Duration))
	}
	fmt.Fprintf(&b, ",%s=%q", attrSurfaceID, p.SurfaceID)
	if p.PRSHint > 0 {
		fmt.Fprintf(&b, ",%s=%q", attrPRS, formatScore(p.PRSHint))
	}
	if p.Placement != "" {
		fmt.Fprintf(&b, ",%s=%q", attrPlacementType, p.Placement)
	}
	if p.CreativeDepth > 0 {
		fmt.Fprintf(&b, ",%s=%s", attrCreativeDepth, formatSeconds(p.CreativeDepth))
	}
	keys := make([]string, 0, len(p.Attrs))
	for k := range p.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ",%s=%q", k, p.Attrs[k])
	}
	return b.String()
}

// InjectPlacements inserts descriptor tags into a manifest. Tags go
// immediately before #EXT-X-ENDLIST when present, otherwise at the end.
// Descriptors flagged OutOfRange are not injected. An empty effective
// placement list returns the manifest byte for byte unchanged.
func InjectPlacements(manifest []byte, placements []*render.PlacementDescriptor) []byte {
	var tags bytes.Buffer
	for _, p := range placements {
		if p.OutOfRange {
			continue
		}
		tags.WriteString(FormatPlacementTag(p))
		tags.WriteByte('\n')
	}
	if tags.Len() == 0 {
		return manifest
	}

	const endTag = "#EXT-X-ENDLIST"
	if i := bytes.Index(manifest, []byte(endTag)); i >= 0 {
		var out bytes.Buffer
		out.Grow(len(manifest) + tags.Len())
		out.Write(manifest[:i])
		out.Write(tags.Bytes())
		out.Write(manifest[i:])
		return out.Bytes()
	}
	var out bytes.Buffer
	out.Grow(len(manifest) + tags.Len() + 1)
	out.Write(manifest)
	if len(manifest) > 0 && manifest[len(manifest)-1] != '\n' {
		out.WriteByte('\n')
	}
	out.Write(tags.Bytes())
	return out.Bytes()
}
