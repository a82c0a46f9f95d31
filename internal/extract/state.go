package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/baxromumarov/portal-scraper/internal/model"
)

// StatePaths are dotted paths into a hydration blob. Each field lists
// candidates tried in order; numeric segments index arrays.
type StatePaths struct {
	JobID       []string
	Title       []string
	Company     []string
	Location    []string
	Description []string
	Salary      []string
	PostedAt    []string
}

// State reads the client-side state a site injects for hydration. When the
// page snapshot carries no evaluated state, Marker locates the assignment in
// the raw HTML and the JSON value after it is decoded.
type State struct {
	Marker *regexp.Regexp
	Paths  StatePaths
}

func (State) Name() string { return "state" }

func (s State) Attempt(c *Content) Outcome {
	blob := s.blob(c)
	if blob == nil {
		return Outcome{}
	}
	rec := model.JobRecord{
		JobID:       lookupString(blob, s.Paths.JobID),
		Title:       lookupString(blob, s.Paths.Title),
		Company:     lookupString(blob, s.Paths.Company),
		Location:    lookupString(blob, s.Paths.Location),
		Description: HTMLText(lookupString(blob, s.Paths.Description)),
		Salary:      lookupString(blob, s.Paths.Salary),
	}
	if rec.Title == "" {
		return Outcome{}
	}
	if t := lookupTime(blob, s.Paths.PostedAt); !t.IsZero() {
		rec.PostedAt = &t
	}
	return finish(c, rec)
}

func (s State) blob(c *Content) any {
	raw := c.State
	if len(raw) == 0 || string(raw) == "null" {
		raw = s.fromHTML(c.HTML)
	}
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	if _, ok := v.(map[string]any); !ok {
		return nil
	}
	return v
}

func (s State) fromHTML(html string) json.RawMessage {
	if s.Marker == nil {
		return nil
	}
	loc := s.Marker.FindStringIndex(html)
	if loc == nil {
		return nil
	}
	return DecodeLeadingJSON(html[loc[1]:])
}

// DecodeLeadingJSON decodes the first JSON value in s, ignoring whatever
// follows it (typically ";" and more script).
func DecodeLeadingJSON(s string) json.RawMessage {
	dec := json.NewDecoder(strings.NewReader(strings.TrimLeft(s, " \t\r\n")))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil
	}
	return raw
}

// Lookup walks a dotted path through decoded JSON.
func Lookup(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	for _, seg := range strings.Split(path, ".") {
		switch t := v.(type) {
		case map[string]any:
			next, ok := t[seg]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			v = t[i]
		default:
			return nil, false
		}
	}
	return v, v != nil
}

func lookupString(v any, paths []string) string {
	for _, p := range paths {
		got, ok := Lookup(v, p)
		if !ok {
			continue
		}
		if s := stringField(got); s != "" {
			return s
		}
	}
	return ""
}

// lookupTime accepts date strings and epoch milliseconds.
func lookupTime(v any, paths []string) time.Time {
	for _, p := range paths {
		got, ok := Lookup(v, p)
		if !ok {
			continue
		}
		switch t := got.(type) {
		case float64:
			if t > 0 {
				return time.UnixMilli(int64(t)).UTC()
			}
		default:
			if ts := parseDate(t); !ts.IsZero() {
				return ts
			}
		}
	}
	return time.Time{}
}
