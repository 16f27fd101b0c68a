package connectors

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/willow/pkg/fingerprint"
	"github.com/Ramsey-B/willow/pkg/models"
)

// GedcomCredentials carry an uploaded family tree file. GEDCOM sources have no
// remote account; the upload itself is the account.
type GedcomCredentials struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// GedcomConnector imports people and family relationships from uploaded
// GEDCOM 5.5 files
type GedcomConnector struct {
	logger ectologger.Logger
}

// NewGedcomConnector creates a GEDCOM file connector
func NewGedcomConnector(logger ectologger.Logger) *GedcomConnector {
	return &GedcomConnector{logger: logger}
}

// Descriptor returns the connector's discovery metadata
func (c *GedcomConnector) Descriptor() models.SourceDescriptor {
	return models.SourceDescriptor{
		Key:          "gedcom",
		Name:         "GEDCOM Family Tree",
		AuthKind:     "upload",
		ContentTypes: []string{models.ContentTypePerson, models.ContentTypeRelationship},
	}
}

// Authenticate validates the uploaded file parses as GEDCOM
func (c *GedcomConnector) Authenticate(ctx context.Context, credentials json.RawMessage) (*AccountInfo, error) {
	creds, err := c.parseCredentials(credentials)
	if err != nil {
		return nil, err
	}

	firstLine := ""
	scanner := bufio.NewScanner(strings.NewReader(creds.Content))
	if scanner.Scan() {
		firstLine = strings.TrimSpace(scanner.Text())
	}
	if !strings.HasPrefix(firstLine, "0 HEAD") {
		return nil, fmt.Errorf("%w: missing GEDCOM header", models.ErrAuth)
	}

	name := creds.FileName
	if name == "" {
		name = "uploaded tree"
	}

	return &AccountInfo{
		ExternalAccountID: fingerprint.DedupeKey("gedcom", name, contentHash(creds.Content)),
		DisplayName:       name,
	}, nil
}

// Fetch parses the uploaded file and streams its people and relationships
func (c *GedcomConnector) Fetch(ctx context.Context, credentials json.RawMessage) (Sequence, error) {
	creds, err := c.parseCredentials(credentials)
	if err != nil {
		return nil, err
	}

	items, err := parseGedcom(creds.Content)
	if err != nil {
		return nil, err
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{"file": creds.FileName, "items": len(items)}).Info("Parsed GEDCOM file")
	return &sliceSequence{items: items}, nil
}

func (c *GedcomConnector) parseCredentials(credentials json.RawMessage) (*GedcomCredentials, error) {
	var creds GedcomCredentials
	if err := json.Unmarshal(credentials, &creds); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials payload", models.ErrAuth)
	}
	if creds.Content == "" {
		return nil, fmt.Errorf("%w: empty file content", models.ErrAuth)
	}
	return &creds, nil
}

func contentHash(content string) string {
	return fingerprint.Generate(map[string]any{"content": content})
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// sliceSequence serves pre-parsed items. File connectors use it since the
// whole upload is already in memory.
type sliceSequence struct {
	items []models.NormalizedContent
	pos   int
}

func (s *sliceSequence) Next(ctx context.Context) (*models.NormalizedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.items) {
		return nil, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	return &item, nil
}

// gedcomLine is one parsed "LEVEL [@XREF@] TAG [VALUE]" line
type gedcomLine struct {
	level int
	xref  string
	tag   string
	value string
}

type gedcomPerson struct {
	xref      string
	name      string
	givenName string
	surname   string
	birthDate string
	deathDate string
}

type gedcomFamily struct {
	husband  string
	wife     string
	children []string
}

// parseGedcom extracts INDI and FAM records. Individuals become person items,
// family links become relationship items referencing the person source ids.
func parseGedcom(content string) ([]models.NormalizedContent, error) {
	var lines []gedcomLine
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		line, err := parseGedcomLine(text)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var people []gedcomPerson
	var families []gedcomFamily
	i := 0
	for i < len(lines) {
		line := lines[i]
		if line.level != 0 {
			i++
			continue
		}

		end := i + 1
		for end < len(lines) && lines[end].level > 0 {
			end++
		}

		switch line.tag {
		case "INDI":
			people = append(people, parseIndividual(line.xref, lines[i+1:end]))
		case "FAM":
			families = append(families, parseFamily(lines[i+1:end]))
		}
		i = end
	}

	items := make([]models.NormalizedContent, 0, len(people))
	for _, p := range people {
		data := map[string]any{
			"given_name": p.givenName,
			"surname":    p.surname,
		}
		if p.birthDate != "" {
			data["birth_date"] = p.birthDate
		}
		if p.deathDate != "" {
			data["death_date"] = p.deathDate
		}

		items = append(items, models.NormalizedContent{
			SourceItemID: p.xref,
			ContentType:  models.ContentTypePerson,
			Title:        p.name,
			People:       []models.PersonRef{{GivenName: p.givenName, Surname: p.surname}},
			Data:         mustJSON(data),
		})
	}

	for fi, f := range families {
		for _, rel := range familyRelationships(fi, f) {
			items = append(items, rel)
		}
	}

	return items, nil
}

func parseGedcomLine(text string) (gedcomLine, error) {
	parts := strings.SplitN(text, " ", 3)
	if len(parts) < 2 {
		return gedcomLine{}, fmt.Errorf("malformed GEDCOM line: %q", text)
	}

	level, err := strconv.Atoi(parts[0])
	if err != nil {
		return gedcomLine{}, fmt.Errorf("malformed GEDCOM level: %q", text)
	}

	line := gedcomLine{level: level}
	rest := parts[1:]
	if strings.HasPrefix(rest[0], "@") && strings.HasSuffix(rest[0], "@") {
		line.xref = strings.Trim(rest[0], "@")
		if len(rest) < 2 {
			return gedcomLine{}, fmt.Errorf("malformed GEDCOM record line: %q", text)
		}
		tagAndValue := strings.SplitN(rest[1], " ", 2)
		line.tag = tagAndValue[0]
		if len(tagAndValue) > 1 {
			line.value = tagAndValue[1]
		}
	} else {
		line.tag = rest[0]
		if len(rest) > 1 {
			line.value = rest[1]
		}
	}
	return line, nil
}

func parseIndividual(xref string, body []gedcomLine) gedcomPerson {
	p := gedcomPerson{xref: xref}
	var inEvent string
	for _, line := range body {
		switch line.level {
		case 1:
			inEvent = ""
			switch line.tag {
			case "NAME":
				p.name, p.givenName, p.surname = parseGedcomName(line.value)
			case "BIRT", "DEAT":
				inEvent = line.tag
			}
		case 2:
			if line.tag == "DATE" {
				switch inEvent {
				case "BIRT":
					p.birthDate = line.value
				case "DEAT":
					p.deathDate = line.value
				}
			}
		}
	}
	return p
}

// parseGedcomName splits "John /Doe/" into display, given, and surname parts
func parseGedcomName(value string) (display, given, surname string) {
	start := strings.Index(value, "/")
	end := strings.LastIndex(value, "/")
	if start >= 0 && end > start {
		given = strings.TrimSpace(value[:start])
		surname = strings.TrimSpace(value[start+1 : end])
	} else {
		given = strings.TrimSpace(value)
	}
	display = strings.TrimSpace(strings.ReplaceAll(value, "/", " "))
	display = strings.Join(strings.Fields(display), " ")
	return display, given, surname
}

func parseFamily(body []gedcomLine) gedcomFamily {
	var f gedcomFamily
	for _, line := range body {
		if line.level != 1 {
			continue
		}
		ref := strings.Trim(line.value, "@")
		switch line.tag {
		case "HUSB":
			f.husband = ref
		case "WIFE":
			f.wife = ref
		case "CHIL":
			f.children = append(f.children, ref)
		}
	}
	return f
}

func familyRelationships(familyIndex int, f gedcomFamily) []models.NormalizedContent {
	var rels []models.NormalizedContent

	add := func(kind, from, to string) {
		if from == "" || to == "" {
			return
		}
		sourceItemID := fmt.Sprintf("F%d:%s:%s:%s", familyIndex, kind, from, to)
		data := mustJSON(map[string]any{
			"relation": kind,
			"from":     from,
			"to":       to,
		})
		rels = append(rels, models.NormalizedContent{
			SourceItemID: sourceItemID,
			ContentType:  models.ContentTypeRelationship,
			Title:        fmt.Sprintf("%s: %s -> %s", kind, from, to),
			Data:         data,
		})
	}

	add("spouse", f.husband, f.wife)
	for _, child := range f.children {
		add("parent", f.husband, child)
		add("parent", f.wife, child)
	}
	return rels
}
