package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/harrison/buildgraph/internal/action"
	"github.com/harrison/buildgraph/internal/models"
	"github.com/harrison/buildgraph/internal/params"
	"github.com/harrison/buildgraph/internal/registry"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// MarkdownParser parses BUILD.md files. Each "## Target: Name" section declares
// a target; "**Key**: value" lines carry its relations and fenced shell code
// blocks form its script. YAML frontmatter declares the default target and
// parameters.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

var (
	targetHeading = regexp.MustCompile(`^Target:\s*(.+)$`)
	metadataLine  = regexp.MustCompile(`^\s*(?:[-*+]\s+)?\*\*([^*:]+):?\*\*:?\s*(.*)$`)
)

// shellLanguages are the fenced code block info strings treated as target script.
var shellLanguages = map[string]bool{"": true, "sh": true, "bash": true, "shell": true}

type markdownFrontmatter struct {
	Default    string          `yaml:"default"`
	Parameters []yamlParameter `yaml:"parameters"`
}

// markdownTarget collects one target section before it is converted.
type markdownTarget struct {
	name        string
	description []string
	fields      map[string][]string // lower-cased key -> values in order
	script      []string
}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*BuildFile, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	bf := &BuildFile{Path: filename, Format: FormatMarkdown}
	content, frontmatter := extractFrontmatter(content)
	if frontmatter != nil {
		if err := parseFrontmatter(frontmatter, bf); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}
	scope := action.NewScope(bf.ParameterNames()...)

	doc := p.markdown.Parser().Parse(text.NewReader(content))
	sections, err := extractTargets(doc, content)
	if err != nil {
		return nil, err
	}

	for _, section := range sections {
		t, err := section.target(scope, filename)
		if err != nil {
			return nil, targetError(section.name, err)
		}
		bf.Targets = append(bf.Targets, t)
	}
	return bf, nil
}

// extractTargets walks the top-level blocks of the document, starting a new
// section at every "## Target:" heading.
func extractTargets(doc ast.Node, source []byte) ([]*markdownTarget, error) {
	var sections []*markdownTarget
	var current *markdownTarget

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level > 2 {
				continue
			}
			current = nil
			if node.Level != 2 {
				continue
			}
			matches := targetHeading.FindStringSubmatch(strings.TrimSpace(extractText(node, source)))
			if len(matches) != 2 {
				continue
			}
			current = &markdownTarget{
				name:   strings.TrimSpace(matches[1]),
				fields: make(map[string][]string),
			}
			sections = append(sections, current)

		case *ast.FencedCodeBlock:
			if current == nil || !shellLanguages[strings.ToLower(string(node.Language(source)))] {
				continue
			}
			current.script = append(current.script, blockLines(node, source)...)

		case *ast.CodeBlock, *ast.HTMLBlock:
			continue

		default:
			if current == nil {
				continue
			}
			if err := ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
				if !entering {
					return ast.WalkContinue, nil
				}
				if c.Type() != ast.TypeBlock || c.HasChildren() && c.FirstChild().Type() == ast.TypeBlock {
					return ast.WalkContinue, nil
				}
				current.addLines(blockLines(c, source))
				return ast.WalkSkipChildren, nil
			}); err != nil {
				return nil, err
			}
		}
	}
	return sections, nil
}

// addLines files metadata lines under their key; plain text before the first
// metadata line becomes the description.
func (mt *markdownTarget) addLines(lines []string) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := metadataLine.FindStringSubmatch(line); m != nil {
			key := strings.ToLower(strings.TrimSpace(m[1]))
			mt.fields[key] = append(mt.fields[key], strings.TrimSpace(m[2]))
			continue
		}
		if len(mt.fields) == 0 {
			mt.description = append(mt.description, line)
		}
	}
}

func (mt *markdownTarget) list(keys ...string) []string {
	var out []string
	for _, key := range keys {
		for _, v := range mt.fields[key] {
			out = append(out, splitList(v)...)
		}
	}
	return out
}

func (mt *markdownTarget) single(key string) string {
	values := mt.fields[key]
	if len(values) == 0 {
		return ""
	}
	return strings.Trim(values[len(values)-1], "` ")
}

func (mt *markdownTarget) target(scope *action.Scope, filename string) (models.Target, error) {
	timeout, err := parseTimeout(mt.single("timeout"))
	if err != nil {
		return models.Target{}, err
	}

	opts := []registry.Option{
		registry.Description(strings.Join(mt.description, " ")),
		registry.DependsOn(mt.list("depends on", "dependson", "depends_on")...),
		registry.Before(mt.list("before")...),
		registry.After(mt.list("after")...),
		registry.TriggeredBy(mt.list("triggered by", "triggeredby", "triggered_by")...),
		registry.Triggers(mt.list("triggers")...),
		registry.Consumes(mt.list("consumes")...),
		registry.Produces(mt.list("produces")...),
		registry.WithTimeout(timeout),
		registry.DeclaredIn(filename),
	}

	// "**Requires**: NugetApiKey, Configuration=Release"
	for _, entry := range mt.list("requires") {
		name, value, hasValue := strings.Cut(entry, "=")
		req, err := paramRequirement(name, strings.TrimSpace(value), hasValue)
		if err != nil {
			return models.Target{}, err
		}
		opts = append(opts, registry.Requires(req))
	}
	// "**Server**: true"
	if v := mt.single("server"); v != "" {
		server, err := strconv.ParseBool(v)
		if err != nil {
			return models.Target{}, fmt.Errorf("invalid server flag %q", v)
		}
		if server {
			opts = append(opts, registry.Requires(params.ServerBuild()))
		}
	}
	// "**Condition**: `build.local`"
	for _, src := range mt.fields["condition"] {
		req, err := action.Requirement(strings.Trim(src, "` "), filename, scope)
		if err != nil {
			return models.Target{}, err
		}
		opts = append(opts, registry.Requires(req))
	}

	script := strings.Join(mt.script, "\n")
	cmd, err := commandFromStrings(nil, script, mt.single("dir"), nil, scope, filename)
	if err != nil {
		return models.Target{}, err
	}
	if cmd != nil {
		opts = append(opts, registry.Executes(cmd))
	}

	return registry.Define(mt.name, opts...), nil
}

// blockLines returns the raw source lines of a block node.
func blockLines(n ast.Node, source []byte) []string {
	lines := n.Lines()
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, strings.TrimRight(string(seg.Value(source)), "\r\n"))
	}
	return out
}

// extractText extracts plain text from an AST node
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if text, ok := c.(*ast.Text); ok {
			buf.Write(text.Segment.Value(source))
		}
	}
	return buf.String()
}

// extractFrontmatter extracts YAML frontmatter from markdown content
// Returns the content without frontmatter and the frontmatter bytes
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))

	// Check if starts with ---
	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	// Find closing ---
	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}

	// No closing delimiter found
	return content, nil
}

func parseFrontmatter(frontmatter []byte, bf *BuildFile) error {
	var fm markdownFrontmatter
	if err := yaml.Unmarshal(frontmatter, &fm); err != nil {
		return err
	}
	bf.Default = fm.Default
	for _, yp := range fm.Parameters {
		if yp.Name == "" {
			return fmt.Errorf("parameter without a name")
		}
		bf.Parameters = append(bf.Parameters, params.Parameter(yp))
	}
	return nil
}
