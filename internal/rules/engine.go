// Package rules cleans up recognized transcripts: a fixed punctuation and
// whitespace pass, followed by user substitutions loaded from a rules file.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Rule is one compiled substitution.
type Rule interface {
	Apply(input string) (output string, changed bool)
}

// Parser turns one rules-file line into a Rule.
type Parser interface {
	CanParse(line string) bool
	Parse(line string) (Rule, error)
}

const DefaultLoopLimit = 30

// Engine runs BasicCleanup and then applies substitutions until the text is
// stable or the loop limit is reached.
type Engine struct {
	rules     []Rule
	loopLimit int
}

// NewEngine loads rules from path. A blank or missing path yields an engine
// that only runs BasicCleanup.
func NewEngine(path string, loopLimit int) (*Engine, error) {
	return NewEngineWithParsers(path, loopLimit, DefaultParsers())
}

func NewEngineWithParsers(path string, loopLimit int, parsers []Parser) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return Compile("", loopLimit, parsers)
	}

	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Compile("", loopLimit, parsers)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	engine, err := Compile(string(contents), loopLimit, parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return engine, nil
}

// Compile builds an engine from rules-file contents.
func Compile(contents string, loopLimit int, parsers []Parser) (*Engine, error) {
	if loopLimit <= 0 {
		loopLimit = DefaultLoopLimit
	}
	if len(parsers) == 0 {
		parsers = DefaultParsers()
	}
	compiled, err := parseLines(contents, parsers)
	if err != nil {
		return nil, err
	}
	return &Engine{rules: compiled, loopLimit: loopLimit}, nil
}

// Len reports how many substitution rules are loaded.
func (e *Engine) Len() int { return len(e.rules) }

// Apply transforms text deterministically.
func (e *Engine) Apply(text string) (string, error) {
	result := BasicCleanup(text)
	if len(e.rules) == 0 {
		return result, nil
	}

	for pass := 0; pass < e.loopLimit; pass++ {
		changed := false
		for _, rule := range e.rules {
			if next, ok := rule.Apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return strings.TrimSpace(result), nil
}

func parseLines(contents string, parsers []Parser) ([]Rule, error) {
	var compiled []Rule
	for n, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := parseLine(line, parsers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		compiled = append(compiled, rule)
	}
	return compiled, nil
}

func parseLine(line string, parsers []Parser) (Rule, error) {
	for _, p := range parsers {
		if p.CanParse(line) {
			return p.Parse(line)
		}
	}
	return nil, errors.New("unsupported rule format")
}

// DefaultParsers understands `s/re/repl/flags` and `from => to` lines.
func DefaultParsers() []Parser {
	return []Parser{sedParser{}, literalParser{}}
}

type literalParser struct{}

func (literalParser) CanParse(line string) bool { return strings.Contains(line, "=>") }

func (literalParser) Parse(line string) (Rule, error) { return ParseLiteral(line) }

// literalRule replaces every case-insensitive occurrence of a phrase.
type literalRule struct {
	re  *regexp.Regexp
	out string
}

func ParseLiteral(line string) (Rule, error) {
	from, to, ok := strings.Cut(line, "=>")
	if !ok {
		return nil, errors.New("invalid literal rule")
	}
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(from))
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literalRule{re: re, out: to}, nil
}

func (r literalRule) Apply(input string) (string, bool) {
	out := r.re.ReplaceAllLiteralString(input, r.out)
	return out, out != input
}

type sedParser struct{}

func (sedParser) CanParse(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordOrSpace(line[1])
}

func (sedParser) Parse(line string) (Rule, error) { return ParseSed(line) }

// sedRule is a sed-style substitution. Matching is case-insensitive by
// default; without the g flag only the first match is replaced.
type sedRule struct {
	re     *regexp.Regexp
	out    string
	global bool
}

func ParseSed(line string) (Rule, error) {
	if len(line) < 2 {
		return nil, errors.New("invalid regex rule")
	}
	delim := line[1]
	if isWordOrSpace(delim) {
		return nil, errors.New("regex delimiter must be non-alphanumeric")
	}

	pattern, rest, err := readDelimited(line[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	out, rest, err := readDelimited(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	global := false
	inline := "i"
	for _, f := range strings.TrimSpace(rest) {
		switch f {
		case 'i', ' ':
		case 'g':
			global = true
		case 'm', 's':
			if !strings.ContainsRune(inline, f) {
				inline += string(f)
			}
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", f)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return sedRule{re: re, out: out, global: global}, nil
}

func (r sedRule) Apply(input string) (string, bool) {
	if r.global {
		out := r.re.ReplaceAllString(input, r.out)
		return out, out != input
	}
	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	var expanded []byte
	expanded = r.re.ExpandString(expanded, r.out, input, loc)
	out := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return out, out != input
}

// readDelimited reads up to the next unescaped delim. Escapes are kept so
// the regexp compiler sees them.
func readDelimited(s string, delim byte) (field, rest string, err error) {
	if s == "" {
		return "", "", errors.New("unexpected end of expression")
	}
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == delim:
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", errors.New("unterminated expression")
}

func isWordOrSpace(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == ' ' || c == '\t'
}
