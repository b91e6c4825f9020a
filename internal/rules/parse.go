package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// rule rewrites text and reports whether anything changed.
type rule interface {
	Apply(input string) (output string, changed bool)
}

// RuleParser turns one line of a rules file into a rule.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (rule, error)
}

func defaultParsers() []RuleParser {
	return []RuleParser{sedRuleParser{}, wordRuleParser{}}
}

func parseRules(contents string, parsers []RuleParser) ([]rule, error) {
	lines := strings.Split(contents, "\n")
	out := make([]rule, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var parsed rule
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			r, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			parsed = r
			break
		}
		if parsed == nil {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
		out = append(out, parsed)
	}
	return out, nil
}

// wordRuleParser handles "heard => meant". The source matches whole words
// regardless of case, so "go => Go" leaves "going" alone.
type wordRuleParser struct{}

func (wordRuleParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (wordRuleParser) Parse(line string) (rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.Join(strings.Fields(from), " ")
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("word rule source cannot be empty")
	}

	pattern := regexp.QuoteMeta(from)
	pattern = strings.ReplaceAll(pattern, " ", `\s+`)
	if first, _ := utf8.DecodeRuneInString(from); isWordRune(first) {
		pattern = `\b` + pattern
	}
	if last, _ := utf8.DecodeLastRuneInString(from); isWordRune(last) {
		pattern += `\b`
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid word rule source: %w", err)
	}
	return replaceRule{re: re, replacement: strings.ReplaceAll(to, "$", "$$"), global: true}, nil
}

// sedRuleParser handles s/pattern/replacement/flags with any
// non-alphanumeric delimiter. Matching is case-insensitive by default.
type sedRuleParser struct{}

func (sedRuleParser) CanParse(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isDelimiterInvalid(line[1])
}

func (sedRuleParser) Parse(line string) (rule, error) {
	delim := line[1]

	pattern, pos, err := scanDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	replacement, pos, err := scanDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement: %w", err)
	}

	global := false
	inline := "i"
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'g':
			global = true
		case 'i':
		case 'm', 's':
			inline += string(flag)
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return replaceRule{re: re, replacement: replacement, global: global}, nil
}

type replaceRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func (r replaceRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func scanDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var b strings.Builder
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case char == '\\' && index+1 < len(line) && line[index+1] == delim:
			b.WriteByte(delim)
			index++
		case char == '\\' && index+1 < len(line):
			b.WriteByte(char)
			b.WriteByte(line[index+1])
			index++
		case char == delim:
			return b.String(), index + 1, nil
		default:
			b.WriteByte(char)
		}
	}
	return "", 0, errors.New("unterminated expression")
}

func isDelimiterInvalid(char byte) bool {
	return char < utf8.RuneSelf && (isWordRune(rune(char)) || unicode.IsSpace(rune(char)))
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
