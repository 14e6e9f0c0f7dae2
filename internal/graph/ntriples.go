package graph

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Encode writes triples to w, one statement per line. The caller decides the
// order; Sort gives the canonical one.
func Encode(w io.Writer, triples []Triple) error {
	buffered := bufio.NewWriter(w)
	for _, triple := range triples {
		if _, err := buffered.WriteString(Render(triple)); err != nil {
			return err
		}
		if err := buffered.WriteByte('\n'); err != nil {
			return err
		}
	}
	return buffered.Flush()
}

// Render returns the single-line statement for one triple.
func Render(triple Triple) string {
	return fmt.Sprintf("<%s> <%s> %s .", triple.Subject, triple.Predicate, renderObject(triple.Object))
}

func renderObject(object Object) string {
	if object.IsIRI {
		return "<" + object.Value + ">"
	}
	quoted := `"` + escapeLiteral(object.Value) + `"`
	if object.Lang != "" {
		return quoted + "@" + object.Lang
	}
	if object.Datatype != "" {
		return quoted + "^^<" + object.Datatype + ">"
	}
	return quoted
}

func escapeLiteral(value string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return replacer.Replace(value)
}

func unescapeLiteral(value string) string {
	var out strings.Builder
	out.Grow(len(value))
	escaped := false
	for _, r := range value {
		if !escaped {
			if r == '\\' {
				escaped = true
				continue
			}
			out.WriteRune(r)
			continue
		}
		switch r {
		case 'n':
			out.WriteByte('\n')
		case 'r':
			out.WriteByte('\r')
		case 't':
			out.WriteByte('\t')
		default:
			out.WriteRune(r)
		}
		escaped = false
	}
	return out.String()
}

// Decode reads statements produced by Encode. Blank lines and # comments are
// tolerated; anything else malformed is an error naming the line.
func Decode(r io.Reader) ([]Triple, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	triples := make([]Triple, 0)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		triple, err := parseStatement(text)
		if err != nil {
			return nil, fmt.Errorf("graph: line %d: %w", line, err)
		}
		triples = append(triples, triple)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return triples, nil
}

func parseStatement(text string) (Triple, error) {
	if !strings.HasSuffix(text, ".") {
		return Triple{}, fmt.Errorf("statement missing terminating dot")
	}
	text = strings.TrimSpace(strings.TrimSuffix(text, "."))

	subject, rest, err := parseIRI(text)
	if err != nil {
		return Triple{}, fmt.Errorf("subject: %w", err)
	}
	predicate, rest, err := parseIRI(rest)
	if err != nil {
		return Triple{}, fmt.Errorf("predicate: %w", err)
	}
	object, rest, err := parseObject(rest)
	if err != nil {
		return Triple{}, fmt.Errorf("object: %w", err)
	}
	if strings.TrimSpace(rest) != "" {
		return Triple{}, fmt.Errorf("trailing content %q", strings.TrimSpace(rest))
	}
	return Triple{Subject: subject, Predicate: predicate, Object: object}, nil
}

func parseIRI(text string) (string, string, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "<") {
		return "", "", fmt.Errorf("expected IRI, got %q", text)
	}
	end := strings.Index(text, ">")
	if end < 0 {
		return "", "", fmt.Errorf("unterminated IRI")
	}
	return text[1:end], text[end+1:], nil
}

func parseObject(text string) (Object, string, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "<") {
		value, rest, err := parseIRI(text)
		if err != nil {
			return Object{}, "", err
		}
		return IRI(value), rest, nil
	}
	if !strings.HasPrefix(text, `"`) {
		return Object{}, "", fmt.Errorf("expected IRI or literal, got %q", text)
	}

	end := -1
	escaped := false
	for i := 1; i < len(text); i++ {
		if escaped {
			escaped = false
			continue
		}
		switch text[i] {
		case '\\':
			escaped = true
		case '"':
			end = i
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return Object{}, "", fmt.Errorf("unterminated literal")
	}

	object := Object{Value: unescapeLiteral(text[1:end])}
	rest := text[end+1:]
	switch {
	case strings.HasPrefix(rest, "^^"):
		datatype, remaining, err := parseIRI(rest[2:])
		if err != nil {
			return Object{}, "", fmt.Errorf("datatype: %w", err)
		}
		object.Datatype = datatype
		rest = remaining
	case strings.HasPrefix(rest, "@"):
		lang := rest[1:]
		cut := strings.IndexAny(lang, " \t")
		if cut < 0 {
			object.Lang = lang
			rest = ""
		} else {
			object.Lang = lang[:cut]
			rest = lang[cut:]
		}
		if object.Lang == "" {
			return Object{}, "", fmt.Errorf("empty language tag")
		}
	}
	return object, rest, nil
}
