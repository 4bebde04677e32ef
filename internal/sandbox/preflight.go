package sandbox

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
	"github.com/gorilla/css/scanner"
	"golang.org/x/net/html"

	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/snippet"
)

// Preflight selects which syntax checks run before a frame is built. The
// checks parse only; nothing is executed on the server.
//
// Only markup that ends inside a tag blocks a run, since the browser drops
// that input. Script and style problems are warnings: the server parsers
// lag behind browsers, so the frame is built anyway and the bridge reports
// real runtime errors.
type Preflight struct {
	Markup bool `yaml:"markup"`
	Style  bool `yaml:"style"`
	Script bool `yaml:"script"`
}

// DefaultPreflight enables every check.
func DefaultPreflight() Preflight {
	return Preflight{Markup: true, Style: true, Script: true}
}

// Check runs the enabled check for lang. A non-nil err blocks the run;
// warning does not.
func (p Preflight) Check(lang snippet.Language, src string) (warning, err error) {
	switch lang {
	case snippet.LanguageStyle:
		if p.Style {
			return CheckStyle(src), nil
		}
	case snippet.LanguageScript:
		if p.Script {
			return CheckScript(src), nil
		}
	default:
		if p.Markup {
			return CheckMarkup(src, p.Script)
		}
	}
	return nil, nil
}

// CheckMarkup tokenizes src and fails on input the tokenizer had to drop,
// which happens when the document ends inside a tag. With scripts set,
// inline classic scripts are compiled and the first that does not parse is
// returned as warning.
func CheckMarkup(src string, scripts bool) (warning, err error) {
	z := html.NewTokenizer(strings.NewReader(src))
	offset := 0
	inScript := false
	scriptLine := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if zerr := z.Err(); zerr != io.EOF {
				return warning, errors.WrapExecution(zerr, errors.ErrCodeSyntax, "")
			}
			if offset < len(src) {
				line, col := position(src, offset)
				return warning, errors.ErrSyntax("markup",
					fmt.Sprintf("unexpected end of input inside tag %q", clip(src[offset:], 40)), line, col)
			}
			return warning, nil
		}

		start := offset
		offset += len(z.Raw())

		switch tt {
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "script" {
				inScript = isClassicScript(z, hasAttr)
				scriptLine, _ = position(src, start)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "script" {
				inScript = false
			}
		case html.TextToken:
			if inScript && scripts && warning == nil {
				if cerr := compileScript(string(z.Text())); cerr != nil {
					warning = errors.ErrSyntax("script", cerr.Error(), scriptLine, 0).
						WithContext("inline", true)
				}
			}
		}
	}
}

func isClassicScript(z *html.Tokenizer, hasAttr bool) bool {
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if string(key) != "type" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(string(val))) {
		case "", "text/javascript", "application/javascript":
			return true
		default:
			return false
		}
	}
	return true
}

// CheckScript parses src as a classic script.
func CheckScript(src string) error {
	if err := compileScript(src); err != nil {
		return errors.ErrSyntax("script", err.Error(), 0, 0)
	}
	return nil
}

func compileScript(src string) error {
	prg, err := goja.Parse("snippet.js", src, parser.WithDisableSourceMaps)
	if err != nil {
		return err
	}
	_, err = goja.CompileAST(prg, false)
	return err
}

// CheckStyle scans src as CSS and checks that blocks are balanced.
func CheckStyle(src string) error {
	s := scanner.New(src)
	depth := 0
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			if depth > 0 {
				return errors.ErrSyntax("style", fmt.Sprintf("%d unclosed block(s) at end of input", depth), tok.Line, tok.Column)
			}
			return nil
		case scanner.TokenError:
			return errors.ErrSyntax("style", tok.Value, tok.Line, tok.Column)
		case scanner.TokenChar:
			switch tok.Value {
			case "{":
				depth++
			case "}":
				depth--
				if depth < 0 {
					return errors.ErrSyntax("style", "unexpected }", tok.Line, tok.Column)
				}
			}
		}
	}
}

// position converts a byte offset into a 1-based line and column.
func position(src string, offset int) (int, int) {
	before := src[:offset]
	line := strings.Count(before, "\n") + 1
	lineStart := strings.LastIndex(before, "\n") + 1
	return line, utf8.RuneCountInString(before[lineStart:]) + 1
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
