// Package fgtest reads filter graph text back the way ffmpeg's graph and
// option parsers do, so tests can assert on the values ffmpeg would see.
package fgtest

import (
	"fmt"
	"strings"
)

const whitespace = " \t\n\r"

// GetToken reads s up to the first unescaped, unquoted byte in term and
// returns the unescaped token and the unread remainder. A backslash takes the
// next byte literally and single quotes enclose a literal run. Leading and
// trailing unescaped whitespace is dropped.
func GetToken(s, term string) (token, rest string) {
	s = strings.TrimLeft(s, whitespace)

	var out []byte
	end := 0
	for len(s) > 0 && strings.IndexByte(term, s[0]) < 0 {
		c := s[0]
		s = s[1:]
		switch {
		case c == '\\' && len(s) > 0:
			out = append(out, s[0])
			s = s[1:]
			end = len(out)
		case c == '\'':
			i := strings.IndexByte(s, '\'')
			if i < 0 {
				out = append(out, s...)
				s = ""
				break
			}
			out = append(out, s[:i]...)
			s = s[i+1:]
			end = len(out)
		default:
			out = append(out, c)
		}
	}

	for len(out) > end && strings.IndexByte(whitespace, out[len(out)-1]) >= 0 {
		out = out[:len(out)-1]
	}
	return string(out), s
}

// Option is one parsed filter option. Key is empty for positional options.
type Option struct {
	Key   string
	Value string
}

// Filter is one parsed filter invocation
type Filter struct {
	Name    string
	Inputs  []string
	Outputs []string
	Options []Option
}

// Option returns the value of a named option
func (f Filter) Option(key string) (string, bool) {
	for _, o := range f.Options {
		if o.Key == key {
			return o.Value, true
		}
	}
	return "", false
}

// Parse splits a filter graph into its filters, in order.
func Parse(graph string) ([]Filter, error) {
	var filters []Filter
	p := graph
	for {
		p = strings.TrimLeft(p, whitespace)
		if p == "" {
			return filters, nil
		}

		var f Filter
		var err error
		if f.Inputs, p, err = labels(p); err != nil {
			return nil, err
		}

		p = strings.TrimLeft(p, whitespace)
		n := strings.IndexAny(p, "=,;[ \t\n\r")
		if n < 0 {
			n = len(p)
		}
		f.Name, p = p[:n], p[n:]
		if f.Name == "" {
			return nil, fmt.Errorf("missing filter name at %q", p)
		}

		if strings.HasPrefix(p, "=") {
			var args string
			args, p = GetToken(p[1:], "[],;")
			f.Options = options(args)
		}

		if f.Outputs, p, err = labels(p); err != nil {
			return nil, err
		}

		p = strings.TrimLeft(p, whitespace)
		if p != "" {
			if p[0] != ',' && p[0] != ';' {
				return nil, fmt.Errorf("unexpected %q after filter %s", p[0], f.Name)
			}
			p = p[1:]
		}
		filters = append(filters, f)
	}
}

func labels(p string) ([]string, string, error) {
	var out []string
	for {
		p = strings.TrimLeft(p, whitespace)
		if !strings.HasPrefix(p, "[") {
			return out, p, nil
		}
		end := strings.IndexByte(p, ']')
		if end < 0 {
			return nil, p, fmt.Errorf("unterminated label in %q", p)
		}
		out = append(out, p[1:end])
		p = p[end+1:]
	}
}

// options splits filter arguments on ':' into key=value pairs. A key is a
// run of name characters directly followed by '='; anything else is
// positional.
func options(args string) []Option {
	var out []Option
	for args != "" {
		var o Option
		k := 0
		for k < len(args) && isKeyChar(args[k]) {
			k++
		}
		if k > 0 && k < len(args) && args[k] == '=' {
			o.Key = args[:k]
			args = args[k+1:]
		}

		o.Value, args = GetToken(args, ":")
		out = append(out, o)
		if strings.HasPrefix(args, ":") {
			args = args[1:]
		}
	}
	return out
}

func isKeyChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || strings.IndexByte("-_/.", c) >= 0
}
