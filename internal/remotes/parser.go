package remotes

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parser reads the block-structured remote definition format:
//
//	begin remote
//	  name sony-tv
//	  bits 12
//	  ...
//	  begin codes
//	    KEY_POWER 0xA90
//	  end codes
//	end remote
//
// Comments start with '#'. Numeric values accept decimal or 0x hex.
type parser struct {
	path string
	line int
}

func parseConfig(path string, r io.Reader) ([]*Remote, error) {
	p := &parser{path: path}
	scanner := bufio.NewScanner(r)

	var (
		list []*Remote
		seen = make(map[string]struct{})
	)
	for {
		fields, err := p.next(scanner)
		if err != nil {
			return nil, err
		}
		if fields == nil {
			break
		}
		if len(fields) != 2 || fields[0] != "begin" || fields[1] != "remote" {
			return nil, p.errorf("expected \"begin remote\", got %q", strings.Join(fields, " "))
		}
		remote, err := p.parseRemote(scanner)
		if err != nil {
			return nil, err
		}
		// A later block reusing an earlier name is a load error, never a
		// silent overwrite.
		if _, dup := seen[remote.Name]; dup {
			return nil, p.errorf("%w: %q", ErrDuplicateRemote, remote.Name)
		}
		seen[remote.Name] = struct{}{}
		remote.index()
		list = append(list, remote)
	}
	if len(list) == 0 {
		return nil, &ParseError{Path: path, Line: p.line, Err: fmt.Errorf("no remote definitions found")}
	}
	return list, nil
}

func (p *parser) parseRemote(scanner *bufio.Scanner) (*Remote, error) {
	r := &Remote{Gap: defaultGap, Eps: defaultEps, Aeps: defaultAeps}
	for {
		fields, err := p.next(scanner)
		if err != nil {
			return nil, err
		}
		if fields == nil {
			return nil, p.errorf("unexpected end of file inside remote block")
		}
		switch fields[0] {
		case "end":
			if len(fields) != 2 || fields[1] != "remote" {
				return nil, p.errorf("expected \"end remote\"")
			}
			if err := r.validate(); err != nil {
				return nil, p.wrap(err)
			}
			return r, nil
		case "begin":
			if len(fields) != 2 || fields[1] != "codes" {
				return nil, p.errorf("expected \"begin codes\"")
			}
			if err := p.parseCodes(scanner, r); err != nil {
				return nil, err
			}
		default:
			if err := p.parseField(r, fields); err != nil {
				return nil, err
			}
		}
	}
}

func (p *parser) parseCodes(scanner *bufio.Scanner, r *Remote) error {
	for {
		fields, err := p.next(scanner)
		if err != nil {
			return err
		}
		if fields == nil {
			return p.errorf("unexpected end of file inside codes block")
		}
		if fields[0] == "end" {
			if len(fields) != 2 || fields[1] != "codes" {
				return p.errorf("expected \"end codes\"")
			}
			return nil
		}
		if len(fields) != 2 {
			return p.errorf("code entry needs a name and a value, got %d fields", len(fields))
		}
		value, err := parseNumber(fields[1])
		if err != nil {
			return p.errorf("code %q: %v", fields[0], err)
		}
		r.Codes = append(r.Codes, Code{Name: fields[0], Value: value})
	}
}

func (p *parser) parseField(r *Remote, fields []string) error {
	key := fields[0]
	args := fields[1:]

	set1 := func(dst *uint32) error {
		if len(args) != 1 {
			return p.errorf("%s takes one value, got %d", key, len(args))
		}
		v, err := parseNumber(args[0])
		if err != nil {
			return p.errorf("%s: %v", key, err)
		}
		*dst = uint32(v)
		return nil
	}
	set2 := func(a, b *uint32) error {
		if len(args) != 2 {
			return p.errorf("%s takes two values, got %d", key, len(args))
		}
		va, err := parseNumber(args[0])
		if err != nil {
			return p.errorf("%s: %v", key, err)
		}
		vb, err := parseNumber(args[1])
		if err != nil {
			return p.errorf("%s: %v", key, err)
		}
		*a, *b = uint32(va), uint32(vb)
		return nil
	}

	switch key {
	case "name":
		if len(args) != 1 {
			return p.errorf("name takes one value")
		}
		r.Name = args[0]
	case "flags":
		if len(args) != 1 {
			return p.errorf("flags takes one value")
		}
		r.Flags = strings.Split(args[0], "|")
	case "bits":
		var v uint32
		if err := set1(&v); err != nil {
			return err
		}
		r.Bits = uint(v)
	case "pre_data_bits":
		var v uint32
		if err := set1(&v); err != nil {
			return err
		}
		r.PreDataBits = uint(v)
	case "pre_data":
		if len(args) != 1 {
			return p.errorf("pre_data takes one value")
		}
		v, err := parseNumber(args[0])
		if err != nil {
			return p.errorf("pre_data: %v", err)
		}
		r.PreData = v
	case "eps":
		return set1(&r.Eps)
	case "aeps":
		return set1(&r.Aeps)
	case "header":
		return set2(&r.HeaderPulse, &r.HeaderSpace)
	case "one":
		return set2(&r.OnePulse, &r.OneSpace)
	case "zero":
		return set2(&r.ZeroPulse, &r.ZeroSpace)
	case "ptrail":
		return set1(&r.Ptrail)
	case "gap":
		return set1(&r.Gap)
	case "min_repeat":
		return set1(&r.MinRepeat)
	case "toggle_bit_mask":
		if len(args) != 1 {
			return p.errorf("toggle_bit_mask takes one value")
		}
		v, err := parseNumber(args[0])
		if err != nil {
			return p.errorf("toggle_bit_mask: %v", err)
		}
		r.ToggleBitMask = v
	default:
		return p.errorf("unknown field %q", key)
	}
	return nil
}

// next returns the fields of the next non-empty line, or nil at EOF.
func (p *parser) next(scanner *bufio.Scanner) ([]string, error) {
	for scanner.Scan() {
		p.line++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return fields, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Path: p.path, Line: p.line, Err: err}
	}
	return nil, nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Path: p.path, Line: p.line, Err: fmt.Errorf(format, args...)}
}

func (p *parser) wrap(err error) error {
	return &ParseError{Path: p.path, Line: p.line, Err: err}
}

func parseNumber(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("bad hex number %q", s)
		}
		return v, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}

// Parser defaults applied before per-remote fields are read.
const (
	defaultGap  = 100000
	defaultEps  = 30
	defaultAeps = 100
)
