// Copyright (C) 2019-2026, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Package policy checks the structure of wallet policy descriptors before they
// are sent to a device, and rewrites them into the key-indexed template form
// that some devices register.
//
// It does not type check miniscript; the device does that. It only rejects
// descriptors that no device could accept: unbalanced nesting, unknown top
// level script types, malformed key expressions or a wrong checksum.
package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	hwi "github.com/luxfi/hwi-go"
)

const maxDepth = 64

var topLevel = map[string]bool{
	"sh":   true,
	"wsh":  true,
	"tr":   true,
	"wpkh": true,
	"pkh":  true,
}

// ParseError locates a structural problem in a descriptor.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Msg, e.Pos)
}

// Key is one key expression of a descriptor.
type Key struct {
	HasOrigin   bool
	Fingerprint hwi.Fingerprint
	Path        hwi.DerivationPath
	XPub        string
}

// String renders the key the way wallet policies list it: the origin in
// brackets followed by the extended key, without derivation suffix.
func (k Key) String() string {
	if !k.HasOrigin {
		return k.XPub
	}
	origin := strings.TrimPrefix(k.Path.String(), "m")
	return "[" + k.Fingerprint.String() + origin + "]" + k.XPub
}

// Descriptor is a structurally valid policy descriptor.
type Descriptor struct {
	// Raw is the descriptor without its checksum.
	Raw string
	// Script is the top level script type, e.g. "wsh" or "tr".
	Script string
	// Template has every key replaced by @i, where i indexes Keys.
	Template string
	Keys     []Key
}

// Parse validates descriptor and extracts its keys.
func Parse(descriptor string) (*Descriptor, error) {
	raw := strings.TrimSpace(descriptor)
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		sum := raw[i+1:]
		raw = raw[:i]
		want, ok := Checksum(raw)
		if !ok {
			return nil, &ParseError{Pos: 0, Msg: "invalid character"}
		}
		if sum != want {
			return nil, &ParseError{Pos: i + 1, Msg: fmt.Sprintf("checksum %q does not match %q", sum, want)}
		}
	}
	if raw == "" {
		return nil, &ParseError{Pos: 0, Msg: "empty descriptor"}
	}

	p := &parser{src: raw, keyIndex: map[string]int{}}
	script, err := p.parseTop()
	if err != nil {
		return nil, err
	}
	return &Descriptor{
		Raw:      raw,
		Script:   script,
		Template: p.out.String(),
		Keys:     p.keys,
	}, nil
}

type parser struct {
	src      string
	pos      int
	out      strings.Builder
	keys     []Key
	keyIndex map[string]int
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) parseTop() (string, error) {
	name, isFragment := p.token()
	if !isFragment || !topLevel[name] {
		return "", p.errorf("unsupported top level script %q", name)
	}
	p.pos = 0
	if err := p.parseExpr(0); err != nil {
		return "", err
	}
	if p.pos != len(p.src) {
		return "", p.errorf("trailing data")
	}
	return name, nil
}

// token reads up to the next structural character and reports whether it
// opens a fragment.
func (p *parser) token() (string, bool) {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("(),{}", rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos], p.peek() == '('
}

func (p *parser) parseExpr(depth int) error {
	if depth > maxDepth {
		return p.errorf("nesting deeper than %d", maxDepth)
	}
	start := p.pos
	tok, isFragment := p.token()
	if tok == "" {
		return p.errorf("expected expression")
	}
	if !isFragment {
		p.pos = start
		return p.parseLeaf(tok)
	}

	if !validName(tok) {
		p.pos = start
		return p.errorf("invalid fragment name %q", tok)
	}
	if depth > 0 && (tok == "sh" || tok == "tr") {
		p.pos = start
		return p.errorf("%s() is only valid at top level", tok)
	}
	p.out.WriteString(tok)
	return p.parseArgs(depth, tok)
}

func (p *parser) parseArgs(depth int, name string) error {
	p.pos++ // (
	p.out.WriteByte('(')
	for i := 0; ; i++ {
		if p.peek() == '{' {
			if name != "tr" || i != 1 {
				return p.errorf("script tree outside tr()")
			}
			if err := p.parseTree(depth + 1); err != nil {
				return err
			}
		} else if err := p.parseExpr(depth + 1); err != nil {
			return err
		}

		switch p.peek() {
		case ',':
			p.pos++
			p.out.WriteByte(',')
		case ')':
			p.pos++
			p.out.WriteByte(')')
			return nil
		default:
			return p.errorf("expected ',' or ')'")
		}
	}
}

func (p *parser) parseTree(depth int) error {
	if depth > maxDepth {
		return p.errorf("nesting deeper than %d", maxDepth)
	}
	if p.peek() != '{' {
		return p.parseExpr(depth)
	}
	p.pos++
	p.out.WriteByte('{')
	if err := p.parseTree(depth + 1); err != nil {
		return err
	}
	if p.peek() != ',' {
		return p.errorf("expected ',' in script tree")
	}
	p.pos++
	p.out.WriteByte(',')
	if err := p.parseTree(depth + 1); err != nil {
		return err
	}
	if p.peek() != '}' {
		return p.errorf("expected '}'")
	}
	p.pos++
	p.out.WriteByte('}')
	return nil
}

func validName(name string) bool {
	for _, c := range name {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == ':') {
			return false
		}
	}
	return name != ""
}

func (p *parser) parseLeaf(tok string) error {
	if isNumber(tok) || isHex(tok) {
		p.pos += len(tok)
		p.out.WriteString(tok)
		return nil
	}
	key, suffix, err := p.parseKey(tok)
	if err != nil {
		return err
	}
	p.pos += len(tok)

	id := key.String()
	index, seen := p.keyIndex[id]
	if !seen {
		index = len(p.keys)
		p.keyIndex[id] = index
		p.keys = append(p.keys, key)
	}
	p.out.WriteString("@" + strconv.Itoa(index) + suffix)
	return nil
}

func (p *parser) parseKey(tok string) (Key, string, error) {
	var key Key
	body := tok
	if strings.HasPrefix(body, "[") {
		end := strings.IndexByte(body, ']')
		if end < 0 {
			return key, "", p.errorf("unterminated key origin")
		}
		origin := body[1:end]
		body = body[end+1:]

		fpHex, pathStr, _ := strings.Cut(origin, "/")
		fp, err := hwi.ParseFingerprint(fpHex)
		if err != nil {
			return key, "", p.errorf("bad origin fingerprint %q", fpHex)
		}
		path, err := hwi.ParseDerivationPath(pathStr)
		if err != nil {
			return key, "", p.errorf("bad origin path %q", pathStr)
		}
		key.HasOrigin = true
		key.Fingerprint = fp
		key.Path = path
	}

	xpub, suffix, _ := strings.Cut(body, "/")
	if suffix != "" {
		suffix = "/" + suffix
	}
	if !validSuffix(suffix) {
		return key, "", p.errorf("bad key derivation %q", suffix)
	}

	ext, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return key, "", p.errorf("bad extended key: %v", err)
	}
	if ext.IsPrivate() {
		return key, "", p.errorf("private keys are not accepted")
	}
	key.XPub = xpub
	return key, suffix, nil
}

// validSuffix accepts "", "/**", "/<a;b>/*" and unhardened steps optionally
// ending in "/*".
func validSuffix(s string) bool {
	if s == "" || s == "/**" {
		return true
	}
	steps := strings.Split(strings.TrimPrefix(s, "/"), "/")
	for i, step := range steps {
		last := i == len(steps)-1
		switch {
		case step == "*" && last:
		case strings.HasPrefix(step, "<") && strings.HasSuffix(step, ">"):
			a, b, ok := strings.Cut(step[1:len(step)-1], ";")
			if !ok || !isNumber(a) || !isNumber(b) || a == b {
				return false
			}
		case isNumber(step):
		default:
			return false
		}
	}
	return true
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 32)
	return err == nil
}

func isHex(s string) bool {
	switch len(s) {
	case 40, 64, 66:
	default:
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

var multipath = regexp.MustCompile(`/<(\d+);(\d+)>/\*`)

// AtIndex returns the descriptor with every wildcard derivation resolved to
// the given change branch and index, checksum appended. Keys ending in "/**"
// use branch 0 or 1, "/<a;b>/*" picks a or b.
func (d *Descriptor) AtIndex(change bool, index uint32) string {
	branch := 0
	if change {
		branch = 1
	}
	i := strconv.FormatUint(uint64(index), 10)

	s := strings.ReplaceAll(d.Raw, "/**", "/"+strconv.Itoa(branch)+"/*")
	s = multipath.ReplaceAllStringFunc(s, func(m string) string {
		sub := multipath.FindStringSubmatch(m)
		return "/" + sub[1+branch] + "/*"
	})
	s = strings.ReplaceAll(s, "/*", "/"+i)

	sum, _ := Checksum(s)
	return s + "#" + sum
}
