package wire

import (
	"net/url"
	"strings"

	"fmgo/ds"
)

type (
	// Params is the flat, ordered parameter map both grammars start
	// from. A value is either a string or the flag sentinel (present,
	// no value).
	Params struct {
		lhm *ds.LinkedHashMap[string, paramValue]
	}

	paramValue struct {
		str  string
		flag bool
	}
)

func NewParams() *Params {
	return &Params{
		lhm: ds.NewLinkedHashMap[string, paramValue](),
	}
}

func (p *Params) Set(name string, value string) *Params {
	p.lhm.Put(name, paramValue{str: value})
	return p
}

// SetFlag records a parameter that is present without a value, like
// `-findall`.
func (p *Params) SetFlag(name string) *Params {
	p.lhm.Put(name, paramValue{flag: true})
	return p
}

func (p *Params) Get(name string) (string, bool) {
	value, ok := p.lhm.Get(name)
	if !ok || value.flag {
		return "", ok
	}
	return value.str, true
}

func (p *Params) Has(name string) bool {
	return p.lhm.Has(name)
}

func (p *Params) IsFlag(name string) bool {
	value, ok := p.lhm.Get(name)
	return ok && value.flag
}

func (p *Params) Names() []string {
	return p.lhm.Keys()
}

func (p *Params) Len() int {
	return p.lhm.Len()
}

// EncodeForm serializes the map as an urlencoded body for the legacy
// grammar. Flags encode as a bare name.
func (p *Params) EncodeForm() string {
	parts := make([]string, 0, p.lhm.Len())
	for _, name := range p.lhm.Keys() {
		value, _ := p.lhm.Get(name)
		if value.flag {
			parts = append(parts, url.QueryEscape(name))
			continue
		}
		parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(value.str))
	}
	return strings.Join(parts, "&")
}
