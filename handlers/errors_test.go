package handlers

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "parse", ParseError.String())
	assert.Equal(t, "topology", TopologyError.String())
	assert.Equal(t, "store", StoreError.String())
	assert.Equal(t, "unexpected", UnexpectedError.String())
	assert.Equal(t, "unknown", ErrorKind(42).String())
}

func TestDetectionError(t *testing.T) {
	cause := errors.New("bad ring")

	err := newError(ParseError, "r1", "2", cause)
	assert.Equal(t, "parse error on record r1 field 2: bad ring", err.Error())
	assert.ErrorIs(t, err, cause)

	err = newError(StoreError, "r1", "", cause)
	assert.Equal(t, "store error on record r1: bad ring", err.Error())
}

func TestDiagnostics_Dedupe(t *testing.T) {
	diags := &Diagnostics{}
	cause := errors.New("bad ring")

	diags.Add(newError(ParseError, "r1", "1", cause))
	diags.Add(newError(ParseError, "r1", "1", cause))
	diags.Add(newError(ParseError, "r1", "2", cause))
	diags.Add(newError(TopologyError, "r1", "1", cause))
	diags.Add(nil)

	assert.Equal(t, 3, diags.Len())
	assert.Equal(t, map[ErrorKind]int{ParseError: 2, TopologyError: 1}, diags.CountByKind())

	entry := diags.Entries()[0]
	assert.Equal(t, "parse", entry.KindName)
	assert.Equal(t, "bad ring", entry.Message)
}

func TestDiagnostics_Merge(t *testing.T) {
	a := &Diagnostics{}
	b := &Diagnostics{}
	a.Add(newError(ParseError, "r1", "1", errors.New("x")))
	b.Add(newError(ParseError, "r1", "1", errors.New("x")))
	b.Add(newError(StoreError, "r2", "", errors.New("y")))

	a.merge(b)
	a.merge(nil)
	assert.Equal(t, 2, a.Len())
}

func TestDiagnostics_Concurrent(t *testing.T) {
	diags := &Diagnostics{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				diags.Add(newError(TopologyError, "r", "", errors.New(string(rune('a'+i)))))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, diags.Len())
}

func TestDiagnostics_NilSafe(t *testing.T) {
	var diags *Diagnostics
	assert.NotPanics(t, func() { diags.Add(newError(ParseError, "r", "", errors.New("x"))) })
}
