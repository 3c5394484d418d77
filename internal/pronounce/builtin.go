package pronounce

import (
	"bytes"
	_ "embed"
	"sync"
)

//go:embed data/mini.dict
var builtinData []byte

var builtin = sync.OnceValue(func() *Map {
	m, err := LoadCMU(bytes.NewReader(builtinData))
	if err != nil {
		panic("pronounce: embedded dictionary is malformed: " + err.Error())
	}
	return m
})

// Builtin returns the small embedded English dictionary. The same *Map is
// returned on every call.
func Builtin() *Map {
	return builtin()
}
