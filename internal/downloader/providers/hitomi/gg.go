package hitomi

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// evalTimeout bounds every call into a downloaded gg.js.
var evalTimeout = 2 * time.Second

// Mapper is the site's obfuscated hash-to-subdomain table: gg.m(g) picks the
// subdomain offset for an image number and gg.b is the path prefix.
type Mapper interface {
	M(g int) (int, error)
	B() string
}

// ScriptMapper runs the m function of a gg.js script in a goja VM.
type ScriptMapper struct {
	mu sync.Mutex
	vm *goja.Runtime
	m  goja.Callable
	b  string
}

// NewScriptMapper evaluates gg.js and extracts gg.m and gg.b.
func NewScriptMapper(script string) (*ScriptMapper, error) {
	vm := goja.New()
	vm.Set("gg", vm.NewObject())

	timer := time.AfterFunc(evalTimeout, func() {
		vm.Interrupt("gg.js evaluation timed out")
	})

	_, err := vm.RunString(script)
	timer.Stop()
	vm.ClearInterrupt()
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate gg.js: %w", err)
	}

	gg := vm.Get("gg")
	if gg == nil || goja.IsUndefined(gg) || goja.IsNull(gg) {
		return nil, fmt.Errorf("gg.js did not define gg")
	}
	obj := gg.ToObject(vm)

	m, ok := goja.AssertFunction(obj.Get("m"))
	if !ok {
		return nil, fmt.Errorf("gg.m is not a function")
	}
	bVal := obj.Get("b")
	if bVal == nil || goja.IsUndefined(bVal) {
		return nil, fmt.Errorf("gg.b is not defined")
	}

	return &ScriptMapper{vm: vm, m: m, b: bVal.String()}, nil
}

// M returns the subdomain offset gg.m assigns to image number g. A call that
// runs longer than evalTimeout is interrupted.
func (s *ScriptMapper) M(g int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := time.AfterFunc(evalTimeout, func() {
		s.vm.Interrupt("gg.m timed out")
	})
	val, err := s.m(goja.Undefined(), s.vm.ToValue(g))
	timer.Stop()
	s.vm.ClearInterrupt()
	if err != nil {
		return 0, fmt.Errorf("gg.m(%d): %w", g, err)
	}
	return int(val.ToInteger()), nil
}

// B returns the gg.b path prefix.
func (s *ScriptMapper) B() string {
	return s.b
}

// ImageNumber is the number hidden in the tail of an image hash: the last
// character followed by the two before it, read as hex.
func ImageNumber(hash string) (int, error) {
	if len(hash) < 3 {
		return 0, fmt.Errorf("hash %q too short", hash)
	}
	tail := hash[len(hash)-3:]
	n, err := strconv.ParseInt(tail[2:]+tail[:2], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("hash %q is not hex: %w", hash, err)
	}
	return int(n), nil
}

// SubdomainIndex maps a hash to its subdomain offset from 'a'.
func SubdomainIndex(hash string, mapper Mapper) (int, error) {
	g, err := ImageNumber(strings.ToLower(hash))
	if err != nil {
		return 0, err
	}
	return mapper.M(g)
}

// Subdomain returns the image host label for a hash, e.g. "ba".
func Subdomain(hash string, mapper Mapper) (string, error) {
	idx, err := SubdomainIndex(hash, mapper)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx > 25 {
		return "", fmt.Errorf("subdomain index %d out of range", idx)
	}
	return string(rune('a'+idx)) + "a", nil
}
