package persist

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ztimson/var-perisist/pkg/storage"
)

func TestNullValues(t *testing.T) {
	mem := newMemory(t)

	p := mustNew[any](t, "test", WithStorage(mem))
	if p.Defined() || p.Interface() != nil {
		t.Fatalf("expected undefined value, got %v", p.Interface())
	}

	if err := p.Set(nil); err != nil {
		t.Fatalf("set nil: %v", err)
	}
	p = mustNew[any](t, "test", WithStorage(mem))
	if !p.Defined() || p.Get() != nil {
		t.Fatalf("expected defined null, got defined=%v value=%v", p.Defined(), p.Get())
	}

	if err := p.Set(0); err != nil {
		t.Fatalf("set 0: %v", err)
	}
	p = mustNew[any](t, "test", WithStorage(mem))
	if p.Get() != float64(0) {
		t.Fatalf("expected 0, got %#v", p.Get())
	}

	if err := p.Set(false); err != nil {
		t.Fatalf("set false: %v", err)
	}
	p = mustNew[any](t, "test", WithStorage(mem))
	if p.Get() != false {
		t.Fatalf("expected false, got %#v", p.Get())
	}

	if err := p.Unset(); err != nil {
		t.Fatalf("unset: %v", err)
	}
	p = mustNew[any](t, "test", WithStorage(mem))
	if p.Defined() {
		t.Fatalf("expected undefined after unset, got %#v", p.Get())
	}
}

func TestRoundTripValues(t *testing.T) {
	t.Run("number", func(t *testing.T) {
		mem := newMemory(t)
		mustNew[float64](t, "test", WithStorage(mem)).Set(42.5)
		if got := mustNew[float64](t, "test", WithStorage(mem)).Get(); got != 42.5 {
			t.Fatalf("expected 42.5, got %v", got)
		}
	})
	t.Run("boolean", func(t *testing.T) {
		mem := newMemory(t)
		mustNew[bool](t, "test", WithStorage(mem)).Set(true)
		if got := mustNew[bool](t, "test", WithStorage(mem)).Get(); !got {
			t.Fatalf("expected true")
		}
	})
	t.Run("string", func(t *testing.T) {
		mem := newMemory(t)
		mustNew[string](t, "test", WithStorage(mem)).Set("abc")
		if got := mustNew[string](t, "test", WithStorage(mem)).Get(); got != "abc" {
			t.Fatalf("expected abc, got %q", got)
		}
	})
	t.Run("array", func(t *testing.T) {
		mem := newMemory(t)
		mustNew[[]int](t, "test", WithStorage(mem)).Set([]int{9, 8, 7})
		if got := mustNew[[]int](t, "test", WithStorage(mem)).Get(); !reflect.DeepEqual(got, []int{9, 8, 7}) {
			t.Fatalf("expected [9 8 7], got %v", got)
		}
	})
	t.Run("object", func(t *testing.T) {
		mem := newMemory(t)
		value := map[string]any{"a": 0.0, "b": "c"}
		p := mustNew[map[string]any](t, "test", WithStorage(mem))
		if err := p.Set(value); err != nil {
			t.Fatalf("set: %v", err)
		}
		p = mustNew[map[string]any](t, "test", WithStorage(mem))
		if !reflect.DeepEqual(p.Get(), value) {
			t.Fatalf("expected %v, got %v", value, p.Get())
		}
		if err := p.SetProperty("b", "test"); err != nil {
			t.Fatalf("set property: %v", err)
		}
		p = mustNew[map[string]any](t, "test", WithStorage(mem))
		want := map[string]any{"a": 0.0, "b": "test"}
		if !reflect.DeepEqual(p.Get(), want) {
			t.Fatalf("expected %v, got %v", want, p.Get())
		}
	})
}

func TestDefaultValue(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[bool](t, "test", WithStorage(mem))
	if err := p.Unset(); err != nil {
		t.Fatalf("unset: %v", err)
	}
	p = mustNew[bool](t, "test", WithStorage(mem), WithDefault(true))
	if !p.Get() {
		t.Fatalf("expected default true")
	}
	if text, ok := stored(t, mem, "test"); !ok || text != "true" {
		t.Fatalf("expected default persisted, got %q %v", text, ok)
	}
}

func TestDefaultFalsyValueIsKept(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[float64](t, "count", WithStorage(mem), WithDefault(0.0))
	if !p.Defined() || p.Get() != 0 {
		t.Fatalf("expected defined zero default, got defined=%v value=%v", p.Defined(), p.Get())
	}
	if _, ok := stored(t, mem, "count"); !ok {
		t.Fatalf("expected zero default to be persisted")
	}
}

func TestDefaultIsNotAliased(t *testing.T) {
	mem := newMemory(t)
	def := map[string]int{"a": 1}
	p := mustNew[map[string]int](t, "counts", WithStorage(mem), WithDefault(def))
	if err := Put(p, "b", 2); err != nil {
		t.Fatalf("put: %v", err)
	}
	if len(def) != 1 {
		t.Fatalf("expected configured default untouched, got %v", def)
	}
}

func TestInterfaceDefaultIsCopiedThroughHint(t *testing.T) {
	mem := newMemory(t)
	def := &dog{Name: "Rex"}
	p := mustNew[speaker](t, "pet", WithStorage(mem), WithDefault[speaker](def), WithType(As[*dog, speaker]()))

	if err := p.SetProperty("name", "Fido"); err != nil {
		t.Fatalf("set property: %v", err)
	}
	if def.Name != "Rex" {
		t.Fatalf("configured default changed to %q", def.Name)
	}
	if got := p.Get().Speak(); got != "Fido says woof" {
		t.Fatalf("unexpected behavior %q", got)
	}

	if err := p.Unset(); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if err := p.Update(func(v *speaker) { (*v).(*dog).Name = "Max" }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if def.Name != "Rex" {
		t.Fatalf("configured default changed to %q", def.Name)
	}
	if err := p.Unset(); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if got := p.Get().Speak(); got != "Rex says woof" {
		t.Fatalf("expected default fallback, got %q", got)
	}
}

func TestUncopyableDefaultFailsNew(t *testing.T) {
	_, err := New[speaker]("pet", WithStorage(newMemory(t)), WithDefault[speaker](&dog{Name: "Rex"}))
	if !errors.Is(err, ErrDefaultNotCopyable) {
		t.Fatalf("expected ErrDefaultNotCopyable, got %v", err)
	}
}

func TestDefaultTypeMismatch(t *testing.T) {
	_, err := New[float64]("n", WithStorage(newMemory(t)), WithDefault(1))
	if err == nil || !strings.Contains(err.Error(), "does not match float64") {
		t.Fatalf("expected default mismatch error, got %v", err)
	}
}

type testObj struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (o testObj) Sum() int { return o.A + o.B }

type speaker interface {
	Speak() string
}

type dog struct {
	Name string `json:"name"`
}

func (d *dog) Speak() string { return d.Name + " says woof" }

func TestTypeRestoration(t *testing.T) {
	t.Run("concrete type keeps methods", func(t *testing.T) {
		mem := newMemory(t)
		mustNew[testObj](t, "test", WithStorage(mem)).Set(testObj{A: 1, B: 3})
		p := mustNew[testObj](t, "test", WithStorage(mem))
		if p.Get() != (testObj{A: 1, B: 3}) {
			t.Fatalf("unexpected value %+v", p.Get())
		}
		if p.Get().Sum() != 4 {
			t.Fatalf("expected sum 4, got %d", p.Get().Sum())
		}
	})

	t.Run("interface restored through hint", func(t *testing.T) {
		mem := newMemory(t)
		writer := mustNew[speaker](t, "pet", WithStorage(mem), WithType(As[*dog, speaker]()))
		if err := writer.Set(&dog{Name: "Rex"}); err != nil {
			t.Fatalf("set: %v", err)
		}
		p := mustNew[speaker](t, "pet", WithStorage(mem), WithType(As[*dog, speaker]()))
		if p.Get() == nil {
			t.Fatalf("expected restored value")
		}
		if got := p.Get().Speak(); got != "Rex says woof" {
			t.Fatalf("unexpected behavior %q", got)
		}
	})

	t.Run("hint post hook sees key", func(t *testing.T) {
		mem := newMemory(t)
		if err := mem.Set("pet", `{"name":""}`); err != nil {
			t.Fatalf("seed: %v", err)
		}
		hint := As[*dog, speaker](func(key string, d **dog) error {
			if (*d).Name == "" {
				(*d).Name = key
			}
			return nil
		})
		p := mustNew[speaker](t, "pet", WithStorage(mem), WithType(hint))
		if got := p.Get().Speak(); got != "pet says woof" {
			t.Fatalf("unexpected behavior %q", got)
		}
	})

	t.Run("hint skipped for null", func(t *testing.T) {
		mem := newMemory(t)
		if err := mem.Set("pet", "null"); err != nil {
			t.Fatalf("seed: %v", err)
		}
		p := mustNew[speaker](t, "pet", WithStorage(mem), WithType(As[*dog, speaker]()))
		if !p.Defined() || p.Get() != nil {
			t.Fatalf("expected defined nil, got %v", p.Get())
		}
	})

	t.Run("interface without hint is malformed", func(t *testing.T) {
		mem := newMemory(t)
		if err := mem.Set("pet", `{"name":"Rex"}`); err != nil {
			t.Fatalf("seed: %v", err)
		}
		_, err := New[speaker]("pet", WithStorage(mem))
		var malformed *MalformedDataError
		if !errors.As(err, &malformed) {
			t.Fatalf("expected MalformedDataError, got %v", err)
		}
	})

	t.Run("hint type mismatch", func(t *testing.T) {
		_, err := New[testObj]("pet", WithStorage(newMemory(t)), WithType(As[*dog, speaker]()))
		if err == nil || !strings.Contains(err.Error(), "type hint") {
			t.Fatalf("expected hint mismatch error, got %v", err)
		}
	})
}

func TestImpureMutation(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[[]int](t, "test", WithStorage(mem))
	if err := p.Set([]int{1}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if n, err := Push(p, 2); err != nil || n != 2 {
		t.Fatalf("push: n=%d err=%v", n, err)
	}
	p = mustNew[[]int](t, "test", WithStorage(mem))
	if !reflect.DeepEqual(p.Get(), []int{1, 2}) {
		t.Fatalf("expected [1 2], got %v", p.Get())
	}
}

func TestThemeScenario(t *testing.T) {
	mem := newMemory(t)
	theme := mustNew[string](t, "theme", WithStorage(mem), WithDefault("os"))
	if theme.Get() != "os" {
		t.Fatalf("expected os, got %q", theme.Get())
	}
	if err := theme.Set("light"); err != nil {
		t.Fatalf("set: %v", err)
	}

	restarted := mustNew[string](t, "theme", WithStorage(mem), WithDefault("os"))
	if restarted.Get() != "light" {
		t.Fatalf("expected light after restart, got %q", restarted.Get())
	}
}

func TestUndefinedValueIsAbsentFromStorage(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[string](t, "test", WithStorage(mem))
	if _, ok := stored(t, mem, "test"); ok {
		t.Fatalf("expected no slot for undefined value")
	}
	if err := p.Set("x"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := p.Unset(); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if _, ok := stored(t, mem, "test"); ok {
		t.Fatalf("expected slot removed after unset")
	}
	if v, ok := p.Lookup(); ok || v != "" {
		t.Fatalf("expected undefined lookup, got %q %v", v, ok)
	}
}

func TestMalformedStoredData(t *testing.T) {
	mem := newMemory(t)
	if err := mem.Set("bad", "{oops"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := New[map[string]any]("bad", WithStorage(mem))
	var malformed *MalformedDataError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedDataError, got %v", err)
	}
	if malformed.Key != "bad" || malformed.Data != "{oops" {
		t.Fatalf("unexpected error fields %+v", malformed)
	}
	if text, _ := stored(t, mem, "bad"); text != "{oops" {
		t.Fatalf("expected malformed slot left intact, got %q", text)
	}

	if err := mem.Set("typed", `"text"`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := New[float64]("typed", WithStorage(mem)); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedDataError for type mismatch, got %v", err)
	}
}

func TestTolerantCodecReadsHandEditedText(t *testing.T) {
	mem := newMemory(t)
	if err := mem.Set("prefs", "{\n  // edited by hand\n  \"mode\": \"dark\",\n}"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := New[map[string]string]("prefs", WithStorage(mem)); err == nil {
		t.Fatalf("expected strict codec to reject comments")
	}
	p := mustNew[map[string]string](t, "prefs", WithStorage(mem), WithCodec(TolerantJSON{}))
	if p.Get()["mode"] != "dark" {
		t.Fatalf("expected dark, got %v", p.Get())
	}
	if text, _ := stored(t, mem, "prefs"); text != `{"mode":"dark"}` {
		t.Fatalf("expected normalized JSON written back, got %q", text)
	}
}

func TestWriteFailureKeepsValue(t *testing.T) {
	mem := storage.NewMemory(storage.WithMaxBytes(32))
	p := mustNew[string](t, "k", WithStorage(mem), WithDefault("small"))

	notified := 0
	p.Watch(func(string) { notified++ })

	big := strings.Repeat("x", 64)
	err := p.Set(big)
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	if werr.Op != "set" || werr.Key != "k" {
		t.Fatalf("unexpected write error fields %+v", werr)
	}
	if !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if p.Get() != big {
		t.Fatalf("expected in-memory value kept, got %q", p.Get())
	}
	if notified != 0 {
		t.Fatalf("expected no notification on failed write, got %d", notified)
	}
	if text, _ := stored(t, mem, "k"); text != `"small"` {
		t.Fatalf("expected previous stored value, got %q", text)
	}
}

func TestUnavailableStorage(t *testing.T) {
	cause := errors.New("disabled by policy")
	_, err := New[string]("k", WithStorage(storage.Unavailable(cause)))
	if !errors.Is(err, storage.ErrUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestEmptyKey(t *testing.T) {
	if _, err := New[string]("", WithStorage(newMemory(t))); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestClearRemovesSlotOnly(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[string](t, "k", WithStorage(mem))
	if err := p.Set("v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	notified := 0
	p.Watch(func(string) { notified++ })

	if err := p.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := stored(t, mem, "k"); ok {
		t.Fatalf("expected slot removed")
	}
	if p.Get() != "v" || !p.Defined() {
		t.Fatalf("expected in-memory value untouched, got %q", p.Get())
	}
	if notified != 0 {
		t.Fatalf("expected no notification from clear, got %d", notified)
	}

	if err := p.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if text, ok := stored(t, mem, "k"); !ok || text != `"v"` {
		t.Fatalf("expected save to rewrite slot, got %q %v", text, ok)
	}
}

func TestLoadResyncs(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[string](t, "k", WithStorage(mem), WithDefault("a"))
	var seen []string
	p.Watch(func(v string) { seen = append(seen, v) })

	if err := mem.Set("k", `"b"`); err != nil {
		t.Fatalf("external write: %v", err)
	}
	if err := p.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Get() != "b" {
		t.Fatalf("expected b, got %q", p.Get())
	}
	if !reflect.DeepEqual(seen, []string{"b"}) {
		t.Fatalf("expected one notification with b, got %v", seen)
	}
}

func TestShallowMutationNeedsSave(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[map[string]any](t, "doc", WithStorage(mem))
	if err := p.Set(map[string]any{"inner": map[string]any{"n": 1.0}}); err != nil {
		t.Fatalf("set: %v", err)
	}

	inner, ok := p.Property("inner")
	if !ok {
		t.Fatalf("expected inner property")
	}
	inner.(map[string]any)["n"] = 2.0

	if text, _ := stored(t, mem, "doc"); text != `{"inner":{"n":1}}` {
		t.Fatalf("expected direct nested mutation to be unobserved, got %q", text)
	}
	if err := p.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if text, _ := stored(t, mem, "doc"); text != `{"inner":{"n":2}}` {
		t.Fatalf("expected save to re-sync, got %q", text)
	}
}

func TestAccessors(t *testing.T) {
	mem := newMemory(t)

	undefined := mustNew[any](t, "none", WithStorage(mem))
	if undefined.String() != "undefined" {
		t.Fatalf("expected undefined text, got %q", undefined.String())
	}
	if _, ok := undefined.Number(); ok {
		t.Fatalf("expected no number for undefined value")
	}
	if undefined.Key() != "none" {
		t.Fatalf("unexpected key %q", undefined.Key())
	}

	theme := mustNew[string](t, "theme", WithStorage(mem), WithDefault("os"))
	if theme.String() != `"os"` {
		t.Fatalf("expected JSON text, got %q", theme.String())
	}

	cases := []struct {
		value any
		want  float64
		ok    bool
	}{
		{value: 3.5, want: 3.5, ok: true},
		{value: " 12 ", want: 12, ok: true},
		{value: true, want: 1, ok: true},
		{value: false, want: 0, ok: true},
		{value: "abc", ok: false},
		{value: []any{1.0}, ok: false},
	}
	p := mustNew[any](t, "n", WithStorage(mem))
	for _, tc := range cases {
		if err := p.Set(tc.value); err != nil {
			t.Fatalf("set %v: %v", tc.value, err)
		}
		got, ok := p.Number()
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("Number(%#v): expected %v %v, got %v %v", tc.value, tc.want, tc.ok, got, ok)
		}
	}

	obj := mustNew[testObj](t, "obj", WithStorage(mem))
	if err := obj.Set(testObj{A: 1, B: 2}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if obj.String() != `{"a":1,"b":2}` {
		t.Fatalf("unexpected text %q", obj.String())
	}
	if obj.Interface() != (testObj{A: 1, B: 2}) {
		t.Fatalf("unexpected interface value %v", obj.Interface())
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	MustNew[string]("")
}
