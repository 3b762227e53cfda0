package persist

import (
	"errors"
	"reflect"
	"testing"
)

type profile struct {
	DisplayName string `json:"display_name"`
	Age         int    `json:"age"`
	Secret      string `json:"-"`
	hidden      string
}

func (p *profile) Rename(name string) string {
	old := p.DisplayName
	p.DisplayName = name
	return old
}

func TestUpdateAndMutate(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[profile](t, "profile", WithStorage(mem))
	notified := 0
	p.Watch(func(profile) { notified++ })

	if err := p.Update(func(v *profile) { v.Age = 30 }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if text, _ := stored(t, mem, "profile"); text != `{"display_name":"","age":30}` {
		t.Fatalf("unexpected stored text %q", text)
	}

	boom := errors.New("rejected")
	err := p.Mutate(func(v *profile) error {
		v.Age = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutate error, got %v", err)
	}
	if p.Get().Age != 30 {
		t.Fatalf("expected rejected mutation discarded, got %d", p.Get().Age)
	}
	if notified != 1 {
		t.Fatalf("expected one notification, got %d", notified)
	}
}

func TestInvokeReturnsResult(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[*profile](t, "profile", WithStorage(mem), WithDefault(&profile{DisplayName: "old"}))

	old, err := Invoke(p, func(v **profile) string { return (*v).Rename("new") })
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if old != "old" {
		t.Fatalf("expected previous name, got %q", old)
	}
	restored := mustNew[*profile](t, "profile", WithStorage(mem))
	if restored.Get().DisplayName != "new" {
		t.Fatalf("expected rename persisted, got %+v", restored.Get())
	}
}

func TestMutatorStartsFromDefaultWhenUndefined(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[[]string](t, "tags", WithStorage(mem))
	if p.Defined() {
		t.Fatalf("expected undefined")
	}
	if n, err := Push(p, "a", "b"); err != nil || n != 2 {
		t.Fatalf("push: n=%d err=%v", n, err)
	}
	if !p.Defined() {
		t.Fatalf("expected value defined after mutation")
	}
	if text, _ := stored(t, mem, "tags"); text != `["a","b"]` {
		t.Fatalf("unexpected stored text %q", text)
	}
}

func TestRemoveAt(t *testing.T) {
	p := mustNew[[]int](t, "list", WithStorage(newMemory(t)), WithDefault([]int{1, 2, 3}))

	removed, err := RemoveAt(p, 1)
	if err != nil || removed != 2 {
		t.Fatalf("remove: removed=%d err=%v", removed, err)
	}
	if !reflect.DeepEqual(p.Get(), []int{1, 3}) {
		t.Fatalf("unexpected value %v", p.Get())
	}
	if _, err := RemoveAt(p, 5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestPutAndDelete(t *testing.T) {
	mem := newMemory(t)
	p := mustNew[map[string]int](t, "counts", WithStorage(mem))

	if err := Put(p, "a", 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	present, err := Delete(p, "a")
	if err != nil || !present {
		t.Fatalf("delete: present=%v err=%v", present, err)
	}
	present, err = Delete(p, "a")
	if err != nil || present {
		t.Fatalf("delete missing: present=%v err=%v", present, err)
	}
	if text, _ := stored(t, mem, "counts"); text != `{}` {
		t.Fatalf("unexpected stored text %q", text)
	}
}

func TestSetProperty(t *testing.T) {
	t.Run("struct by json name", func(t *testing.T) {
		mem := newMemory(t)
		p := mustNew[profile](t, "profile", WithStorage(mem))
		if err := p.SetProperty("display_name", "Ada"); err != nil {
			t.Fatalf("set property: %v", err)
		}
		if err := p.SetProperty("Age", 36.0); err != nil {
			t.Fatalf("set numeric property: %v", err)
		}
		if got := p.Get(); got.DisplayName != "Ada" || got.Age != 36 {
			t.Fatalf("unexpected value %+v", got)
		}
		if text, _ := stored(t, mem, "profile"); text != `{"display_name":"Ada","age":36}` {
			t.Fatalf("unexpected stored text %q", text)
		}
	})

	t.Run("struct held in interface", func(t *testing.T) {
		p := mustNew[any](t, "profile", WithStorage(newMemory(t)))
		if err := p.Set(profile{DisplayName: "Ada"}); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := p.SetProperty("age", 5); err != nil {
			t.Fatalf("set property: %v", err)
		}
		got, ok := p.Get().(profile)
		if !ok || got.Age != 5 || got.DisplayName != "Ada" {
			t.Fatalf("unexpected value %#v", p.Get())
		}
	})

	t.Run("slice index", func(t *testing.T) {
		p := mustNew[[]string](t, "list", WithStorage(newMemory(t)), WithDefault([]string{"a", "b"}))
		if err := p.SetProperty("1", "z"); err != nil {
			t.Fatalf("set property: %v", err)
		}
		if !reflect.DeepEqual(p.Get(), []string{"a", "z"}) {
			t.Fatalf("unexpected value %v", p.Get())
		}
		if err := p.SetProperty("7", "z"); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
		}
	})

	t.Run("numbers must fit", func(t *testing.T) {
		type counters struct {
			N     int     `json:"n"`
			Small int8    `json:"small"`
			Count uint    `json:"count"`
			Ratio float32 `json:"ratio"`
		}
		cases := []struct {
			name  string
			field string
			value any
		}{
			{name: "fraction into int", field: "n", value: 1.7},
			{name: "overflow int8", field: "small", value: 300},
			{name: "float overflow int8", field: "small", value: 128.0},
			{name: "negative into uint", field: "count", value: -1},
			{name: "negative float into uint", field: "count", value: -2.0},
			{name: "fraction into uint", field: "count", value: 0.5},
			{name: "overflow float32", field: "ratio", value: 1e300},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				mem := newMemory(t)
				p := mustNew[counters](t, "counters", WithStorage(mem), WithDefault(counters{N: 4}))
				before, _ := stored(t, mem, "counters")
				if err := p.SetProperty(tc.field, tc.value); !errors.Is(err, ErrLossyNumber) {
					t.Fatalf("expected ErrLossyNumber, got %v", err)
				}
				if got := p.Get(); got != (counters{N: 4}) {
					t.Fatalf("value changed to %+v", got)
				}
				if after, _ := stored(t, mem, "counters"); after != before {
					t.Fatalf("stored text changed from %q to %q", before, after)
				}
			})
		}

		p := mustNew[counters](t, "counters", WithStorage(newMemory(t)))
		for field, value := range map[string]any{"n": 2.0, "small": -128, "count": 7.0, "ratio": 0.25} {
			if err := p.SetProperty(field, value); err != nil {
				t.Fatalf("%s: %v", field, err)
			}
		}
		if got := p.Get(); got != (counters{N: 2, Small: -128, Count: 7, Ratio: 0.25}) {
			t.Fatalf("unexpected value %+v", got)
		}
	})

	t.Run("errors", func(t *testing.T) {
		obj := mustNew[profile](t, "profile", WithStorage(newMemory(t)))
		for _, name := range []string{"missing", "Secret", "hidden"} {
			if err := obj.SetProperty(name, "x"); !errors.Is(err, ErrUnknownProperty) {
				t.Fatalf("%s: expected ErrUnknownProperty, got %v", name, err)
			}
		}
		if err := obj.SetProperty("age", "old"); err == nil {
			t.Fatalf("expected type mismatch error")
		}

		scalar := mustNew[string](t, "scalar", WithStorage(newMemory(t)), WithDefault("x"))
		if err := scalar.SetProperty("a", 1); !errors.Is(err, ErrNotObject) {
			t.Fatalf("expected ErrNotObject, got %v", err)
		}
		nilMap := mustNew[map[string]any](t, "nil", WithStorage(newMemory(t)))
		if err := nilMap.SetProperty("a", 1); !errors.Is(err, ErrNotObject) {
			t.Fatalf("expected ErrNotObject for nil map, got %v", err)
		}
	})
}

func TestProperty(t *testing.T) {
	p := mustNew[profile](t, "profile", WithStorage(newMemory(t)), WithDefault(profile{DisplayName: "Ada"}))
	if got, ok := p.Property("display_name"); !ok || got != "Ada" {
		t.Fatalf("expected Ada, got %v %v", got, ok)
	}
	if _, ok := p.Property("missing"); ok {
		t.Fatalf("expected missing property to report false")
	}

	scalar := mustNew[int](t, "n", WithStorage(newMemory(t)))
	if _, ok := scalar.Property("x"); ok {
		t.Fatalf("expected scalar to have no properties")
	}
}
