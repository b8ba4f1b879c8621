package shader

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseAnnotation(t *testing.T) {
	a, err := parseAnnotation("  //@oxy:include globals", 3)
	if err != nil || a == nil || a.Type != AnnotationTypeInclude || a.Args[0] != "globals" || a.Line != 3 {
		t.Errorf("include = %+v, %v", a, err)
	}
	a, err = parseAnnotation("// @oxy:const MAX_LIGHTS u32", 1)
	if err != nil || a == nil || a.Type != AnnotationTypeConst || a.Args[1] != "u32" {
		t.Errorf("const = %+v, %v", a, err)
	}
	if a, err := parseAnnotation("let x = 1.0; // plain comment", 1); a != nil || err != nil {
		t.Errorf("plain line = %+v, %v", a, err)
	}

	for _, bad := range []string{
		"//@oxy:",
		"//@oxy:include",
		"//@oxy:include a b",
		"//@oxy:const X",
		"//@oxy:const X vec3",
		"//@oxy:group 0 0",
	} {
		if _, err := parseAnnotation(bad, 7); err == nil || !strings.Contains(err.Error(), "line 7") {
			t.Errorf("%q: err = %v", bad, err)
		}
	}
}

func TestLoadResolvesIncludesOnce(t *testing.T) {
	sources := fstest.MapFS{
		"common.wgsl":   {Data: []byte("struct Common { x: f32 };")},
		"lighting.wgsl": {Data: []byte("//@oxy:include common\nfn light() {}")},
		"main.wgsl":     {Data: []byte("//@oxy:include common\n//@oxy:include lighting\nfn main() {}")},
	}
	out, err := NewPreProcessor(sources).Load("main")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := strings.Count(out, "struct Common"); n != 1 {
		t.Errorf("common injected %d times:\n%s", n, out)
	}
	if !strings.Contains(out, "fn light()") || !strings.HasSuffix(out, "fn main() {}") {
		t.Errorf("output:\n%s", out)
	}
	if strings.Contains(out, "@oxy") {
		t.Errorf("annotation left in output:\n%s", out)
	}
}

func TestLoadErrors(t *testing.T) {
	sources := fstest.MapFS{
		"a.wgsl":       {Data: []byte("//@oxy:include b")},
		"b.wgsl":       {Data: []byte("//@oxy:include a")},
		"missing.wgsl": {Data: []byte("//@oxy:include nowhere")},
	}
	p := NewPreProcessor(sources)
	if _, err := p.Load("a"); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("cycle err = %v", err)
	}
	if _, err := p.Load("missing"); err == nil {
		t.Error("missing include accepted")
	}
	if _, err := p.Load("absent"); err == nil {
		t.Error("absent file loaded")
	}
	if _, err := NewPreProcessor(nil).Load("a"); err == nil {
		t.Error("nil source file system loaded")
	}
}

func TestConstants(t *testing.T) {
	p := NewPreProcessor(nil,
		WithConstant("MODE", uint32(3)),
		WithConstant("OFFSET", -2),
		WithConstant("SCALE", float32(0.5)),
		WithConstant("ONE", 1.0),
	)
	out, err := p.Process("//@oxy:const MODE u32\n//@oxy:const OFFSET i32\n//@oxy:const SCALE f32\n//@oxy:const ONE f32")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := "const MODE: u32 = 3u;\nconst OFFSET: i32 = -2i;\nconst SCALE: f32 = 0.5;\nconst ONE: f32 = 1.0;"
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}

	if _, err := p.Process("//@oxy:const UNKNOWN u32"); err == nil {
		t.Error("unregistered constant accepted")
	}
	if _, err := p.Process("//@oxy:const OFFSET u32"); err == nil {
		t.Error("negative u32 accepted")
	}
	if _, err := p.Process("//@oxy:const SCALE i32"); err == nil {
		t.Error("fractional i32 accepted")
	}
}
