package renderer

import (
	"strings"
	"testing"
)

func TestEveryProgramShaderResolves(t *testing.T) {
	p := newShaderPreProcessor()
	for prog, spec := range programs {
		code, err := p.Load(strings.TrimSuffix(spec.shader, ".wgsl"))
		if err != nil {
			t.Errorf("program %v: %v", prog, err)
			continue
		}
		if strings.Contains(code, "@oxy:") {
			t.Errorf("program %v: unresolved annotation", prog)
		}
		if strings.Count(code, "struct Globals") != 1 {
			t.Errorf("program %v: globals block included %d times", prog, strings.Count(code, "struct Globals"))
		}
		if !strings.Contains(code, "fn "+spec.vs+"(") {
			t.Errorf("program %v: no vertex entry %s", prog, spec.vs)
		}
	}
}

func TestCompositionDebugConstants(t *testing.T) {
	code, err := newShaderPreProcessor().Load("composition")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(code, "const DEBUG_LIT_VOLUMES: u32 = 7u;") {
		t.Error("debug view numbering not shared with the shader")
	}
}
