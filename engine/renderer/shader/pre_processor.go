// pre_processor.go implements the WGSL shader pre-processor. It resolves @oxy: annotations
// against a file system of shader sources and a table of constants registered from Go, so the
// Go side and the shaders share one definition of every value they both depend on.
package shader

import (
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"strings"
)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// sources holds the shader files, named <name>.wgsl.
	sources fs.FS

	// constants maps constant names to their values.
	constants map[string]float64

	// included records the files injected during the current Process call.
	included map[string]bool
}

// PreProcessor turns annotated WGSL into plain WGSL ready for compilation.
type PreProcessor interface {
	// Process replaces every annotation in source with its WGSL output. Include annotations
	// are replaced with the processed text of the named file, once per call. Const
	// annotations become const declarations.
	//
	// Parameters:
	//   - source: the raw WGSL source code containing annotations
	//
	// Returns:
	//   - string: the processed WGSL source code
	//   - error: an error if an annotation is malformed, names a missing file, forms an
	//     include cycle or declares a constant without a registered value
	Process(source string) (string, error)

	// Load reads <name>.wgsl from the source file system and processes it.
	//
	// Parameters:
	//   - name: the file name without extension
	//
	// Returns:
	//   - string: the processed WGSL source code
	//   - error: an error if the file cannot be read or processed
	Load(name string) (string, error)
}

var _ PreProcessor = &preProcessor{}

// PreProcessorOption is a functional option for configuring a PreProcessor.
type PreProcessorOption func(*preProcessor)

// WithConstant registers the value emitted for a const annotation named name.
//
// Parameters:
//   - name: the WGSL constant name
//   - value: the value; integer types must hold whole numbers in range
//
// Returns:
//   - PreProcessorOption: functional option to register the constant
func WithConstant[T ~int | ~int32 | ~uint32 | ~float32 | ~float64](name string, value T) PreProcessorOption {
	return func(p *preProcessor) {
		p.constants[name] = float64(value)
	}
}

// NewPreProcessor creates a PreProcessor that resolves includes against sources.
//
// Parameters:
//   - sources: file system holding the shader files at its root
//   - options: functional options registering constants
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(sources fs.FS, options ...PreProcessorOption) PreProcessor {
	p := &preProcessor{
		sources:   sources,
		constants: make(map[string]float64),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	p.included = make(map[string]bool)
	return p.process(source, nil)
}

func (p *preProcessor) Load(name string) (string, error) {
	p.included = map[string]bool{name: true}
	src, err := p.read(name)
	if err != nil {
		return "", err
	}
	out, err := p.process(src, []string{name})
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func (p *preProcessor) read(name string) (string, error) {
	if p.sources == nil {
		return "", fmt.Errorf("no shader sources for %q", name)
	}
	b, err := fs.ReadFile(p.sources, name+".wgsl")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// process expands one source text. stack holds the files being expanded, outermost first.
func (p *preProcessor) process(source string, stack []string) (string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			name := a.Args[0]
			for _, s := range stack {
				if s == name {
					return "", fmt.Errorf("line %d: include cycle through %q", a.Line, name)
				}
			}
			if p.included[name] {
				continue
			}
			p.included[name] = true

			src, err := p.read(name)
			if err != nil {
				return "", fmt.Errorf("line %d: %w", a.Line, err)
			}
			expanded, err := p.process(src, append(stack, name))
			if err != nil {
				return "", fmt.Errorf("%s: %w", name, err)
			}
			out = append(out, expanded)
		case AnnotationTypeConst:
			decl, err := p.constDecl(a)
			if err != nil {
				return "", err
			}
			out = append(out, decl)
		}
	}
	return strings.Join(out, "\n"), nil
}

// constDecl renders the WGSL declaration of a const annotation.
func (p *preProcessor) constDecl(a *Annotation) (string, error) {
	name, typ := a.Args[0], a.Args[1]
	v, ok := p.constants[name]
	if !ok {
		return "", fmt.Errorf("line %d: no value registered for constant %q", a.Line, name)
	}

	var lit string
	switch typ {
	case "u32":
		if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
			return "", fmt.Errorf("line %d: constant %s = %v is not a u32", a.Line, name, v)
		}
		lit = strconv.FormatUint(uint64(v), 10) + "u"
	case "i32":
		if v < math.MinInt32 || v > math.MaxInt32 || v != math.Trunc(v) {
			return "", fmt.Errorf("line %d: constant %s = %v is not an i32", a.Line, name, v)
		}
		lit = strconv.FormatInt(int64(v), 10) + "i"
	case "f32":
		lit = strconv.FormatFloat(v, 'f', -1, 32)
		if !strings.ContainsAny(lit, ".e") {
			lit += ".0"
		}
	}
	return fmt.Sprintf("const %s: %s = %s;", name, typ, lit), nil
}
