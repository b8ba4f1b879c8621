// annotations.go defines the annotation types and the parser for the WGSL shader
// pre-processor. Annotations are single-line WGSL comments prefixed with @oxy: that pull
// shared source into a shader or declare constants whose values come from Go.
package shader

import (
	"fmt"
	"slices"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects another shader file at the annotation site. A file is
	// injected at most once per Process call, so shared blocks may be included from several
	// places.
	//
	// Syntax: //@oxy:include <file_name_without_extension>
	//
	// Example: //@oxy:include globals
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeConst declares a WGSL constant whose value is registered on the
	// PreProcessor with WithConstant.
	//
	// Syntax: //@oxy:const <NAME> <u32|i32|f32>
	//
	// Example: //@oxy:const DEBUG_NORMALS u32
	AnnotationTypeConst AnnotationType = "const"
)

// validConstTypes are the scalar types a constant annotation may declare.
var validConstTypes = []string{"u32", "i32", "f32"}

// Annotation is a single parsed annotation.
type Annotation struct {
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include: [0] = file name without extension
	//   - const:   [0] = constant name, [1] = WGSL scalar type
	Args []string

	// Line is the 1-based line number in the source. Used for error reporting.
	Line int
}

// parseAnnotation parses one line of WGSL. Lines without the annotation prefix return nil
// and no error.
//
// Parameters:
//   - line: the raw source line
//   - lineNum: 1-based line number for error messages
//
// Returns:
//   - *Annotation: the parsed annotation, or nil for ordinary lines
//   - error: an error if the line carries a malformed annotation
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	comment, ok := strings.CutPrefix(trimmed, "//")
	if !ok {
		return nil, nil
	}
	after, ok := strings.CutPrefix(strings.TrimSpace(comment), annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{Type: AnnotationTypeInclude, Args: args[1:], Line: lineNum}, nil
	case AnnotationTypeConst:
		if len(args) != 3 {
			return nil, fmt.Errorf("line %d: @oxy const annotation requires a name and a type", lineNum)
		}
		if !slices.Contains(validConstTypes, args[2]) {
			return nil, fmt.Errorf("line %d: unsupported constant type %q", lineNum, args[2])
		}
		return &Annotation{Type: AnnotationTypeConst, Args: args[1:], Line: lineNum}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown annotation type %q", lineNum, args[0])
	}
}
