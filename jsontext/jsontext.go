// Package jsontext implements a streaming JSON tokenizer that drives a
// Visitor through the structure of the input as it is read.
//
// Unlike a decoder emitting a token stream on a channel, the tokenizer calls
// the visitor synchronously for every structural event, so the visitor can
// maintain state that depends on the exact position in the document (current
// key path, nesting depth) without buffering the input.  A visitor method
// returning a non-nil error aborts the parse immediately and the error is
// returned from Parse as-is.
package jsontext

import (
	"fmt"

	"github.com/ESP32-Reference/flatbuffers-streaming-json/internal/scanner"
	"github.com/ESP32-Reference/flatbuffers-streaming-json/token"
)

// A Visitor receives the structure of a JSON document as it is parsed.  For
// the input
//
//	{"id": 123, "tags": ["a", "b"]}
//
// the sequence of calls is (in pseudocode for clarity):
//
//	StartObject
//	BeginField("id")    Scalar(123)        EndField
//	BeginField("tags")  StartArray
//	                    ArrayItem(0) Scalar("a")
//	                    ArrayItem(1) Scalar("b")
//	                    EndArray           EndField
//	EndObject
//
// BeginField/EndField bracket the parsing of each object field's value, so a
// visitor can save state when entering a field and restore it on the way
// out.  ArrayItem is called before each array element.
type Visitor interface {
	Scalar(s *token.Scalar) error
	StartArray() error
	ArrayItem(i int) error
	EndArray() error
	StartObject() error
	BeginField(key *token.Scalar) error
	EndField() error
	EndObject() error
}

// A SyntaxError reports malformed JSON input together with the position at
// which it was detected.
type SyntaxError struct {
	Pos scanner.Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at L%d,C%d (offset %d): %s", e.Pos.Line+1, e.Pos.Col+1, e.Pos.Offset, e.Msg)
}
