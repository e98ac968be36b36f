// Command fbx extracts schema-typed records from a JSON stream.
//
// It reads JSON from stdin (or a file argument), matches the configured
// message and error paths, compiles each matched fragment into a flatbuffer
// against the given schema and prints the decoded records as JSON, one per
// line (indented when stdout is a terminal).
//
// Examples:
//
//	curl -s https://api.example.com/feed | fbx -schema feed.fbs -path items.*
//	fbx -schema api.fbs -path data -error-path error -error-table Err response.json
//
// The exit status is 0 only if the input was well-formed and every matched
// fragment converted successfully.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	fbstream "github.com/ESP32-Reference/flatbuffers-streaming-json"
	"github.com/ESP32-Reference/flatbuffers-streaming-json/schema"
)

type record = map[string]any

func main() {
	indent := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	os.Exit(run(os.Args[1:], os.Stdin, colorable.NewColorableStdout(), os.Stderr, indent))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, indent bool) int {
	fs := flag.NewFlagSet("fbx", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		schemaFile   = fs.String("schema", "", "text schema definition (.fbs), required")
		bfbsFile     = fs.String("bfbs", "", "binary reflection schema (.bfbs); derived from -schema when absent")
		rootPath     = fs.String("path", "", `dot-separated message path, "*" matches any one key (empty matches the whole document)`)
		errorPath    = fs.String("error-path", "", "dot-separated error path (empty disables error matching)")
		messageTable = fs.String("message-table", "", "table message fragments compile against (default: the schema root)")
		errorTable   = fs.String("error-table", "", "table error fragments compile against (default: the schema root)")
		verbose      = fs.Bool("v", false, "print each matched fragment to stderr before conversion")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	fail := func(format string, args ...any) int {
		fmt.Fprintf(stderr, "fbx: "+format+"\n", args...)
		return 1
	}

	if *schemaFile == "" {
		return fail("missing -schema")
	}
	text, err := os.ReadFile(*schemaFile)
	if err != nil {
		return fail("%v", err)
	}
	var bin []byte
	if *bfbsFile != "" {
		if bin, err = os.ReadFile(*bfbsFile); err != nil {
			return fail("%v", err)
		}
		bin = nulTerminated(bin)
	} else {
		s, err := schema.ParseText(text)
		if err != nil {
			return fail("%s: %v", *schemaFile, err)
		}
		bin = s.Binary()
	}

	opts := []fbstream.Option{}
	if *messageTable != "" {
		opts = append(opts, fbstream.WithMessageTable(*messageTable))
	}
	if *errorTable != "" {
		opts = append(opts, fbstream.WithErrorTable(*errorTable))
	}
	if *verbose {
		opts = append(opts, fbstream.WithFragmentObserver(func(text string, targetsError bool) {
			kind := "message"
			if targetsError {
				kind = "error"
			}
			fmt.Fprintf(stderr, "fbx: %s fragment: %s\n", kind, text)
		}))
	}

	p := fbstream.NewParser[record, record](nulTerminated(text), bin, opts...)
	if !p.Ready() {
		return fail("%v", p.Err())
	}

	in := stdin
	if fs.NArg() > 0 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return fail("%v", err)
		}
		defer f.Close()
		in = f
	}

	print := func(prefix string, rec record) bool {
		var b []byte
		var err error
		if indent {
			b, err = json.MarshalIndent(rec, "", "  ")
		} else {
			b, err = json.Marshal(rec)
		}
		if err != nil {
			fmt.Fprintf(stderr, "fbx: %v\n", err)
			return false
		}
		fmt.Fprintf(stdout, "%s%s\n", prefix, b)
		return true
	}

	ok := p.ParseStream(in, fbstream.StreamConfig[record, record]{
		RootPath:  fbstream.ParsePath(*rootPath),
		OnMessage: func(m record) bool { return print("", m) },
		ErrorPath: fbstream.ParsePath(*errorPath),
		OnError:   func(e record) bool { return print("error: ", e) },
	})
	if !ok {
		return 1
	}
	return 0
}

func nulTerminated(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == 0 {
		return b
	}
	return append(b, 0)
}
