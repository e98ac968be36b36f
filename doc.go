// Package fbstream extracts schema-typed records from a JSON stream.
//
// A Parser watches a JSON document go by, token by token, and for each
// position matching a configured key path it reconstructs the JSON fragment
// found there, compiles it into a flatbuffer against a schema, verifies the
// buffer and hands the decoded record to a typed callback.  The whole
// document is never held in memory; the only buffering is one fragment's
// worth of text per match.
//
// A second path can be configured for error payloads, dispatching to a
// separate callback with a separate record type.
//
// Objects used as string-keyed maps are rewritten on the fly into the
// vector-of-records shape keyed flatbuffer vectors require, driven by the
// schema's reflection data: a field position whose table declares an "id"
// and a table-typed "val" field turns {"a":{...},"b":{...}} into
// [{"id":"a","val":{...}},{"id":"b","val":{...}}].
package fbstream
