package fbstream

import "errors"

// ErrSchemaNotReady is reported when a conversion is attempted on a Parser
// whose schema failed to load at construction.
var ErrSchemaNotReady = errors.New("fbstream: schema not ready")

// ErrRecordRejected is recorded when a callback returns false for a record.
// The conversion itself stands; only the stream's overall result is affected.
var ErrRecordRejected = errors.New("fbstream: record rejected by callback")
