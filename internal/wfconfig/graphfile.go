package wfconfig

import (
	"encoding/json"
	"fmt"
	"io"

	"weaveforge/internal/core"
	"weaveforge/internal/wferrors"
)

// SupportedGraphSchemaVersion is the only graph-file schema version this
// build of weaveforge accepts.
const SupportedGraphSchemaVersion = "1.0.0"

// GraphDocument is the on-disk shape of a graph file: a thin envelope
// around the target list core.Target already knows how to decode.
type GraphDocument struct {
	SchemaVersion string        `json:"schema_version"`
	Targets       []core.Target `json:"targets"`
}

// ParseGraphFile decodes and validates a graph document, returning its
// wferrors.ParseError for malformed JSON, unknown fields, an unsupported
// schema version, or a target missing a required field. It never returns a
// partially valid target list.
func ParseGraphFile(r io.Reader) ([]core.Target, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var doc GraphDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, &wferrors.ParseError{Msg: err.Error(), Err: err}
	}

	if doc.SchemaVersion != SupportedGraphSchemaVersion {
		return nil, &wferrors.ParseError{Msg: fmt.Sprintf("unsupported schema_version %q, expected %q", doc.SchemaVersion, SupportedGraphSchemaVersion)}
	}
	if len(doc.Targets) == 0 {
		return nil, &wferrors.ParseError{Msg: "graph document declares no targets"}
	}

	for i, t := range doc.Targets {
		if t.ID.Name == "" {
			return nil, &wferrors.ParseError{Msg: fmt.Sprintf("targets[%d]: missing id", i)}
		}
		if t.Kind == "" {
			return nil, &wferrors.ParseError{Msg: fmt.Sprintf("targets[%d] (%s): missing kind", i, t.ID)}
		}
		if len(t.Command) == 0 {
			return nil, &wferrors.ParseError{Msg: fmt.Sprintf("targets[%d] (%s): missing command", i, t.ID)}
		}
	}

	return doc.Targets, nil
}
