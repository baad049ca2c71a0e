// Package operation defines the data-store operation requests the model
// issues through the query tool.
//
// A Request is immutable: its fields are unexported and every payload
// accessor returns a fresh copy, so policy checks and execution can never
// alter what the model asked for.
package operation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind names a store operation.
type Kind string

// Read kinds
const (
	Find            Kind = "find"
	FindOne         Kind = "findOne"
	Count           Kind = "count"
	Aggregate       Kind = "aggregate"
	ListCollections Kind = "listCollections"
)

// Write and DDL kinds
const (
	InsertOne        Kind = "insertOne"
	InsertMany       Kind = "insertMany"
	UpdateOne        Kind = "updateOne"
	UpdateMany       Kind = "updateMany"
	DeleteOne        Kind = "deleteOne"
	DeleteMany       Kind = "deleteMany"
	CreateCollection Kind = "createCollection"
	CreateIndex      Kind = "createIndex"
)

// ReadKinds lists the read kinds in a stable order.
var ReadKinds = []Kind{Find, FindOne, Count, Aggregate, ListCollections}

// WriteKinds lists the write and DDL kinds in a stable order.
var WriteKinds = []Kind{
	InsertOne, InsertMany,
	UpdateOne, UpdateMany,
	DeleteOne, DeleteMany,
	CreateCollection, CreateIndex,
}

// IsRead reports whether k is one of the read kinds.
func (k Kind) IsRead() bool {
	for _, r := range ReadKinds {
		if k == r {
			return true
		}
	}
	return false
}

// IsWrite reports whether k is one of the write or DDL kinds.
func (k Kind) IsWrite() bool {
	for _, w := range WriteKinds {
		if k == w {
			return true
		}
	}
	return false
}

// Known reports whether k belongs to the fixed kind enumeration.
func (k Kind) Known() bool {
	return k.IsRead() || k.IsWrite()
}

// ErrInvalidArguments is wrapped by every Parse failure.
var ErrInvalidArguments = errors.New("invalid arguments")

// Payload holds the kind-specific arguments as raw JSON. It is only used to
// construct a Request; the Request keeps its own copy.
type Payload struct {
	Filter     json.RawMessage
	Projection json.RawMessage
	Sort       json.RawMessage
	Limit      *int64
	Skip       *int64
	Update     json.RawMessage
	Data       json.RawMessage
	Pipeline   json.RawMessage
	Keys       json.RawMessage
	Options    json.RawMessage
}

// Request is a single store operation.
type Request struct {
	kind    Kind
	target  string
	payload Payload
}

// New builds a Request. The payload is deep-copied.
func New(kind Kind, target string, p Payload) Request {
	return Request{
		kind:    kind,
		target:  strings.TrimSpace(target),
		payload: p.clone(),
	}
}

// Kind returns the operation kind.
func (r Request) Kind() Kind { return r.kind }

// Target returns the collection name, empty for listCollections.
func (r Request) Target() string { return r.target }

// Filter returns a copy of the filter document, nil if absent.
func (r Request) Filter() json.RawMessage { return cloneRaw(r.payload.Filter) }

// Projection returns a copy of the projection document, nil if absent.
func (r Request) Projection() json.RawMessage { return cloneRaw(r.payload.Projection) }

// Sort returns a copy of the sort document, nil if absent.
func (r Request) Sort() json.RawMessage { return cloneRaw(r.payload.Sort) }

// Update returns a copy of the update document, nil if absent.
func (r Request) Update() json.RawMessage { return cloneRaw(r.payload.Update) }

// Data returns a copy of the document(s) to insert, nil if absent.
func (r Request) Data() json.RawMessage { return cloneRaw(r.payload.Data) }

// Pipeline returns a copy of the aggregation pipeline, nil if absent.
func (r Request) Pipeline() json.RawMessage { return cloneRaw(r.payload.Pipeline) }

// Keys returns a copy of the index key specification, nil if absent.
func (r Request) Keys() json.RawMessage { return cloneRaw(r.payload.Keys) }

// Options returns a copy of the index options, nil if absent.
func (r Request) Options() json.RawMessage { return cloneRaw(r.payload.Options) }

// Limit returns the requested limit and whether one was given.
func (r Request) Limit() (int64, bool) {
	if r.payload.Limit == nil {
		return 0, false
	}
	return *r.payload.Limit, true
}

// Skip returns the requested skip and whether one was given.
func (r Request) Skip() (int64, bool) {
	if r.payload.Skip == nil {
		return 0, false
	}
	return *r.payload.Skip, true
}

// String renders a short description for logs.
func (r Request) String() string {
	if r.target == "" {
		return string(r.kind)
	}
	return fmt.Sprintf("%s(%s)", r.kind, r.target)
}

// arguments is the tool-call argument shape accepted by Parse.
type arguments struct {
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	Filter     json.RawMessage `json:"filter"`
	Projection json.RawMessage `json:"projection"`
	Sort       json.RawMessage `json:"sort"`
	Limit      *int64          `json:"limit"`
	Skip       *int64          `json:"skip"`
	Update     json.RawMessage `json:"update"`
	Data       json.RawMessage `json:"data"`
	Pipeline   json.RawMessage `json:"pipeline"`
	Keys       json.RawMessage `json:"keys"`
	Options    json.RawMessage `json:"options"`
}

// Parse builds a Request from raw tool-call arguments. Parse only checks the
// argument structure; whether the operation is permitted is the policy's
// decision.
func Parse(input json.RawMessage) (Request, error) {
	var args arguments
	if err := json.Unmarshal(input, &args); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if args.Operation == "" {
		return Request{}, fmt.Errorf("%w: operation is required", ErrInvalidArguments)
	}

	objects := map[string]json.RawMessage{
		"filter":     args.Filter,
		"projection": args.Projection,
		"sort":       args.Sort,
		"update":     args.Update,
		"keys":       args.Keys,
		"options":    args.Options,
	}
	for name, raw := range objects {
		if present(raw) && !isObject(raw) {
			return Request{}, fmt.Errorf("%w: %s must be an object", ErrInvalidArguments, name)
		}
	}
	if present(args.Pipeline) && !isArray(args.Pipeline) {
		return Request{}, fmt.Errorf("%w: pipeline must be an array", ErrInvalidArguments)
	}
	if args.Limit != nil && *args.Limit < 0 {
		return Request{}, fmt.Errorf("%w: limit must not be negative", ErrInvalidArguments)
	}
	if args.Skip != nil && *args.Skip < 0 {
		return Request{}, fmt.Errorf("%w: skip must not be negative", ErrInvalidArguments)
	}

	return New(Kind(args.Operation), args.Collection, Payload{
		Filter:     nullToNil(args.Filter),
		Projection: nullToNil(args.Projection),
		Sort:       nullToNil(args.Sort),
		Limit:      args.Limit,
		Skip:       args.Skip,
		Update:     nullToNil(args.Update),
		Data:       nullToNil(args.Data),
		Pipeline:   nullToNil(args.Pipeline),
		Keys:       nullToNil(args.Keys),
		Options:    nullToNil(args.Options),
	}), nil
}

// IsObject reports whether raw is a JSON object.
func IsObject(raw json.RawMessage) bool { return isObject(raw) }

// IsArray reports whether raw is a JSON array.
func IsArray(raw json.RawMessage) bool { return isArray(raw) }

func (p Payload) clone() Payload {
	out := Payload{
		Filter:     cloneRaw(p.Filter),
		Projection: cloneRaw(p.Projection),
		Sort:       cloneRaw(p.Sort),
		Update:     cloneRaw(p.Update),
		Data:       cloneRaw(p.Data),
		Pipeline:   cloneRaw(p.Pipeline),
		Keys:       cloneRaw(p.Keys),
		Options:    cloneRaw(p.Options),
	}
	if p.Limit != nil {
		v := *p.Limit
		out.Limit = &v
	}
	if p.Skip != nil {
		v := *p.Skip
		out.Skip = &v
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return bytes.Clone(raw)
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(bytes.TrimSpace(raw)) != "null"
}

func nullToNil(raw json.RawMessage) json.RawMessage {
	if !present(raw) {
		return nil
	}
	return raw
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func isObject(raw json.RawMessage) bool { return firstByte(raw) == '{' }

func isArray(raw json.RawMessage) bool { return firstByte(raw) == '[' }
