// Package core turns abstract record descriptions into database writes.
//
// The package is the storage heart of the rteval submission parser. It knows
// nothing about reports, queues or workers; callers hand it a connection and
// a [RecordSet] and get back one key per inserted record.
//
// # RecordSets
//
// A RecordSet names a table, an optional RETURNING key and an ordered field
// list. Each record carries one [Value] per field, matched by field id:
//
//	rs := &core.RecordSet{
//	    Table: "systems",
//	    Key:   "syskey",
//	    Fields: []core.Field{{ID: 1, Name: "sysid"}, {ID: 2, Name: "dmidata"}},
//	    Records: []core.Record{{Values: []core.Value{
//	        {FieldID: 2, Kind: core.KindXMLBlob, Content: "<dmi>...</dmi>"},
//	        {FieldID: 1, Kind: core.KindHash, Algorithm: "sha1", Content: "..."},
//	    }}},
//	}
//
// Values are resolved through a registry of kind transforms before binding.
// Plain values pass through, xmlblob values are re-serialized to a flat
// string and hash values are digested with a named algorithm. New kinds are
// added with [RegisterKind] and new digests with [RegisterDigest].
//
// # Insertion
//
// [Insert] prepares one INSERT statement per call and executes it once per
// record. It fails fast: the first record that does not execute aborts the
// call and earlier rows stay in the database unless the caller wrapped the
// call in a transaction (see [Begin], [InTransaction] and [InsertAtomic]).
//
// # Error Handling
//
// All failures are typed. Callers inspect them with errors.Is against
// [ErrConnection], [ErrMalformedInput], [ErrPrepare], [ErrExec],
// [ErrTransaction] and [ErrConsistencyViolation], or with errors.As against
// [*ExecError]. [Code] returns a short support code for logs:
//
//   - DB001: connection lost or refused
//   - DB002: statement could not be prepared
//   - DB003: statement failed for a record
//   - DB004: transaction control failed
//   - DB005: duplicate system registrations
//   - VAL001: malformed record description
package core
