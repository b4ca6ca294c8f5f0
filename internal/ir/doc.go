// Package ir provides the JSON value model shared by every mdstats package.
//
// Query fragments, stored documents, reference lookups and rendered filters
// are all expressed as IRValue trees. This package contains value types and
// their encodings only; ir imports nothing internal, so every other package
// can depend on it without cycles.
//
// Key design constraints:
//   - Sealed IRValue interface: exhaustive type switches are safe
//   - JSON numbers decode through json.Number, never through float64, so
//     large integer identifiers keep their precision
//   - MarshalCanonical is the only serialization used for stored bodies and
//     golden output
package ir
