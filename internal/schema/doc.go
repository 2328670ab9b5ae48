// Package schema compiles CUE document schemas and validates records against them.
//
// A schema source is CUE text declaring a closed #Document definition. Exactly
// one field carries the @primary() attribute and names the primary key:
//
//	#Document: {
//		passportId: string @primary()
//		firstName:  string
//		lastName?:  string
//		age?:       int & >=0
//	}
//
// Validation is a pure function of (schema, record). It encodes the record as a
// CUE value, unifies it with #Document and requires the result to be concrete,
// so missing required fields, type conflicts, failed constraints and unknown
// fields are all reported as field-level errors.
package schema
