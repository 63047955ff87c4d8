// Package generation is the Generation Port: it asks a text-generation
// provider for a structured result and only hands back values that decode
// into the requested output contract and pass its validation rules.
//
// A call has three ways to fail, each reported as an *Error with its Kind:
// the provider call itself failed, the reply held no decodable JSON, or the
// decoded value broke the contract. There are no retries here; a failure is
// returned to the calling step as-is.
package generation
