// Package internal holds shared primitives for the veriauth engine: session
// token generation and the verification-code generator. Nothing here is part
// of the public API.
package internal
