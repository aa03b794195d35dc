// Package token issues and validates the symmetric-signed bearer tokens
// used by the admission pipeline (§4.2 of the data model, §4.10 layer 2).
package token
