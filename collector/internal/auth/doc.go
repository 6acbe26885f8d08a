// Package auth provides authentication middleware for the collector's query
// API.
//
// APIKey(mode, header, key) returns a gorilla/mux middleware that validates
// the API key in the named HTTP header. When mode != "apikey" every request
// passes through. In apikey mode a missing or wrong key is answered with 401
// and a JSON error body; an empty expected key rejects everything rather
// than silently disabling auth.
//
// Report ingestion (/v1/msg) is never wrapped: devices do not authenticate.
package auth
