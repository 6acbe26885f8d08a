// Package delivery POSTs serialized reports to a collector endpoint.
//
// Client.Send(ctx, uri, payload) issues exactly one blocking POST with
// Content-Type application/octet-stream, drains the response body, and
// returns the status code. There are no retries and no batching. Keep-alives
// are disabled, so every Send opens and releases its own connection.
//
// Failures are typed:
//   - *TransportError: no connection, TLS handshake failure, or the peer
//     closed/reset the connection before a status line arrived
//   - *ProtocolError: the peer answered with something that is not a valid
//     HTTP response
//   - *UnexpectedStatus: produced by CheckStatus when a valid status differs
//     from the expected one
//
// TLS verification is relaxed only through TargetConfig.InsecureSkipVerify
// on the client that needs it; New logs a warning when it is set.
package delivery
