// Package output forwards accepted reports to an external system.
//
// Every observation in an accepted report becomes one Event. A Transform
// renders the event as a single record and a Sink delivers the records of one
// report together:
//
//	json  {"id":50,"timestamp":"2023-11-14T22:13:20Z","category":...,"observableData":{...}}
//	kvp   recvIp=10.0.0.1, systemId=bb.., application="..", eventId=50, ts=..., file="/dev/null"
//
// Sinks:
//   - console:   one record per line on stdout, write errors ignored
//   - file:      appended one per line after a "# Service startup" marker,
//     each record prefixed with the receive time and host name
//   - udpsyslog: one RFC 5424 datagram per record
//   - tcpsyslog: RFC 6587 octet-counted frames, reconnecting once on failure
//
// Syslog sinks refuse multi-line transforms (json). A failed transform or
// sink write is returned to the receiver, which answers 500 so the device
// retries the report.
package output
