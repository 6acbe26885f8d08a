// Package export writes a scenario.Summary to disk.
//
// WriteMetrics renders the summary in the Prometheus text exposition format
// using client_model metric families, suitable for node_exporter's textfile
// collector. WriteJSON renders the same data as an indented JSON document.
// The *File variants write to a temp file in the destination directory and
// rename it into place so scrapers never observe a partial file.
package export
