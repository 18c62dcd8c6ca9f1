// Package failurelog appends one line per failed conversion to a plain text
// file and reads the most recent lines back for display.
package failurelog
