// Package batch runs a tool operation over several IDs and reports the
// outcome of each, so one failing ID does not hide the others.
package batch
