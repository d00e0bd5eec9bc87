// Package report renders operator facing text: the process listing, the
// utilisation report, process-smi, vmstat and memory layout snapshots.
// Rendering functions write to an io.Writer; Writer persists rendered reports
// through afs.
package report
