// Package viz renders terminal output for the crml command: thermo tables,
// verification and benchmark reports, and asciigraph plots of pair curves
// and thermo traces.
//
// Styles follow the active [Theme]; [SetTheme] switches it for the whole
// process.
package viz
