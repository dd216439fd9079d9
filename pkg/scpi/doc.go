// Package scpi implements the command grammar shared by virtual instruments
// and their clients.
//
// Commands are plain-text ASCII lines in the style used by laboratory
// instrument control: a bare write ("VOLT 12.5"), a query ("VOLT?"), a
// hierarchical target ("MEAS:VOLT?"), or an IEEE-488.2 common command
// ("*IDN?", "*RST"). Several commands may be chained on one line with ";".
//
// The parser is grammar-only: it produces a Request without touching any
// instrument state, and it never checks argument types against a parameter
// definition. Type and range validation happen in the state model before any
// mutation takes place.
//
// The package also defines the response status vocabulary. A response is
// always exactly one line: the value text for a query, "OK" for an accepted
// write, or an error line of the form
//
//	ERR OUT_OF_RANGE: 99 > 30
//
// so clients can recognize failures by the "ERR " marker alone.
package scpi
