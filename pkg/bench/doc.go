// Package bench assembles running virtual instruments from a declarative
// configuration, playing the role a setup script plays in the lab.
//
// A bench file declares instruments with their identity, parameters,
// physics capability and listen address. Start builds every instrument,
// wires physics inputs between them, starts one dispatch loop and one
// transport server per instrument and optionally advertises the endpoints
// over mDNS. Configuration errors are the only fatal path; everything after
// Start returns structured errors to the offending session instead.
package bench
