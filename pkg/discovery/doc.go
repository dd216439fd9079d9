// Package discovery implements mDNS advertisement and browsing for virtual
// instrument endpoints.
//
// Every published instrument endpoint is advertised as a "_vinst-scpi._tcp"
// service in the local domain. TXT records carry the bench name, instrument
// name and identification string, so clients can find and connect to an
// instrument without knowing its port up front.
package discovery
